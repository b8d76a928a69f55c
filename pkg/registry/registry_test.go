package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

var fixedNow = time.Date(2026, time.March, 15, 9, 30, 0, 0, time.UTC)

func record(id string, t classify.DocType, exp *dates.Date) metadata.Record {
	rec := metadata.Record{
		TrackingID:     id,
		SourceName:     id + ".pdf",
		Status:         metadata.StatusFinal,
		DocumentType:   t,
		Vendor:         vendor.Match{RawName: "Acme", NormalizedName: "acme", Method: vendor.MethodUnmatched},
		Signature:      signature.Verdict{Signed: true, Reason: signature.ReasonExecutionLanguage},
		Dates:          map[dates.Kind]dates.Record{},
		Classification: classify.For(t),
		CreatedAt:      fixedNow,
	}
	if exp != nil {
		rec.Dates[dates.KindExpiration] = dates.Record{Kind: dates.KindExpiration, Value: *exp, Confidence: dates.High}
	}
	return rec
}

func day(y int, m time.Month, d int) *dates.Date {
	v := dates.NewDate(y, m, d)
	return &v
}

func open(t *testing.T, store Store, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	reg, err := Open(context.Background(), store, opts...)
	require.NoError(t, err)
	return reg
}

func TestInsertThenGetRoundTrip(t *testing.T) {
	reg := open(t, NewMemoryStore())
	rec := record("a", classify.TypeMSA, day(2026, time.December, 31))

	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))
	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestInsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	reg := open(t, store)
	rec := record("a", classify.TypeNDA, nil)

	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))
	before := reg.All()
	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))

	assert.Equal(t, before, reg.All())
	assert.Equal(t, 1, store.Commits())
}

func TestUpdateReplacesByTrackingID(t *testing.T) {
	reg := open(t, NewMemoryStore())
	rec := record("a", classify.TypeNDA, nil)
	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))

	rec.CanonicalName = "AGMT_Acme_nonDisclosureAgreement_001.pdf"
	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))

	assert.Equal(t, 1, reg.Len())
	got, _ := reg.Get("a")
	assert.Equal(t, rec.CanonicalName, got.CanonicalName)
}

func TestCallerCannotMutateStoredRecord(t *testing.T) {
	reg := open(t, NewMemoryStore())
	rec := record("a", classify.TypeMSA, day(2026, time.June, 1))
	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))

	rec.Dates[dates.KindReview] = dates.Record{Kind: dates.KindReview}
	got, _ := reg.Get("a")
	got.Dates[dates.KindRenewal] = dates.Record{Kind: dates.KindRenewal}

	again, _ := reg.Get("a")
	assert.Len(t, again.Dates, 1)
}

func TestCommitFailureKeepsPriorState(t *testing.T) {
	store := NewMemoryStore()
	core, logs := observer.New(zapcore.ErrorLevel)
	reg := open(t, store, WithLogger(zap.New(core)))
	require.NoError(t, reg.InsertOrUpdate(context.Background(), record("a", classify.TypeMSA, nil)))

	store.FailNext(errors.New("disk full"))
	err := reg.InsertBatch(context.Background(), []metadata.Record{
		record("b", classify.TypePO, nil),
		record("c", classify.TypeSOW, nil),
	})
	require.Error(t, err)
	assert.True(t, IsDurability(err))
	var de *DurabilityError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "commit", de.Op)

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("registry commit failed").Len())

	// the registry keeps working once the store recovers
	require.NoError(t, reg.InsertOrUpdate(context.Background(), record("b", classify.TypePO, nil)))
	assert.Equal(t, 2, reg.Len())
}

func TestRejectsMissingTrackingID(t *testing.T) {
	reg := open(t, NewMemoryStore())
	err := reg.InsertOrUpdate(context.Background(), metadata.Record{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.False(t, IsDurability(err))
}

func TestCancelledContextDoesNotMutate(t *testing.T) {
	store := NewMemoryStore()
	reg := open(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reg.InsertOrUpdate(ctx, record("a", classify.TypeMSA, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, store.Commits())
}

func TestQueryExpiringWithin(t *testing.T) {
	reg := open(t, NewMemoryStore())
	recs := []metadata.Record{
		record("past", classify.TypeMSA, day(2026, time.March, 14)),
		record("today", classify.TypeMSA, day(2026, time.March, 15)),
		record("soon", classify.TypePO, day(2026, time.May, 1)),
		record("edge", classify.TypeContract, day(2026, time.September, 15)),
		record("later", classify.TypeMSA, day(2026, time.September, 16)),
		record("none", classify.TypeNDA, nil),
	}
	require.NoError(t, reg.InsertBatch(context.Background(), recs))

	got, err := reg.QueryExpiringWithin(6)
	require.NoError(t, err)
	var ids []string
	for _, e := range got {
		ids = append(ids, e.Record.TrackingID)
	}
	assert.Equal(t, []string{"today", "soon", "edge"}, ids)
	assert.Equal(t, 0, got[0].DaysUntil)
	assert.Equal(t, 47, got[1].DaysUntil)
	assert.Equal(t, StatusExpiringSoon, got[1].Status)
	assert.Equal(t, StatusActive, got[2].Status)

	got, err = reg.QueryExpiringWithin(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "today", got[0].Record.TrackingID)

	_, err = reg.QueryExpiringWithin(-1)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryExpiringWithinAtMonthEnd(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, time.August, 31, 14, 0, 0, 0, time.UTC) }
	reg := open(t, NewMemoryStore(), WithClock(clock))
	require.NoError(t, reg.InsertBatch(context.Background(), []metadata.Record{
		record("last-day", classify.TypeMSA, day(2027, time.February, 28)),
		record("past-window", classify.TypeMSA, day(2027, time.March, 2)),
	}))

	got, err := reg.QueryExpiringWithin(6)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "last-day", got[0].Record.TrackingID)
}

func TestQueryByCategoryAndSummary(t *testing.T) {
	reg := open(t, NewMemoryStore())
	recs := []metadata.Record{
		record("msa", classify.TypeMSA, day(2027, time.January, 1)),
		record("k", classify.TypeContract, day(2026, time.July, 1)),
		record("nda", classify.TypeNDA, nil),
		record("amd", classify.TypeAMD, day(2030, time.January, 1)),
	}
	recs[2].Status = metadata.StatusSupporting
	require.NoError(t, reg.InsertBatch(context.Background(), recs))

	long := reg.QueryByCategory(classify.LongTerm)
	assert.Len(t, long, 2)
	assert.Empty(t, reg.QueryByCategory(classify.ShortTerm))

	s := reg.Summary()
	assert.Equal(t, 4, s.TotalDocuments)
	assert.Equal(t, 3, s.DocumentsWithExpiration)
	assert.Equal(t, 2, s.ByCategory[classify.LongTerm].Count)
	assert.Equal(t, "2026-07-01", s.ByCategory[classify.LongTerm].EarliestExpiration.String())
	assert.Equal(t, "2027-01-01", s.ByCategory[classify.LongTerm].LatestExpiration.String())
	assert.Nil(t, s.ByCategory[classify.Indefinite].EarliestExpiration)
	assert.Equal(t, "2026-07-01", s.EarliestExpiration.String())
	assert.Equal(t, "2030-01-01", s.LatestExpiration.String())
	assert.Equal(t, 1, s.ByStatus[metadata.StatusSupporting])
	assert.Equal(t, 1, s.ByType[classify.TypeAMD])
}

func TestConcurrentInsertsAreSerialized(t *testing.T) {
	store := NewMemoryStore()
	reg := open(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, reg.InsertOrUpdate(context.Background(), record(fmt.Sprintf("doc-%02d", i), classify.TypeMSA, nil)))
			_ = reg.Summary()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, reg.Len())
	assert.Equal(t, 50, store.Commits())
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 50)
}

func TestCommitHook(t *testing.T) {
	var calls, total int
	reg := open(t, NewMemoryStore(), WithCommitHook(func(n int, _ time.Duration, err error) {
		calls++
		total += n
		assert.NoError(t, err)
	}))
	require.NoError(t, reg.InsertBatch(context.Background(), []metadata.Record{
		record("a", classify.TypeMSA, nil),
		record("b", classify.TypeMSA, nil),
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, total)
}

func TestJSONStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	reg := open(t, NewJSONStore(path))
	rec := record("a", classify.TypeMSA, day(2026, time.December, 31))
	require.NoError(t, reg.InsertOrUpdate(context.Background(), rec))

	reopened := open(t, NewJSONStore(path))
	got, ok := reopened.Get("a")
	require.True(t, ok)
	assert.Equal(t, rec.TrackingID, got.TrackingID)
	exp, ok := got.Expiration()
	require.True(t, ok)
	assert.Equal(t, "2026-12-31", exp.String())
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestJSONStoreMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	reg := open(t, NewJSONStore(filepath.Join(dir, "absent.json")))
	assert.Equal(t, 0, reg.Len())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err := Open(context.Background(), NewJSONStore(bad))
	require.Error(t, err)
	assert.True(t, IsDurability(err))
	assert.ErrorIs(t, err, ErrCorrupt)

	mismatch := filepath.Join(dir, "mismatch.json")
	require.NoError(t, os.WriteFile(mismatch, []byte(`{"version":1,"records":{"x":{"tracking_id":"y"}}}`), 0o600))
	_, err = Open(context.Background(), NewJSONStore(mismatch))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestJSONStoreUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// the parent "directory" is a regular file, so the commit cannot succeed
	reg := open(t, NewJSONStore(filepath.Join(blocker, "registry.json")))
	err := reg.InsertOrUpdate(context.Background(), record("a", classify.TypeMSA, nil))
	require.Error(t, err)
	assert.True(t, IsDurability(err))
	assert.Equal(t, 0, reg.Len())
}
