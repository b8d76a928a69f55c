package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/document"
	"github.com/japaniel/contractsort/pkg/extract"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

const signedMSA = "MASTER SERVICE AGREEMENT\n" +
	"This Agreement is effective as of January 1, 2024.\n" +
	"This Agreement expires on December 31, 2026.\f" +
	"Terms and conditions.\f" +
	"IN WITNESS WHEREOF, the parties have executed this Agreement.\n"

const draftNDA = "MUTUAL NON-DISCLOSURE AGREEMENT\n" +
	"Draft for discussion only.\n" +
	"By: ____________________\n"

func newTestProcessor(t testing.TB, opts ...metadata.BuilderOption) *Processor {
	t.Helper()
	loc, err := signature.NewLocator(signature.DefaultLocatorConfig())
	require.NoError(t, err)
	sig, err := signature.NewClassifier(signature.DefaultRules())
	require.NoError(t, err)
	ext, err := dates.NewExtractor(dates.DefaultConfig())
	require.NoError(t, err)
	res, err := vendor.NewResolver(vendor.NewMasterList([]string{"Acme Corporation", "Globex LLC"}), vendor.DefaultThreshold)
	require.NoError(t, err)
	cls, err := classify.NewClassifier(classify.DefaultConfig())
	require.NoError(t, err)

	p, err := NewProcessor(Components{
		Locator:    loc,
		Signatures: sig,
		Dates:      ext,
		Vendors:    res,
		Types:      cls,
		Builder:    metadata.NewBuilder(opts...),
	}, nil)
	require.NoError(t, err)
	return p
}

func TestProcessBuildsRecord(t *testing.T) {
	p := newTestProcessor(t)
	rec, err := p.Process(context.Background(), Document{
		Name:       "acme/acme_msa.txt",
		Text:       extract.Plain(signedMSA, extract.Options{}),
		VendorHint: "ACME Corp., Inc.",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.TrackingID)
	assert.Equal(t, "acme/acme_msa.txt", rec.SourceName)
	assert.Equal(t, metadata.StatusFinal, rec.Status)
	assert.True(t, rec.Signature.Signed)
	assert.Equal(t, signature.ReasonExecutionLanguage, rec.Signature.Reason)
	assert.Equal(t, classify.TypeMSA, rec.DocumentType)
	assert.Equal(t, classify.LongTerm, rec.Category())
	assert.Equal(t, "Acme Corporation", rec.Vendor.Name())
	exp, ok := rec.Expiration()
	require.True(t, ok)
	assert.Equal(t, "2026-12-31", exp.String())
}

func TestProcessUnsignedDocument(t *testing.T) {
	p := newTestProcessor(t)
	rec, err := p.Process(context.Background(), Document{Name: "nda.txt", Text: extract.Plain(draftNDA, extract.Options{})})
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusSupporting, rec.Status)
	assert.Equal(t, signature.ReasonNoneFound, rec.Signature.Reason)
	assert.Equal(t, classify.TypeNDA, rec.DocumentType)
	assert.Equal(t, vendor.MethodUnmatched, rec.Vendor.Method)
	_, ok := rec.Expiration()
	assert.False(t, ok)
}

func TestProcessEmptyDocument(t *testing.T) {
	p := newTestProcessor(t)
	rec, err := p.Process(context.Background(), Document{Name: "blank.txt", Text: document.Text{}})
	require.NoError(t, err)
	assert.False(t, rec.Signature.Signed)
	assert.Equal(t, classify.TypeOther, rec.DocumentType)
}

func TestProcessCanceled(t *testing.T) {
	p := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, Document{Name: "x.txt"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProcessorRequiresComponents(t *testing.T) {
	_, err := NewProcessor(Components{}, nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestRunCommitsAndReports(t *testing.T) {
	reg, _ := openRegistry(t)
	promReg := prometheus.NewRegistry()
	m := NewMetrics(promReg)

	ig := NewIngester(newTestProcessor(t), reg)
	ig.BatchSize = 2
	ig.Metrics = m
	var calls int64
	ig.OnProgress = func(cur, total int) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, 3, total)
	}

	inputs := []Input{
		TextInput("acme_msa.txt", extract.Plain(signedMSA, extract.Options{}), "Acme"),
		TextInput("draft_nda.txt", extract.Plain(draftNDA, extract.Options{}), ""),
		{Name: "broken.txt", Load: func(context.Context) (document.Text, error) { return document.Text{}, errors.New("unreadable") }},
	}
	report, err := ig.Run(context.Background(), inputs)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Final)
	assert.Equal(t, 1, report.Supporting)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Committed)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "acme_msa.txt", report.Outcomes[0].Source)
	assert.True(t, report.Outcomes[0].Committed)
	assert.Equal(t, "unreadable", report.Outcomes[2].Error)
	assert.False(t, report.Outcomes[2].Committed)

	got, ok := reg.Get(report.Outcomes[0].TrackingID)
	require.True(t, ok)
	assert.Equal(t, classify.TypeMSA, got.DocumentType)
	assert.Equal(t, 2, reg.Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsProcessed.WithLabelValues("final")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsProcessed.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignatureVerdicts.WithLabelValues(string(signature.ReasonNoneFound))))
}

func TestRunFromFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Acme_Contracts")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "services_msa.txt")
	require.NoError(t, os.WriteFile(path, []byte(signedMSA), 0o600))

	reg, _ := openRegistry(t)
	seq := metadata.NewSequencer()
	namer, err := metadata.NewNamer(metadata.NamingEnhanced, seq)
	require.NoError(t, err)
	ig := NewIngester(newTestProcessor(t, metadata.WithNamer(namer)), reg)

	report, err := ig.Run(context.Background(), []Input{FileInput(path, extract.Options{})})
	require.NoError(t, err)
	require.Equal(t, 1, report.Committed)
	assert.Equal(t, "AGMT_AcmeCorporation_masterServiceAgreement_001.txt", report.Outcomes[0].CanonicalName)
}

func TestRunFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(signedMSA))
	}))
	defer srv.Close()

	reg, _ := openRegistry(t)
	ig := NewIngester(newTestProcessor(t), reg)
	report, err := ig.Run(context.Background(), []Input{URLInput(srv.URL+"/legal/msa", "Globex", srv.Client(), extract.Options{})})
	require.NoError(t, err)
	require.Equal(t, 1, report.Committed)

	got, ok := reg.Get(report.Outcomes[0].TrackingID)
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/legal/msa", got.SourceName)
	assert.Equal(t, metadata.StatusFinal, got.Status)
	assert.Equal(t, "Globex LLC", got.Vendor.Name())
}

func TestRunStopsOnDurabilityFailure(t *testing.T) {
	store := registry.NewMemoryStore()
	reg, err := registry.Open(context.Background(), store)
	require.NoError(t, err)
	store.FailNext(errors.New("disk full"))

	ig := NewIngester(newTestProcessor(t), reg)
	ig.BatchSize = 1
	ig.Workers = 1

	inputs := make([]Input, 20)
	for i := range inputs {
		inputs[i] = TextInput(fmt.Sprintf("doc%02d.txt", i), extract.Plain(draftNDA, extract.Options{}), "")
	}
	report, err := ig.Run(context.Background(), inputs)
	require.Error(t, err)
	assert.True(t, registry.IsDurability(err))
	assert.Less(t, report.Committed, len(inputs))
	assert.Equal(t, 0, store.Commits())
	assert.Equal(t, 0, reg.Len())
}

func TestRunContextCancel(t *testing.T) {
	reg, _ := openRegistry(t)
	ig := NewIngester(newTestProcessor(t), reg)

	inputs := make([]Input, 100)
	for i := range inputs {
		inputs[i] = TextInput(fmt.Sprintf("doc%03d.txt", i), extract.Plain(draftNDA, extract.Options{}), "")
	}

	// Create a context that is ALREADY canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := ig.Run(ctx, inputs)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
	if report.Committed != 0 {
		t.Errorf("Expected 0 committed records with cancelled context, got %d", report.Committed)
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d records", reg.Len())
	}
}
