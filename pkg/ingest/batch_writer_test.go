package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
)

// countingCommitter records batch sizes and can block inside a commit.
type countingCommitter struct {
	mu      sync.Mutex
	batches []int
	total   int
	block   chan struct{}
	entered chan struct{}
}

func (c *countingCommitter) InsertBatch(ctx context.Context, recs []metadata.Record) error {
	if c.entered != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
	}
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, len(recs))
	c.total += len(recs)
	return nil
}

func (c *countingCommitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func rec(id string) metadata.Record {
	return metadata.Record{TrackingID: id, SourceName: id + ".txt", Status: metadata.StatusSupporting}
}

func openRegistry(t *testing.T) (*registry.Registry, *registry.MemoryStore) {
	t.Helper()
	store := registry.NewMemoryStore()
	reg, err := registry.Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return reg, store
}

func TestBatchWriterCommitsToRegistry(t *testing.T) {
	reg, store := openRegistry(t)
	bw := NewBatchWriter(reg, 2, 0)

	if err := bw.Submit(rec("a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := bw.Submit(rec("b")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Close and wait for pending batches to be committed. Use a timeout to avoid hanging tests.
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- bw.Close()
	}()
	select {
	case err := <-doneCh:
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for batch commit/close")
	}

	if reg.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", reg.Len())
	}
	if store.Commits() != 1 {
		t.Fatalf("expected a single commit for the batch, got %d", store.Commits())
	}
}

func TestBatchWriterStopsAfterCommitFailure(t *testing.T) {
	reg, store := openRegistry(t)
	store.FailNext(errors.New("disk full"))

	bw := NewBatchWriter(reg, 1, 0)
	var mu sync.Mutex
	var errs []error
	bw.OnError = func(e error) {
		mu.Lock()
		errs = append(errs, e)
		mu.Unlock()
	}
	commits := 0
	bw.OnCommit = func(int) { commits++ }

	if err := bw.Submit(rec("a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Accepted or rejected depending on timing; it must never be committed.
	_ = bw.Submit(rec("b"))

	err := bw.Close()
	if err == nil {
		t.Fatal("expected close to report the commit failure")
	}
	if !registry.IsDurability(err) {
		t.Fatalf("expected a durability error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected nothing committed after the failure, got %d", reg.Len())
	}
	if commits != 0 {
		t.Fatalf("expected no successful commits, got %d", commits)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("expected OnError once, got %d", len(errs))
	}
	if err := bw.Submit(rec("c")); !registry.IsDurability(err) {
		t.Fatalf("expected submit after failure to return the recorded error, got %v", err)
	}
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	c := &countingCommitter{}
	bw := NewBatchWriter(c, 5, 0)
	for i := 0; i < 12; i++ {
		if err := bw.Submit(rec(fmt.Sprintf("r%d", i))); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if c.count() != 12 {
		t.Fatalf("expected 12 records, got %d", c.count())
	}
	if len(c.batches) != 3 || c.batches[0] != 5 || c.batches[2] != 2 {
		t.Fatalf("unexpected batches: %v", c.batches)
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	c := &countingCommitter{}
	bw := NewBatchWriter(c, 10, 50*time.Millisecond)
	defer bw.Close()
	if err := bw.Submit(rec("a")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	// wait for flush interval
	deadline := time.After(time.Second)
	for c.count() != 1 {
		select {
		case <-deadline:
			t.Fatal("record not flushed by the interval ticker")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBatchWriterSubmitAfterClose(t *testing.T) {
	bw := NewBatchWriter(&countingCommitter{}, 2, 0)
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bw.Submit(rec("a")); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed on second close, got %v", err)
	}
}

func TestBatchWriterDropsBatchOnCancel(t *testing.T) {
	// The committer is held inside the first batch while two more fill the
	// channel buffer, so a fourth flush finds no room once ctx is canceled.
	c := &countingCommitter{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	bw := NewBatchWriter(c, 1, 0)
	errCh := make(chan error, 1)
	bw.OnError = func(e error) {
		select {
		case errCh <- e:
		default:
		}
	}

	if err := bw.Submit(rec("a")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	select {
	case <-c.entered:
	case <-time.After(time.Second):
		t.Fatal("committer never started the first batch")
	}
	for _, id := range []string{"b", "c"} {
		if err := bw.Submit(rec(id)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	// Now cancel the writer's context so further batches cannot be queued
	bw.cancel()

	// Fourth batch: commitCh is full and ctx is done, so it is dropped.
	if err := bw.Submit(rec("d")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Unblock the committer so Close can complete.
	close(c.block)

	select {
	case e := <-errCh:
		if e == nil || !strings.Contains(e.Error(), "dropping batch") {
			t.Fatalf("unexpected OnError value: %v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError to be called when batch dropped")
	}
	if err := bw.Close(); err == nil {
		t.Fatal("expected close to report the dropped batch")
	}
}
