// Package registry is the durable tracking registry: a mapping from
// tracking id to metadata record, queryable by retention category and
// expiration window.
//
// Mutations are serialized and each one is committed to the Store before
// it becomes visible. Readers work on the last committed snapshot and never
// wait for an in-flight commit.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/metadata"
)

type snapshot struct {
	byID map[string]metadata.Record
}

// CommitHook observes every commit attempt.
type CommitHook func(records int, elapsed time.Duration, err error)

// Registry owns the tracking records. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	store  Store
	snap   atomic.Pointer[snapshot]
	now    func() time.Time
	logger *zap.Logger
	hook   CommitHook
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock used for expiration queries.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCommitHook registers a callback run after every commit attempt.
func WithCommitHook(h CommitHook) Option {
	return func(r *Registry) { r.hook = h }
}

// Open loads the full state from store. No mutation is accepted before the
// load has succeeded.
func Open(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	r := &Registry{store: store, now: time.Now, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}

	records, err := store.Load(ctx)
	if err != nil {
		return nil, &DurabilityError{Op: "load", Err: err}
	}
	byID := make(map[string]metadata.Record, len(records))
	for _, rec := range records {
		if rec.TrackingID == "" {
			return nil, &DurabilityError{Op: "load", Err: fmt.Errorf("%w: %v", ErrCorrupt, ErrInvalidRecord)}
		}
		byID[rec.TrackingID] = rec.Clone()
	}
	r.snap.Store(&snapshot{byID: byID})
	r.logger.Info("registry loaded", zap.Int("records", len(byID)))
	return r, nil
}

// InsertOrUpdate adds rec or replaces the record with the same tracking id.
// The change is durable when the call returns nil.
func (r *Registry) InsertOrUpdate(ctx context.Context, rec metadata.Record) error {
	return r.InsertBatch(ctx, []metadata.Record{rec})
}

// InsertBatch applies recs as a single commit. Either every record becomes
// visible or none does. Records identical to the stored version are
// skipped, and a batch with no changes performs no I/O.
func (r *Registry) InsertBatch(ctx context.Context, recs []metadata.Record) error {
	for _, rec := range recs {
		if rec.TrackingID == "" {
			return ErrInvalidRecord
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	cur := r.snap.Load()
	var changed []metadata.Record
	pending := make(map[string]metadata.Record, len(recs))
	for _, rec := range recs {
		prev, ok := pending[rec.TrackingID]
		if !ok {
			prev, ok = cur.byID[rec.TrackingID]
		}
		if ok && reflect.DeepEqual(prev, rec) {
			continue
		}
		c := rec.Clone()
		pending[rec.TrackingID] = c
		changed = append(changed, c)
	}
	if len(changed) == 0 {
		return nil
	}

	next := make(map[string]metadata.Record, len(cur.byID)+len(pending))
	for id, rec := range cur.byID {
		next[id] = rec
	}
	for id, rec := range pending {
		next[id] = rec
	}

	start := time.Now()
	err := r.store.Commit(ctx, Commit{Snapshot: next, Changed: changed})
	elapsed := time.Since(start)
	if r.hook != nil {
		r.hook(len(changed), elapsed, err)
	}
	if err != nil {
		r.logger.Error("registry commit failed", zap.Int("records", len(changed)), zap.Error(err))
		return &DurabilityError{Op: "commit", Err: err}
	}

	r.snap.Store(&snapshot{byID: next})
	r.logger.Info("registry committed",
		zap.Int("records", len(changed)),
		zap.Int("total", len(next)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// Get returns the record with the given tracking id.
func (r *Registry) Get(id string) (metadata.Record, bool) {
	rec, ok := r.snap.Load().byID[id]
	if !ok {
		return metadata.Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of committed records.
func (r *Registry) Len() int {
	return len(r.snap.Load().byID)
}

// All returns every committed record ordered by creation time, then id.
func (r *Registry) All() []metadata.Record {
	return r.filter(func(metadata.Record) bool { return true })
}

func (r *Registry) filter(keep func(metadata.Record) bool) []metadata.Record {
	snap := r.snap.Load()
	out := make([]metadata.Record, 0, len(snap.byID))
	for _, rec := range snap.byID {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TrackingID < out[j].TrackingID
	})
	return out
}
