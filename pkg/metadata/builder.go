package metadata

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

// ErrMissingInput is returned when a required classifier output is absent.
var ErrMissingInput = errors.New("metadata: required input missing")

// Inputs are the classifier outputs for one document.
type Inputs struct {
	SourceName     string
	Verdict        *signature.Verdict
	Dates          *dates.Result
	Vendor         *vendor.Match
	Classification *classify.Classification
}

// Builder aggregates classifier outputs into records.
type Builder struct {
	newID    func() string
	now      func() time.Time
	namer    *Namer
	previous func(source string) (Record, bool)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDSource overrides tracking id generation.
func WithIDSource(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// WithNamer assigns canonical filenames while building.
func WithNamer(n *Namer) BuilderOption {
	return func(b *Builder) { b.namer = n }
}

// WithPrevious looks up the record already registered for a source. A
// rebuilt document keeps that record's tracking id, so committing it updates
// the record in place. The canonical name is kept too while the namer would
// file the document under the same vendor and type.
func WithPrevious(lookup func(source string) (Record, bool)) BuilderOption {
	return func(b *Builder) { b.previous = lookup }
}

// PreviousBySource indexes recs by source name for WithPrevious. When a
// source appears more than once the most recently created record wins.
func PreviousBySource(recs []Record) func(source string) (Record, bool) {
	idx := make(map[string]Record, len(recs))
	for _, rec := range recs {
		if rec.SourceName == "" {
			continue
		}
		if cur, ok := idx[rec.SourceName]; ok && cur.CreatedAt.After(rec.CreatedAt) {
			continue
		}
		idx[rec.SourceName] = rec
	}
	return func(source string) (Record, bool) {
		rec, ok := idx[source]
		return rec, ok
	}
}

// NewBuilder returns a builder minting random UUIDs.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{newID: uuid.NewString, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build assembles a record with a fresh creation time. The tracking id is
// new unless WithPrevious knows the source. The retention fields are
// re-derived from the document type.
func (b *Builder) Build(in Inputs) (Record, error) {
	switch {
	case in.Verdict == nil:
		return Record{}, fmt.Errorf("%w: signature verdict", ErrMissingInput)
	case in.Dates == nil:
		return Record{}, fmt.Errorf("%w: dates", ErrMissingInput)
	case in.Vendor == nil:
		return Record{}, fmt.Errorf("%w: vendor match", ErrMissingInput)
	case in.Classification == nil:
		return Record{}, fmt.Errorf("%w: classification", ErrMissingInput)
	}

	cls := classify.For(in.Classification.DocumentType)
	rec := Record{
		SourceName:     in.SourceName,
		Status:         StatusOf(*in.Verdict),
		DocumentType:   cls.DocumentType,
		Vendor:         *in.Vendor,
		Signature:      *in.Verdict,
		Dates:          make(map[dates.Kind]dates.Record, len(in.Dates.Selected)),
		Classification: cls,
		CreatedAt:      b.now().UTC(),
	}
	for k, v := range in.Dates.Selected {
		rec.Dates[k] = v
	}

	var prev Record
	found := false
	if b.previous != nil && in.SourceName != "" {
		prev, found = b.previous(in.SourceName)
	}
	if found {
		rec.TrackingID = prev.TrackingID
	} else {
		rec.TrackingID = b.newID()
	}
	if b.namer != nil {
		if found && b.namer.keeps(prev, rec) {
			rec.CanonicalName = prev.CanonicalName
		} else {
			rec.CanonicalName = b.namer.Name(rec)
		}
	}
	return rec.Clone(), nil
}
