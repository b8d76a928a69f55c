// Package metadata assembles the per-document tracking record from the
// outputs of the signature, date, vendor and type classifiers.
package metadata

import (
	"time"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

// Status is the routing decision for a document.
type Status string

const (
	// StatusFinal marks a signed document.
	StatusFinal Status = "final"
	// StatusSupporting marks drafts and other unsigned material.
	StatusSupporting Status = "supporting"
)

// StatusOf maps a signature verdict to a routing status.
func StatusOf(v signature.Verdict) Status {
	if v.Signed {
		return StatusFinal
	}
	return StatusSupporting
}

// Record is the tracking record of one document. Once handed to the
// registry it must not be modified by the caller.
type Record struct {
	TrackingID     string                      `json:"tracking_id"`
	SourceName     string                      `json:"source_name"`
	CanonicalName  string                      `json:"canonical_name,omitempty"`
	Status         Status                      `json:"status"`
	DocumentType   classify.DocType            `json:"document_type"`
	Vendor         vendor.Match                `json:"vendor"`
	Signature      signature.Verdict           `json:"signature"`
	Dates          map[dates.Kind]dates.Record `json:"dates"`
	Classification classify.Classification     `json:"classification"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// Category returns the record's retention category.
func (r Record) Category() classify.RetentionCategory {
	return r.Classification.RetentionCategory
}

// Date returns the selected date of kind k, if any.
func (r Record) Date(k dates.Kind) (dates.Date, bool) {
	d, ok := r.Dates[k]
	if !ok {
		return dates.Date{}, false
	}
	return d.Value, true
}

// Expiration returns the EXPIRATION date, if any.
func (r Record) Expiration() (dates.Date, bool) {
	return r.Date(dates.KindExpiration)
}

// Clone returns a deep copy so the registry never shares mutable state
// with callers.
func (r Record) Clone() Record {
	out := r
	if r.Dates != nil {
		out.Dates = make(map[dates.Kind]dates.Record, len(r.Dates))
		for k, v := range r.Dates {
			out.Dates[k] = v
		}
	}
	if r.Vendor.MatchedEntry != nil {
		e := *r.Vendor.MatchedEntry
		out.Vendor.MatchedEntry = &e
	}
	if r.Signature.Span != nil {
		sp := *r.Signature.Span
		out.Signature.Span = &sp
	}
	if r.Signature.Matches != nil {
		out.Signature.Matches = append([]signature.Match(nil), r.Signature.Matches...)
	}
	return out
}
