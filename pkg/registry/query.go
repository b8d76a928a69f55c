package registry

import (
	"fmt"
	"sort"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/metadata"
)

// ExpiringSoonDays is the horizon below which an expiration is flagged.
const ExpiringSoonDays = 90

// ExpirationStatus buckets a record by how close its expiration is.
type ExpirationStatus string

const (
	StatusExpired      ExpirationStatus = "EXPIRED"
	StatusExpiringSoon ExpirationStatus = "EXPIRING_SOON"
	StatusActive       ExpirationStatus = "ACTIVE"
	StatusNoExpiration ExpirationStatus = "NO_EXPIRATION"
)

// ExpirationStatusOf classifies rec relative to today.
func ExpirationStatusOf(rec metadata.Record, today dates.Date) (ExpirationStatus, int) {
	exp, ok := rec.Expiration()
	if !ok {
		return StatusNoExpiration, 0
	}
	days := exp.DaysUntil(today)
	switch {
	case days < 0:
		return StatusExpired, days
	case days <= ExpiringSoonDays:
		return StatusExpiringSoon, days
	default:
		return StatusActive, days
	}
}

// Expiring is a query result for a record with an expiration date.
type Expiring struct {
	Record     metadata.Record  `json:"record"`
	Expiration dates.Date       `json:"expiration_date"`
	DaysUntil  int              `json:"days_until_expiration"`
	Status     ExpirationStatus `json:"expiration_status"`
}

// Today returns the current UTC calendar day.
func (r *Registry) Today() dates.Date {
	return dates.DateOf(r.now().UTC())
}

// QueryByCategory returns the records whose retention category is cat.
func (r *Registry) QueryByCategory(cat classify.RetentionCategory) []metadata.Record {
	return r.filter(func(rec metadata.Record) bool {
		return rec.Category() == cat
	})
}

// QueryExpiringWithin returns records whose EXPIRATION date lies in
// [today, today+months], inclusive, ordered by expiration date. Records
// without an expiration date are never returned.
func (r *Registry) QueryExpiringWithin(months int) ([]Expiring, error) {
	if months < 0 {
		return nil, fmt.Errorf("%w: months must be >= 0, got %d", ErrInvalidQuery, months)
	}
	today := r.Today()
	end := today.AddMonths(months)

	var out []Expiring
	for _, rec := range r.All() {
		exp, ok := rec.Expiration()
		if !ok || exp.Before(today.Time) || exp.After(end.Time) {
			continue
		}
		status, days := ExpirationStatusOf(rec, today)
		out = append(out, Expiring{Record: rec, Expiration: exp, DaysUntil: days, Status: status})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Expiration.Before(out[j].Expiration.Time)
	})
	return out, nil
}

// CategorySummary aggregates one retention category.
type CategorySummary struct {
	Count              int         `json:"count"`
	EarliestExpiration *dates.Date `json:"earliest_expiration,omitempty"`
	LatestExpiration   *dates.Date `json:"latest_expiration,omitempty"`
}

// Summary aggregates the whole registry.
type Summary struct {
	TotalDocuments          int                                          `json:"total_documents"`
	DocumentsWithExpiration int                                          `json:"documents_with_expiration"`
	ByCategory              map[classify.RetentionCategory]CategorySummary `json:"by_category"`
	ByType                  map[classify.DocType]int                     `json:"by_type"`
	ByStatus                map[metadata.Status]int                      `json:"by_status"`
	EarliestExpiration      *dates.Date                                  `json:"earliest_expiration,omitempty"`
	LatestExpiration        *dates.Date                                  `json:"latest_expiration,omitempty"`
}

// Summary returns per-category counts and the expiration range.
func (r *Registry) Summary() Summary {
	s := Summary{
		ByCategory: make(map[classify.RetentionCategory]CategorySummary),
		ByType:     make(map[classify.DocType]int),
		ByStatus:   make(map[metadata.Status]int),
	}
	for _, rec := range r.snap.Load().byID {
		s.TotalDocuments++
		s.ByType[rec.DocumentType]++
		s.ByStatus[rec.Status]++

		cs := s.ByCategory[rec.Category()]
		cs.Count++
		if exp, ok := rec.Expiration(); ok {
			s.DocumentsWithExpiration++
			cs.EarliestExpiration, cs.LatestExpiration = widen(cs.EarliestExpiration, cs.LatestExpiration, exp)
			s.EarliestExpiration, s.LatestExpiration = widen(s.EarliestExpiration, s.LatestExpiration, exp)
		}
		s.ByCategory[rec.Category()] = cs
	}
	return s
}

func widen(lo, hi *dates.Date, d dates.Date) (*dates.Date, *dates.Date) {
	if lo == nil || d.Before(lo.Time) {
		v := d
		lo = &v
	}
	if hi == nil || d.After(hi.Time) {
		v := d
		hi = &v
	}
	return lo, hi
}
