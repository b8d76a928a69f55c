package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/vendor"
)

// NamingFormat selects the canonical filename layout.
type NamingFormat string

const (
	// NamingEnhanced produces ABBR_Vendor_typeDescription_NNN.ext.
	NamingEnhanced NamingFormat = "enhanced"
	// NamingSimple produces YYYYMMDD_Vendor_original.ext.
	NamingSimple NamingFormat = "simple"
)

// ParseNamingFormat validates s as a naming format.
func ParseNamingFormat(s string) (NamingFormat, error) {
	switch f := NamingFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case NamingEnhanced, NamingSimple:
		return f, nil
	}
	return "", fmt.Errorf("metadata: unknown naming format %q", s)
}

var typeAbbreviations = map[classify.DocType]string{
	classify.TypeMSA:      "AGMT",
	classify.TypeSOW:      "AGMT",
	classify.TypeNDA:      "AGMT",
	classify.TypeAMD:      "AMD",
	classify.TypePO:       "K",
	classify.TypeLicense:  "K",
	classify.TypeContract: "K",
	classify.TypeOther:    "K",
}

var typeDescriptions = map[classify.DocType]string{
	classify.TypeMSA:      "masterServiceAgreement",
	classify.TypeSOW:      "statementOfWork",
	classify.TypeNDA:      "nonDisclosureAgreement",
	classify.TypePO:       "purchaseOrder",
	classify.TypeAMD:      "amendment",
	classify.TypeLicense:  "licenseAgreement",
	classify.TypeContract: "serviceAgreement",
	classify.TypeOther:    "document",
}

// Sequencer hands out per-vendor, per-type sequence numbers. It is safe for
// concurrent use.
type Sequencer struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewSequencer returns an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{counters: make(map[string]int)}
}

func seqKey(vendorName string, t classify.DocType) string {
	return vendorName + "\x00" + string(t)
}

// Next returns the next number for the vendor and type, starting at 1.
func (s *Sequencer) Next(vendorName string, t classify.DocType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seqKey(vendorName, t)
	s.counters[k]++
	return s.counters[k]
}

// Observe raises the counter for the vendor and type to at least n.
func (s *Sequencer) Observe(vendorName string, t classify.DocType, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seqKey(vendorName, t)
	if n > s.counters[k] {
		s.counters[k] = n
	}
}

var enhancedSeq = regexp.MustCompile(`^(?:AGMT|AMD|K)_[\pL\pN]+_[A-Za-z]+_(\d{3,})(?:\.[^.]*)?$`)

// Seed continues numbering after the enhanced names already present in records.
func (s *Sequencer) Seed(records []Record) {
	for _, r := range records {
		m := enhancedSeq.FindStringSubmatch(r.CanonicalName)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		s.Observe(vendor.ForFilename(r.Vendor.Name()), r.DocumentType, n)
	}
}

// Namer derives canonical filenames. The expiration date never appears in a name.
type Namer struct {
	format NamingFormat
	seq    *Sequencer
}

// NewNamer returns a namer for format. seq may be nil for a fresh sequence.
func NewNamer(format NamingFormat, seq *Sequencer) (*Namer, error) {
	if _, err := ParseNamingFormat(string(format)); err != nil {
		return nil, err
	}
	if seq == nil {
		seq = NewSequencer()
	}
	return &Namer{format: format, seq: seq}, nil
}

// Name returns the canonical filename for rec. In the enhanced format each
// call consumes a sequence number.
func (n *Namer) Name(rec Record) string {
	vendorName := vendor.ForFilename(rec.Vendor.Name())
	original := ""
	if rec.SourceName != "" {
		original = filepath.Base(rec.SourceName)
	}
	if n.format == NamingSimple {
		if eff, ok := rec.Date(dates.KindEffective); ok && !sameAsExpiration(rec, eff) {
			return fmt.Sprintf("%s_%s_%s", eff.Format("20060102"), vendorName, original)
		}
		return fmt.Sprintf("%s_%s", vendorName, original)
	}

	t := classify.For(rec.DocumentType).DocumentType
	id := n.seq.Next(vendorName, t)
	return fmt.Sprintf("%s_%s_%s_%03d%s", typeAbbreviations[t], vendorName, typeDescriptions[t], id, filepath.Ext(original))
}

func sameAsExpiration(rec Record, d dates.Date) bool {
	exp, ok := rec.Expiration()
	return ok && exp.Equal(d.Time)
}

// keeps reports whether prev's canonical name still fits rec. Simple names
// are always recomputed; enhanced names survive while vendor and type hold.
func (n *Namer) keeps(prev, rec Record) bool {
	return n.format == NamingEnhanced &&
		prev.CanonicalName != "" &&
		prev.DocumentType == rec.DocumentType &&
		vendor.ForFilename(prev.Vendor.Name()) == vendor.ForFilename(rec.Vendor.Name())
}
