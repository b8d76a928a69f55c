// Package dates finds retention-relevant dates (effective, expiration,
// renewal, review) in contract text and normalizes them to calendar days.
package dates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/document"
)

// Kind is the role a date plays in a contract.
type Kind string

const (
	KindEffective  Kind = "EFFECTIVE"
	KindExpiration Kind = "EXPIRATION"
	KindRenewal    Kind = "RENEWAL"
	KindReview     Kind = "REVIEW"
)

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindEffective, KindExpiration, KindRenewal, KindReview}
}

// ParseKind validates s as a Kind, ignoring case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("dates: unknown kind %q", s)
}

// Confidence grades how tightly a date is bound to its anchor phrase.
type Confidence string

const (
	// High means only connector words separate the anchor and the date.
	High Confidence = "HIGH"
	Low  Confidence = "LOW"
)

// Record is one recognized date.
type Record struct {
	Kind       Kind          `json:"kind"`
	Value      Date          `json:"value"`
	Span       document.Span `json:"source_span"`
	Confidence Confidence    `json:"confidence"`
	Raw        string        `json:"raw,omitempty"`
}

// Result holds the authoritative date per kind plus every candidate seen.
type Result struct {
	Selected   map[Kind]Record `json:"selected"`
	Candidates []Record        `json:"candidates,omitempty"`
}

// Get returns the selected record for k.
func (r Result) Get(k Kind) (Record, bool) {
	rec, ok := r.Selected[k]
	return rec, ok
}

// Config configures the extractor. Anchors are keyed by kind name.
type Config struct {
	Anchors map[string][]string `koanf:"anchors" yaml:"anchors"`
	Window  int                 `koanf:"window" yaml:"window"`
	MinYear int                 `koanf:"min_year" yaml:"min_year"`
	MaxYear int                 `koanf:"max_year" yaml:"max_year"`
}

// DefaultAnchors returns the stock anchor phrases per kind.
func DefaultAnchors() map[string][]string {
	return map[string][]string{
		string(KindEffective): {
			`\beffective\b`,
			`\bcommenc(?:es|ing|ement\W*date)\b`,
			`\bin\W*effect\W*as\W*of\b`,
			`\bdated\W*as\W*of\b`,
			`\bstart(?:s|ing)?\W*(?:date|on)\b`,
			`\bbeginning\W*on\b`,
		},
		string(KindExpiration): {
			`\bexpir(?:es|ed|e|ation|y)\b(?:\W*date\b)?`,
			`\bterminates\b`,
			`\btermination\W*date\b`,
			`\bvalid\W*(?:through|until)\b`,
			`\b(?:remain|continue)s?\W*in\W*(?:full\W*force\W*and\W*)?effect\W*(?:until|through)\b`,
			`\beffective\W*(?:until|through|thru)\b`,
			`\b(?:ends|ending)\W*on\b`,
		},
		string(KindRenewal): {
			`\brenew(?:al|s|ed)?\b(?:\W*date\b)?`,
		},
		string(KindReview): {
			`\breview\W*date\b`,
			`\bshall\W*be\W*reviewed\b`,
			`\bsubject\W*to\W*review\b`,
		},
	}
}

// DefaultConfig returns the stock extractor settings.
func DefaultConfig() Config {
	return Config{
		Anchors: DefaultAnchors(),
		Window:  120,
		MinYear: 1990,
		MaxYear: 2099,
	}
}

// Extractor scans document text for anchored dates. It is safe for concurrent use.
type Extractor struct {
	anchors map[Kind][]*regexp.Regexp
	window  int
	minYear int
	maxYear int
	logger  *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger attaches a logger for per-document debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor validates cfg and compiles the anchor patterns.
func NewExtractor(cfg Config, opts ...Option) (*Extractor, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("dates: window must be > 0, got %d", cfg.Window)
	}
	if cfg.MinYear <= 0 || cfg.MaxYear < cfg.MinYear {
		return nil, fmt.Errorf("dates: invalid year range [%d, %d]", cfg.MinYear, cfg.MaxYear)
	}
	e := &Extractor{
		anchors: make(map[Kind][]*regexp.Regexp, len(cfg.Anchors)),
		window:  cfg.Window,
		minYear: cfg.MinYear,
		maxYear: cfg.MaxYear,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	for name, patterns := range cfg.Anchors {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("dates: %s anchor %q: %w", kind, p, err)
			}
			e.anchors[kind] = append(e.anchors[kind], re)
		}
	}
	return e, nil
}

// Extract scans every segment of doc. For each kind the selected record is
// the first HIGH confidence candidate in document order, or the first LOW
// one when no HIGH candidate exists.
func (e *Extractor) Extract(doc document.Text) Result {
	res := Result{Selected: make(map[Kind]Record)}
	for _, kind := range Kinds() {
		cands := e.candidates(doc, kind)
		if len(cands) == 0 {
			continue
		}
		res.Candidates = append(res.Candidates, cands...)
		chosen := cands[0]
		for _, c := range cands {
			if c.Confidence == High {
				chosen = c
				break
			}
		}
		res.Selected[kind] = chosen
		e.logger.Debug("date selected",
			zap.String("kind", string(kind)),
			zap.Stringer("value", chosen.Value),
			zap.String("confidence", string(chosen.Confidence)),
			zap.Int("candidates", len(cands)),
		)
	}
	return res
}

// candidates returns every recognized date of kind, ordered by position and
// without duplicate spans.
func (e *Extractor) candidates(doc document.Text, kind Kind) []Record {
	var out []Record
	seen := make(map[document.Span]bool)
	for pos := 0; pos < doc.NumSegments(); pos++ {
		text := doc.At(pos).Text
		for _, re := range e.anchors[kind] {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if e.shadowed(text, kind, loc) {
					continue
				}
				rec, ok := e.dateAfter(text, loc[1])
				if !ok {
					continue
				}
				rec.Kind = kind
				rec.Span.Segment = pos
				if seen[rec.Span] {
					continue
				}
				seen[rec.Span] = true
				out = append(out, rec)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Segment != out[j].Span.Segment {
			return out[i].Span.Segment < out[j].Span.Segment
		}
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}

// shadowed reports whether the anchor hit at loc lies inside a longer anchor
// hit of another kind, as "effective" does inside "effective through".
func (e *Extractor) shadowed(text string, kind Kind, loc []int) bool {
	for other, res := range e.anchors {
		if other == kind {
			continue
		}
		for _, re := range res {
			for _, o := range re.FindAllStringIndex(text, -1) {
				if o[0] > loc[0] {
					break
				}
				if o[1] >= loc[1] && o[1]-o[0] > loc[1]-loc[0] {
					return true
				}
			}
		}
	}
	return false
}

// dateAfter looks for the nearest date following an anchor that ends at
// offset from. The date must sit in the same clause as the anchor.
func (e *Extractor) dateAfter(text string, from int) (Record, bool) {
	end := from + e.window
	if end > len(text) {
		end = len(text)
	}
	window := text[from:end]

	found, ok := findDate(window)
	if !ok {
		return Record{}, false
	}
	gap := window[:found.start]
	if clauseBreak(gap) {
		return Record{}, false
	}
	value, ok := e.normalize(found.canonical)
	if !ok {
		return Record{}, false
	}

	conf := Low
	if connectorGap.MatchString(gap) {
		conf = High
	}
	return Record{
		Value:      value,
		Span:       document.Span{Start: from + found.start, End: from + found.end},
		Confidence: conf,
		Raw:        window[found.start:found.end],
	}, true
}

// normalize parses a canonical date string and enforces the year window.
func (e *Extractor) normalize(s string) (Date, bool) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Date{}, false
	}
	if t.Year() < e.minYear || t.Year() > e.maxYear {
		return Date{}, false
	}
	return DateOf(t), true
}

// connectorGap matches text made only of words that commonly sit between an
// anchor and its date.
var connectorGap = regexp.MustCompile(`(?i)^[\s\p{P}]*(?:(?:on|date|of|as|is|was|the|be|shall|will|from)[\s\p{P}]+)*$`)

func clauseBreak(gap string) bool {
	if strings.ContainsRune(gap, ';') || strings.Contains(gap, "\n\n") {
		return true
	}
	for i := 0; i+1 < len(gap); i++ {
		if gap[i] == '.' && (gap[i+1] == ' ' || gap[i+1] == '\n' || gap[i+1] == '\t') {
			return true
		}
	}
	return false
}
