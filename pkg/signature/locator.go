package signature

import (
	"fmt"
	"regexp"

	"github.com/japaniel/contractsort/pkg/document"
)

// DefaultTailSegments is the number of trailing segments searched when the
// configuration does not say otherwise.
const DefaultTailSegments = 3

// LocatorConfig configures the section locator.
type LocatorConfig struct {
	TailSegments int      `koanf:"tail_segments" yaml:"tail_segments"`
	Anchors      []string `koanf:"anchors" yaml:"anchors"`
}

// DefaultAnchors are execution-heading phrases that pull an earlier segment
// into the signature search space.
func DefaultAnchors() []string {
	return []string{
		`\bsignature\W*pages?\b`,
		`\bexecution\W*pages?\b`,
		`\bsignatures?\W*(?:follow|below)\b`,
		`\bin\W*witness\W*whereof\b`,
		`\b(?:agreed|accepted)\W*and\W*(?:agreed|accepted)\b`,
	}
}

// DefaultLocatorConfig returns the stock locator settings.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{TailSegments: DefaultTailSegments, Anchors: DefaultAnchors()}
}

// Section is the subset of a document searched for signature evidence.
type Section struct {
	// Segments holds positions into document.Text in document order.
	Segments []int `json:"segments"`
	// Full is set when the document was too short to have a distinct tail
	// and every segment was selected.
	Full bool `json:"full"`
}

// Locator bounds the signature search to the end of a document plus any
// anchored segment found earlier. It is safe for concurrent use.
type Locator struct {
	tail    int
	anchors []*regexp.Regexp
}

// NewLocator validates cfg and compiles its anchor patterns.
func NewLocator(cfg LocatorConfig) (*Locator, error) {
	if cfg.TailSegments < 1 {
		return nil, fmt.Errorf("locator: tail_segments must be >= 1, got %d", cfg.TailSegments)
	}
	anchors, err := compileAll(cfg.Anchors)
	if err != nil {
		return nil, fmt.Errorf("locator: %w", err)
	}
	return &Locator{tail: cfg.TailSegments, anchors: anchors}, nil
}

// Locate returns the candidate section for doc. A document with no more
// segments than the tail size is returned whole.
func (l *Locator) Locate(doc document.Text) Section {
	n := doc.NumSegments()
	if n <= l.tail {
		sec := Section{Segments: make([]int, n), Full: true}
		for i := range sec.Segments {
			sec.Segments[i] = i
		}
		return sec
	}

	start := n - l.tail
	sec := Section{Segments: make([]int, 0, l.tail+1)}
	for i := 0; i < start; i++ {
		if l.anchored(doc.At(i).Text) {
			sec.Segments = append(sec.Segments, i)
		}
	}
	for i := start; i < n; i++ {
		sec.Segments = append(sec.Segments, i)
	}
	return sec
}

func (l *Locator) anchored(text string) bool {
	for _, re := range l.anchors {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// compileAll compiles patterns case-insensitively.
func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
