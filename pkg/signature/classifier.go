// Package signature decides whether a contract document is a fully executed
// instrument. A Locator narrows the text to the likely signature section and
// a Classifier evaluates an ordered rule table over it.
package signature

import (
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/document"
)

// ErrNoRules is returned when a classifier is built from an empty rule table.
var ErrNoRules = errors.New("signature: rule table is empty")

// Match is one rule hit inside the searched section.
type Match struct {
	Reason Reason        `json:"reason"`
	Rule   string        `json:"rule"`
	Span   document.Span `json:"span"`
	Text   string        `json:"text"`
}

// Verdict is the signed/unsigned decision for one document.
type Verdict struct {
	Signed bool   `json:"signed"`
	Reason Reason `json:"reason_code"`
	// Span points at the evidence for Reason; nil when nothing matched.
	Span *document.Span `json:"matched_span,omitempty"`
	// Matches lists every rule that fired, in rule priority order.
	Matches []Match `json:"matches,omitempty"`
}

type rule struct {
	reason   Reason
	name     string
	patterns []*regexp.Regexp
	reject   []*regexp.Regexp
}

// prospective matches wording that puts signing in the future or makes it
// optional ("to be signed", "may be e-signed", "shall have executed"). A hit
// directly preceded by it is not evidence.
var prospective = regexp.MustCompile(`(?i)\b(?:(?:to|may|might|will|shall|must|can|could|should|would)\W+(?:be|have(?:\W+been)?)|will|shall|must|may)\W*$`)

// lookBehind bounds how much text before a hit is checked by prospective.
const lookBehind = 32

// Classifier evaluates the signature rule table. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	rules  []rule
	logger *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger attaches a logger used for per-document debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier compiles the rule table. Rule order is priority order.
func NewClassifier(rules []RuleConfig, opts ...Option) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	c := &Classifier{logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	for i, rc := range rules {
		if !rc.Reason.Valid() {
			return nil, fmt.Errorf("signature: rule %d: unknown reason %q", i, rc.Reason)
		}
		if len(rc.Patterns) == 0 {
			return nil, fmt.Errorf("signature: rule %d (%s): no patterns", i, rc.Reason)
		}
		res, err := compileAll(rc.Patterns)
		if err != nil {
			return nil, fmt.Errorf("signature: rule %d (%s): %w", i, rc.Reason, err)
		}
		rejects, err := compileAll(rc.Reject)
		if err != nil {
			return nil, fmt.Errorf("signature: rule %d (%s) reject: %w", i, rc.Reason, err)
		}
		name := rc.Name
		if name == "" {
			name = string(rc.Reason)
		}
		c.rules = append(c.rules, rule{reason: rc.Reason, name: name, patterns: res, reject: rejects})
	}
	return c, nil
}

// Classify evaluates every rule over the segments of sec and returns the
// verdict. Signed is true when any rule matched; Reason is taken from the
// highest-priority matching rule.
func (c *Classifier) Classify(doc document.Text, sec Section) Verdict {
	var matches []Match
	for _, r := range c.rules {
		if m, ok := r.first(doc, sec); ok {
			matches = append(matches, m)
		}
	}

	if len(matches) == 0 {
		c.logger.Debug("no signature evidence", zap.Int("segments", len(sec.Segments)))
		return Verdict{Signed: false, Reason: ReasonNoneFound}
	}

	span := matches[0].Span
	c.logger.Debug("signature evidence found",
		zap.String("reason", string(matches[0].Reason)),
		zap.String("rule", matches[0].Rule),
		zap.Int("matches", len(matches)),
	)
	return Verdict{
		Signed:  true,
		Reason:  matches[0].Reason,
		Span:    &span,
		Matches: matches,
	}
}

// first returns the earliest accepted hit of r in section order. Within a
// segment the leftmost accepted match across all patterns wins.
func (r rule) first(doc document.Text, sec Section) (Match, bool) {
	for _, pos := range sec.Segments {
		if pos < 0 || pos >= doc.NumSegments() {
			continue
		}
		text := doc.At(pos).Text
		best := []int(nil)
		for _, re := range r.patterns {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if best != nil && loc[0] >= best[0] {
					break
				}
				if r.accept(text, loc) {
					best = loc
					break
				}
			}
		}
		if best != nil {
			return Match{
				Reason: r.reason,
				Rule:   r.name,
				Span:   document.Span{Segment: pos, Start: best[0], End: best[1]},
				Text:   text[best[0]:best[1]],
			}, true
		}
	}
	return Match{}, false
}

// accept reports whether the hit at loc counts as evidence.
func (r rule) accept(text string, loc []int) bool {
	from := loc[0] - lookBehind
	if from < 0 {
		from = 0
	}
	if prospective.MatchString(text[from:loc[0]]) {
		return false
	}
	hit := text[loc[0]:loc[1]]
	for _, re := range r.reject {
		if re.MatchString(hit) {
			return false
		}
	}
	return true
}
