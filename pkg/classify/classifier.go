// Package classify maps contract text to a document type code and the
// retention policy fixed for that type.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/document"
)

// DefaultHeaderChars is how much leading text counts as the document header.
const DefaultHeaderChars = 2000

// ErrNoRules is returned when the type rule table is empty.
var ErrNoRules = errors.New("classify: rule table is empty")

// RuleConfig is one entry of the ordered type rule table. Patterns are
// matched case-insensitively.
type RuleConfig struct {
	Type     DocType  `koanf:"type" yaml:"type"`
	Patterns []string `koanf:"patterns" yaml:"patterns"`
}

// Config configures the classifier. HeaderChars of 0 disables the
// header-first pass and scans the whole text at once.
type Config struct {
	HeaderChars int          `koanf:"header_chars" yaml:"header_chars"`
	Rules       []RuleConfig `koanf:"rules" yaml:"rules"`
}

// DefaultRules returns the stock type rules in priority order. An amendment
// quotes the agreement it amends, so AMD is checked first and the generic
// CONTRACT rule last.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{Type: TypeAMD, Patterns: []string{
			`\bamendment\s*(?:no\.?|number|#)\s*\d+`,
			`\b(?:first|second|third|fourth|fifth|sixth|\d+(?:st|nd|rd|th))\s+amendment\b`,
			`\bamendment\s+to\s+(?:the\s+)?(?:master|services?|license|licensing|purchase|consulting|non\W*disclosure|statement|supply)\b`,
			`\bthis\s+amendment\b`,
			`\bhereby\s+amend(?:s|ed)?\b`,
			`\baddendum\b`,
			`\bamd\b`,
		}},
		{Type: TypeSOW, Patterns: []string{
			`\bstatement\s+of\s+work\b`,
			`\bsow\b`,
			`\bwork\s+statement\b`,
			`\bwork\s+order\b`,
		}},
		{Type: TypePO, Patterns: []string{
			`\bpurchase\s+order\b`,
			`\bp\.o\.(?:\s|$)`,
			`\bpo\s*(?:#|no\.?|number)?\s*\d+\b`,
		}},
		{Type: TypeNDA, Patterns: []string{
			`\bnon\W*disclosure\b`,
			`\bnda\b`,
			`\b(?:mutual\s+)?confidentiality\s+agreement\b`,
		}},
		{Type: TypeLicense, Patterns: []string{
			`\blicen[cs]e\s+agreement\b`,
			`\bsoftware\s+licen[cs]e\b`,
			`\bend\W*user\s+licen[cs]e\b`,
			`\beula\b`,
			`\bsubscription\s+agreement\b`,
		}},
		{Type: TypeMSA, Patterns: []string{
			`\bmaster\s+(?:services?\s+|purchase\s+|supply\s+)?agreement\b`,
			`\bmsa\b`,
		}},
		{Type: TypeContract, Patterns: []string{
			`\bservices?\s+agreement\b`,
			`\bagreement\b`,
			`\bcontract\b`,
		}},
	}
}

// DefaultConfig returns the stock classifier settings.
func DefaultConfig() Config {
	return Config{HeaderChars: DefaultHeaderChars, Rules: DefaultRules()}
}

type typeRule struct {
	docType  DocType
	patterns []*regexp.Regexp
}

// Classifier assigns document types. It is safe for concurrent use.
type Classifier struct {
	header int
	rules  []typeRule
	logger *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger attaches a logger for per-document debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier validates cfg and compiles its rules.
func NewClassifier(cfg Config, opts ...Option) (*Classifier, error) {
	if cfg.HeaderChars < 0 {
		return nil, fmt.Errorf("classify: header_chars must be >= 0, got %d", cfg.HeaderChars)
	}
	if len(cfg.Rules) == 0 {
		return nil, ErrNoRules
	}
	c := &Classifier{header: cfg.HeaderChars, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	for i, rc := range cfg.Rules {
		if _, err := ParseDocType(string(rc.Type)); err != nil || rc.Type == TypeOther {
			return nil, fmt.Errorf("classify: rule %d: invalid type %q", i, rc.Type)
		}
		if len(rc.Patterns) == 0 {
			return nil, fmt.Errorf("classify: rule %d (%s): no patterns", i, rc.Type)
		}
		tr := typeRule{docType: rc.Type}
		for _, p := range rc.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("classify: rule %d (%s) %q: %w", i, rc.Type, p, err)
			}
			tr.patterns = append(tr.patterns, re)
		}
		c.rules = append(c.rules, tr)
	}
	return c, nil
}

// Classify returns the classification of doc. hint is an optional filename
// scanned together with the header. The title lines are tried first, then
// the header, and the full text only when neither matched a rule.
func (c *Classifier) Classify(doc document.Text, hint string) Classification {
	hint = hintText(hint)
	if c.header > 0 {
		head := doc.Prefix(c.header)
		// A generic title ("AGREEMENT") leaves the decision to the header.
		if title := titleOf(head); title != "" {
			if t, ok := c.match(title); ok && t != TypeContract {
				return c.result(t, "title")
			}
		}
		if t, ok := c.match(hint + "\n" + head); ok {
			return c.result(t, "header")
		}
	}
	var b strings.Builder
	b.WriteString(hint)
	for _, s := range doc.Segments() {
		b.WriteByte('\n')
		b.WriteString(s.Text)
	}
	if t, ok := c.match(b.String()); ok {
		return c.result(t, "body")
	}
	return c.result(TypeOther, "none")
}

func (c *Classifier) result(t DocType, where string) Classification {
	c.logger.Debug("document type", zap.String("doc_type", string(t)), zap.String("matched_in", where))
	return For(t)
}

// match returns the first rule, in priority order, with a pattern hit in text.
func (c *Classifier) match(text string) (DocType, bool) {
	for _, r := range c.rules {
		for _, re := range r.patterns {
			if re.MatchString(text) {
				return r.docType, true
			}
		}
	}
	return "", false
}

const (
	maxTitleLines = 5
	maxTitleWidth = 100
)

// titleOf returns the heading lines at the top of text: leading non-blank
// lines up to the first one that reads like prose.
func titleOf(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			break
		}
		if len(line) > maxTitleWidth || strings.ContainsAny(line[len(line)-1:], ".,;:") {
			break
		}
		lines = append(lines, line)
		if len(lines) == maxTitleLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// hintText turns a filename into words so separators like "_" do not glue
// tokens together.
func hintText(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, name)
}
