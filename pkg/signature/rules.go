package signature

// Reason identifies which family of evidence marked a document as signed.
type Reason string

const (
	ReasonExplicitBlock     Reason = "EXPLICIT_SIGNATURE_BLOCK"
	ReasonExecutionLanguage Reason = "EXECUTION_LANGUAGE"
	ReasonESignMark         Reason = "E_SIGN_PLATFORM_MARK"
	ReasonNoneFound         Reason = "NONE_FOUND"
)

// Valid reports whether r may label a rule. NONE_FOUND is an outcome, not a rule.
func (r Reason) Valid() bool {
	switch r {
	case ReasonExplicitBlock, ReasonExecutionLanguage, ReasonESignMark:
		return true
	}
	return false
}

// RuleConfig is one entry of the ordered rule table. Patterns are regular
// expressions matched case-insensitively; a pattern may re-enable case
// sensitivity locally with (?-i:...).
type RuleConfig struct {
	Reason   Reason   `koanf:"reason" yaml:"reason"`
	Name     string   `koanf:"name" yaml:"name"`
	Patterns []string `koanf:"patterns" yaml:"patterns"`
	// Reject discards a pattern hit whose matched text matches any of these.
	Reject []string `koanf:"reject" yaml:"reject"`
}

// personName matches a typed name: two or more capitalized words on one line.
const personName = `(?-i:[A-Z][A-Za-z.'\-]*(?:[ \t]+[A-Z][A-Za-z.'\-]*)+)`

// blockLabel matches a name slot that holds a printed form label instead of
// a signatory, as in "Signature: Authorized Representative".
const blockLabel = `(?:by|:|/s/)[ \t]*(?:authori[sz]ed|representative|print(?:ed)?|name|title|date|signature|signatory)\b`

const monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

// DefaultRules returns the stock rule table in priority order. The first
// rule that matches decides the reason code.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Reason: ReasonESignMark,
			Name:   "digital_signature_marker",
			Patterns: []string{
				`\b(?:digitally|electronically)\W*(?:signed|executed)\b`,
				`\bdocusign\W*envelope\W*id\b`,
				`\bsent\W*from\W*docusign\b`,
				`\be\W*signed\W*(?:document|by|on)\b`,
				`\bsigned\W*on\W*(?:iphone|android|mobile)\b`,
			},
		},
		{
			Reason: ReasonESignMark,
			Name:   "esign_platform",
			Patterns: []string{
				`\b(?:adobe\W*e?sign|echosign|hellosign|dropbox\W*sign|signnow|pandadoc|rightsignature|signrequest|eversign|signeasily|onespan\W*sign)\b`,
			},
		},
		{
			Reason: ReasonExplicitBlock,
			Name:   "conformed_signature",
			Patterns: []string{
				`/s/[ \t]*` + personName,
			},
			Reject: []string{blockLabel},
		},
		{
			Reason: ReasonExplicitBlock,
			Name:   "named_signatory",
			Patterns: []string{
				`\bsigned\W*by[ \t]*:[ \t]*` + personName,
				`\bsignature[ \t]*:[ \t]*` + personName,
			},
			Reject: []string{blockLabel},
		},
		{
			Reason: ReasonExplicitBlock,
			Name:   "witness_notary",
			Patterns: []string{
				`\bwitness(?:ed)?\W*by[ \t]*:?[ \t]*` + personName,
				`\bin\W*the\W*presence\W*of[ \t]*:?[ \t]*` + personName,
				`\bnotarized\W*by\b`,
				`\battested\W*by\b`,
			},
			Reject: []string{blockLabel},
		},
		{
			Reason: ReasonExecutionLanguage,
			Name:   "execution_clause",
			Patterns: []string{
				`\bin\W*witness\W*whereof\b`,
				`\bhave\W*(?:duly\W*)?executed\W*this\W*(?:agreement|contract|amendment|instrument|order)\b`,
				`\bduly\W*executed\W*and\W*delivered\b`,
				`\bparties\W*hereby\W*execute\b`,
				`\b(?:agreed|accepted)\W*and\W*(?:agreed|accepted)\W*(?:by|to)\b`,
			},
		},
		{
			Reason: ReasonExecutionLanguage,
			Name:   "execution_date",
			Patterns: []string{
				`\b(?:executed|signed)\W*(?:on\W*)?(?:this\W*)?\d{1,2}(?:st|nd|rd|th)?\W*day\W*of\W*` + monthNames + `\b`,
				`\b(?:executed|signed)\W*on\W*\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`,
				`\b(?:executed|signed)\W*(?:on\W*|as\W*of\W*)?` + monthNames + `\W*\d{1,2}(?:st|nd|rd|th)?,?\W*\d{4}\b`,
				`\bdate\W*of\W*execution\W*\d`,
			},
		},
	}
}
