package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// datePattern recognizes one textual date format and rewrites its
// submatches into a form the parser accepts.
type datePattern struct {
	re        *regexp.Regexp
	canonical func(m []string) (string, bool)
}

var datePatterns = []datePattern{
	{
		// 15th day of March, 2024
		re: regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\W*day\W*of\W*` + monthPattern + `\.?,?\s*(\d{4})\b`),
		canonical: func(m []string) (string, bool) {
			return named(m[2], m[1], m[3])
		},
	},
	{
		// March 15, 2024 / Dec. 31st 2026
		re: regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		canonical: func(m []string) (string, bool) {
			return named(m[1], m[2], m[3])
		},
	},
	{
		// 15 March 2024
		re: regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthPattern + `\.?,?\s+(\d{4})\b`),
		canonical: func(m []string) (string, bool) {
			return named(m[2], m[1], m[3])
		},
	},
	{
		// 2024-03-15
		re: regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`),
		canonical: func(m []string) (string, bool) {
			y, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			d, _ := strconv.Atoi(m[3])
			return fmt.Sprintf("%04d-%02d-%02d", y, mo, d), true
		},
	},
	{
		// 03/15/2024 or 03-15-2024, month first unless the first field cannot be a month
		re: regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`),
		canonical: func(m []string) (string, bool) {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			if a > 12 && b <= 12 {
				a, b = b, a
			}
			return fmt.Sprintf("%02d/%02d/%04d", a, b, y), true
		},
	},
}

func named(month, day, year string) (string, bool) {
	key := strings.ToLower(month)
	if len(key) > 3 {
		key = key[:3]
	}
	mo, ok := months[key]
	if !ok {
		return "", false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s %d, %s", mo, d, year), true
}

type dateMatch struct {
	start, end int
	canonical  string
}

// findDate returns the leftmost date in s. When two formats start at the
// same offset the longer match wins.
func findDate(s string) (dateMatch, bool) {
	var best dateMatch
	found := false
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatchIndex(s)
		if m == nil {
			continue
		}
		if found && (m[0] > best.start || (m[0] == best.start && m[1] <= best.end)) {
			continue
		}
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = s[m[2*i]:m[2*i+1]]
			}
		}
		canon, ok := p.canonical(groups)
		if !ok {
			continue
		}
		best = dateMatch{start: m[0], end: m[1], canonical: canon}
		found = true
	}
	return best, found
}
