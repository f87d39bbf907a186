// Package redact masks personally identifiable information in free-form log text.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Category names a class of PII.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryCreditCard Category = "credit_card"
	CategorySSN        Category = "ssn"
	CategoryIPAddress  Category = "ip_address"
	CategoryPhone      Category = "phone"
)

// Placeholder returns the fixed mask written in place of a match, e.g. "[PHONE_REDACTED]".
func (c Category) Placeholder() string {
	return "[" + strings.ToUpper(string(c)) + "_REDACTED]"
}

type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// Rules are ordered most specific first. A span claimed by an earlier rule is
// never re-matched by a later one, so a card number is not partially taken as a phone.
var defaultRules = []rule{
	{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{CategoryCreditCard, regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{CategorySSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{CategoryIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
	{CategoryPhone, regexp.MustCompile(
		`(?:\+?1[-. ]?)?\(\d{3}\)[-. ]?\d{3}[-. ]?\d{4}\b` + // (555) 123-4567
			`|(?:\+?1[-. ])?\b\d{3}[-. ]\d{3}[-. ]\d{4}\b` + // 555-123-4567, 555.123.4567, +1 555 123 4567
			`|\b\d{10}\b` + // 5551234567
			`|\b\d{3}[-.]\d{4}\b`)}, // 555-1234
}

// Result is the outcome of one redaction pass.
type Result struct {
	Text       string
	Count      int
	ByCategory map[Category]int
}

// Redactor applies an ordered rule set. It holds no mutable state and is safe
// for concurrent use.
type Redactor struct {
	rules []rule
}

// New returns a Redactor with the built-in rule set.
func New() *Redactor {
	return &Redactor{rules: defaultRules}
}

var std = New()

// Redact masks all PII in text using the built-in rules.
func Redact(text string) string {
	return std.Apply(text).Text
}

type span struct {
	start, end int
	category   Category
}

// Apply finds every match of every rule against the original text, keeps the
// first non-overlapping claim per span, and rewrites the text in one pass.
func (r *Redactor) Apply(text string) Result {
	res := Result{Text: text, ByCategory: map[Category]int{}}
	if text == "" {
		return res
	}

	var claimed []span
	for _, rl := range r.rules {
		for _, m := range rl.pattern.FindAllStringIndex(text, -1) {
			if overlaps(claimed, m[0], m[1]) {
				continue
			}
			claimed = append(claimed, span{start: m[0], end: m[1], category: rl.category})
		}
	}
	if len(claimed) == 0 {
		return res
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range claimed {
		b.WriteString(text[last:s.start])
		b.WriteString(s.category.Placeholder())
		last = s.end
		res.ByCategory[s.category]++
	}
	b.WriteString(text[last:])

	res.Text = b.String()
	res.Count = len(claimed)
	return res
}

func overlaps(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}
