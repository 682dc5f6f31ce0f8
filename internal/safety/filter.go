package safety

import (
	"regexp"
	"strings"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// Redaction placeholders.
const (
	RedactedEmail   = "[redacted-email]"
	RedactedPhone   = "[redacted-phone]"
	RedactedSSN     = "[redacted-ssn]"
	RedactedAddress = "[redacted-address]"
)

// Patterns are applied in order. No placeholder contains a digit or '@', so a
// later pattern can never match inside an earlier replacement.
//
// This is a best-effort heuristic scrubber. It does not guarantee complete
// de-identification and must not be treated as a security boundary. The
// address rule in particular matches any short number followed by a few
// words ("I have 2 dogs at home") and over-redacts ordinary sentences.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), RedactedEmail},
	{regexp.MustCompile(`\b(\+?\d{1,2}[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`), RedactedPhone},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), RedactedSSN},
	{regexp.MustCompile(`\b\d{1,5}\s+([A-Za-z0-9'.\-]+\s?){1,4}\b`), RedactedAddress},
}

// Redact replaces suspected personal data in text with placeholders.
func Redact(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllLiteralString(text, r.replacement)
	}
	return text
}

// RedactMessages returns a redacted copy of msgs. The input is not modified.
func RedactMessages(msgs []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = model.ChatMessage{Role: m.Role, Content: Redact(m.Content)}
	}
	return out
}

// Filter scans conversations for crisis language.
type Filter struct {
	terms []string
}

// NewFilter creates a filter over the policy's crisis lexicon.
func NewFilter(p Policy) *Filter {
	terms := make([]string, 0, len(p.CrisisTerms))
	for _, t := range p.CrisisTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Filter{terms: terms}
}

// DetectCrisis reports whether any lexicon term appears in the concatenated,
// lower-cased message contents. Matching is plain substring search and favours
// recall: a term inside a quotation or lyric still counts.
func (f *Filter) DetectCrisis(msgs []model.ChatMessage) bool {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = strings.ToLower(m.Content)
	}
	joined := strings.Join(parts, " ")

	for _, t := range f.terms {
		if strings.Contains(joined, t) {
			return true
		}
	}
	return false
}
