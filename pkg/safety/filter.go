// Package safety implements the content gate applied on both sides of the
// relay: inbound user text before a backend request is built, and generated
// text before it is sent back to the platform.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultPatterns is the minimum viable blocklist: self-harm terms. Matches
// are whole-word and case-insensitive; substrings of longer unrelated words
// ("suicidology") never match.
var defaultPatterns = []string{
	"suicide",
	"suicidal",
	"self-harm",
	"kill myself",
}

// Filter is a pure keyword gate. It holds one compiled expression and no
// other state; Blocked is a total function.
type Filter struct {
	re *regexp.Regexp
}

// NewFilter compiles the default blocklist plus any extra keywords from
// configuration. Extra keywords are matched literally, whole-word,
// case-insensitive.
func NewFilter(extra ...string) (*Filter, error) {
	words := make([]string, 0, len(defaultPatterns)+len(extra))
	for _, w := range defaultPatterns {
		words = append(words, regexp.QuoteMeta(w))
	}
	for _, w := range extra {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		words = append(words, regexp.QuoteMeta(strings.ToLower(w)))
	}

	expr := fmt.Sprintf(`(?i)\b(?:%s)\b`, strings.Join(words, "|"))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling content filter: %w", err)
	}
	return &Filter{re: re}, nil
}

// MustNewFilter is NewFilter for static pattern sets, mainly tests.
func MustNewFilter(extra ...string) *Filter {
	f, err := NewFilter(extra...)
	if err != nil {
		panic(err)
	}
	return f
}

// Blocked reports whether text contains any blocklisted term as a whole
// word. No side effects.
func (f *Filter) Blocked(text string) bool {
	return f.re.MatchString(text)
}
