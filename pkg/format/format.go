// Package format normalizes raw model output for the transport: emphasis
// markers are stripped (the platform renders its own markup, doubled markers
// corrupt it) and the text is bounded to the platform message limit on
// sentence boundaries.
package format

import (
	"regexp"
	"strings"
)

// ellipsisMargin keeps room for the truncation marker inside the limit.
const ellipsisMargin = 3

var (
	emphasisRe  = regexp.MustCompile("\\*{1,2}|_{1,2}|`{1,3}")
	sentenceRe  = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)
	reasoningRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// Formatter bounds model output to maxLen characters.
type Formatter struct {
	maxLen int
}

func NewFormatter(maxLen int) *Formatter {
	return &Formatter{maxLen: maxLen}
}

// Truncate strips emphasis markers, then greedily accumulates whole
// sentences while the running total stays under maxLen−3. If any sentence
// was dropped the result ends with "...". The returned text never exceeds
// maxLen; a whitespace-only result means the reply is unusable and callers
// must treat it as an empty response.
func (f *Formatter) Truncate(raw string) string {
	cleaned := emphasisRe.ReplaceAllString(raw, "")
	sentences := splitSentences(cleaned)

	var kept []string
	total := 0
	for _, s := range sentences {
		add := len(s)
		if len(kept) > 0 {
			add++ // joining space
		}
		if total+add >= f.maxLen-ellipsisMargin {
			break
		}
		kept = append(kept, s)
		total += add
	}

	result := strings.TrimSpace(strings.Join(kept, " "))
	if len(kept) != len(sentences) {
		result += "..."
	}
	return result
}

// StripReasoning removes <think>...</think> blocks that some models leak
// into their output, and that users occasionally paste back in.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningRe.ReplaceAllString(text, ""))
}

// splitSentences splits on terminal punctuation followed by whitespace.
// Trailing text without terminal punctuation is kept as a final sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		loc := sentenceRe.FindStringSubmatchIndex(rest)
		if loc == nil || loc[3] == 0 {
			break
		}
		out = append(out, rest[loc[2]:loc[3]])
		rest = rest[loc[1]:]
	}
	if tail := strings.TrimSpace(rest); tail != "" {
		out = append(out, tail)
	}
	return out
}
