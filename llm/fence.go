package llm

import (
	"strings"
	"unicode"
)

const fence = "```"

// StripCodeFence removes a markdown code fence the service may wrap its JSON
// in, despite being told not to. A leading fence line (with or without a
// language tag) and a trailing fence are removed independently, so partially
// fenced text is handled too. Unfenced text comes back trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, fence) {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			// Single line: ```json {...}```
			s = strings.TrimLeft(s, "`")
			s = strings.TrimLeftFunc(s, unicode.IsLetter)
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasSuffix(s, fence) {
		s = strings.TrimSpace(strings.TrimRight(s, "`"))
	}

	return s
}
