package persona

import (
	"strings"
	"unicode/utf8"
)

// TruncateReply enforces the channel length policy: replies longer than max
// bytes are cut at a sentence boundary when one exists in the back half,
// otherwise at a word boundary — never mid-word and never inside a UTF-8
// sequence.
func TruncateReply(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	head := text[:cut]

	// Prefer ending on a complete sentence if one ends past the halfway
	// point; a reply cut to its first clause reads better than one cut to
	// almost-all of it with a dangling fragment.
	if i := lastSentenceEnd(head); i > max/2 {
		return strings.TrimSpace(head[:i+1])
	}

	// Fall back to the last word boundary.
	if i := strings.LastIndexAny(head, " \t\n"); i > 0 {
		return strings.TrimSpace(head[:i])
	}
	return head
}

func lastSentenceEnd(s string) int {
	return strings.LastIndexAny(s, ".!?")
}
