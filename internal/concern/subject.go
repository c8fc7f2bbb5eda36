package concern

import (
	"strings"
	"unicode/utf8"
)

const (
	// subjectLimit caps an auto-derived subject before the ellipsis.
	subjectLimit = 50

	// previewLimit caps the denormalized last-message preview,
	// ellipsis included.
	previewLimit = 80

	// DefaultSubject is used when no subject can be derived at all.
	DefaultSubject = "New Concern"
)

// DeriveSubject builds a thread subject from the first message when the
// parent didn't supply one: the first line of the message, or a
// word-boundary truncation to at most subjectLimit characters followed
// by "..." when the line is longer.
func DeriveSubject(firstMessage string) string {
	text := strings.TrimSpace(firstMessage)
	if text == "" {
		return DefaultSubject
	}

	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = strings.TrimSpace(text[:i])
	}
	if line == "" {
		return DefaultSubject
	}

	if utf8.RuneCountInString(line) <= subjectLimit {
		return line
	}
	return truncateAtWord(line, subjectLimit) + "..."
}

// TruncatePreview shortens message text for the thread's denormalized
// lastMessage field. Newlines collapse to spaces so the preview stays a
// single line.
func TruncatePreview(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= previewLimit {
		return flat
	}
	runes := []rune(flat)
	return strings.TrimRight(string(runes[:previewLimit-3]), " ") + "..."
}

// truncateAtWord cuts s to at most limit runes, preferring the last
// space inside the window so words are never split. A single word
// longer than the window is cut mid-word.
func truncateAtWord(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	window := string(runes[:limit])
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		window = window[:i]
	}
	return strings.TrimRight(window, " ")
}
