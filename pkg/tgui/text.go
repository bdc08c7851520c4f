// Package tgui holds Telegram plain-text helpers shared by outbound
// message paths.
package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Telegram's per-message text size limit in characters.
const MaxMessageLen = 4096

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// SplitMessage splits text into chunks that each fit in one Telegram
// message, breaking on newlines so no line is cut mid-link. A single
// line longer than the limit is hard-truncated.
func SplitMessage(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxMessageLen {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > MaxMessageLen {
			line = TruncRunes(line, MaxMessageLen-1)
			n = utf8.RuneCountInString(line)
		}
		// +1 for the joining newline
		if curLen > 0 && curLen+1+n > MaxMessageLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}
