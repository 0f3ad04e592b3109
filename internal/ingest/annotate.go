package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/amandocs/internal/chunk"
)

// Chunk length limits, in runes.
const (
	MaxChunkRunes     = 5000
	TruncatedRunes    = 4985
	TruncationMarker  = "...[truncated]"
	maxRecipientRunes = 50
)

// header builds the identity line prepended to every chunk of src.
// Email-like sources get a Subject | From | To | Date line.
func header(src Source) string {
	if isEmailLike(src) {
		parts := []string{
			"Subject: " + src.Headers["Subject"],
			"From: " + src.Headers["From"],
			"To: " + truncateRunes(src.Headers["To"], maxRecipientRunes),
			"Date: " + src.Headers["Date"],
		}
		return "[Email: " + src.Name + "] " + strings.Join(parts, " | ")
	}
	return "[Document: " + src.Name + "]"
}

func isEmailLike(src Source) bool {
	if len(src.Headers) == 0 {
		return false
	}
	if _, ok := src.Headers["Subject"]; ok {
		return true
	}
	if _, ok := src.Headers["From"]; ok {
		return true
	}
	return chunk.IsEmailExtension(extension(src.Path))
}

// annotate prepends the header to each chunk and enforces MaxChunkRunes.
func annotate(chunks []chunk.Chunk, src Source) []chunk.Chunk {
	h := header(src)
	out := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		c.Text = truncate(h + "\n" + c.Text)
		out[i] = c
	}
	return out
}

// truncate cuts text over MaxChunkRunes to TruncatedRunes plus the marker.
func truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxChunkRunes {
		return text
	}
	return string([]rune(text)[:TruncatedRunes]) + TruncationMarker
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
