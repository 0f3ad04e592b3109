package chunk

import (
	"slices"
	"strings"
	"unicode"
)

// separators are tried largest first; a hard cut is the last resort.
var separators = []string{"\n\n", "\n", " "}

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start, End int
}

// SplitSpans computes the chunk boundaries for text. Every span is at most
// ChunkSize runes, consecutive spans overlap by at most ChunkOverlap runes,
// and together the spans cover the whole text.
//
// Each cut lands on the largest separator found in the window past the
// overlap zone, so a cut always advances by more than the overlap.
func SplitSpans(text string, opts Options) []Span {
	opts = opts.withDefaults()
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	pos := 0
	for pos < n {
		if n-pos <= opts.ChunkSize {
			spans = append(spans, Span{pos, n})
			break
		}

		end := cutPoint(runes, pos, opts)
		spans = append(spans, Span{pos, end})
		pos = overlapStart(runes, end, opts.ChunkOverlap)
	}
	return spans
}

// cutPoint returns the end of the chunk starting at pos.
func cutPoint(runes []rune, pos int, opts Options) int {
	limit := pos + opts.ChunkSize
	floor := pos + opts.ChunkOverlap
	for _, sep := range separators {
		if idx := lastIndexIn(runes, []rune(sep), floor+1, limit); idx >= 0 {
			return idx
		}
	}
	return limit
}

// lastIndexIn finds the last occurrence of sep starting within [from, to].
func lastIndexIn(runes, sep []rune, from, to int) int {
	for i := min(to, len(runes)-len(sep)); i >= from; i-- {
		if slices.Equal(runes[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

// overlapStart picks where the next chunk begins: at most overlap runes
// before end, moved forward to a word start when one exists.
func overlapStart(runes []rune, end, overlap int) int {
	start := end - overlap
	if overlap == 0 || start <= 0 {
		return end
	}

	for i := start; i < end; i++ {
		if i == 0 || unicode.IsSpace(runes[i-1]) {
			if !unicode.IsSpace(runes[i]) {
				return i
			}
		}
	}

	if hasSpace(runes[start:end]) {
		// overlap window holds only whitespace or a word tail
		return end
	}
	return start
}

func hasSpace(runes []rune) bool {
	for _, r := range runes {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// splitText applies SplitSpans and materializes trimmed, non-empty chunks.
func splitText(text, sourcePath string, opts Options) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	for _, sp := range SplitSpans(text, opts) {
		body := strings.TrimSpace(string(runes[sp.Start:sp.End]))
		if body == "" {
			continue
		}
		chunks = append(chunks, Chunk{Text: body, SourcePath: sourcePath})
	}
	return chunks
}
