package chunk

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinOCRConfidence is the exclusive lower bound for accepting an OCR region.
const MinOCRConfidence = 0.5

// Region is a bounding box in image pixels.
type Region struct {
	X, Y, Width, Height int
}

// OCRResult is one recognized text region.
type OCRResult struct {
	Region     Region
	Text       string
	Confidence float64
}

// OCREngine recognizes text in an encoded image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) ([]OCRResult, error)
}

// OCRFunc adapts a function to OCREngine.
type OCRFunc func(ctx context.Context, image []byte) ([]OCRResult, error)

// Recognize calls f.
func (f OCRFunc) Recognize(ctx context.Context, image []byte) ([]OCRResult, error) {
	return f(ctx, image)
}

// acceptOCR joins the text of regions above MinOCRConfidence, one per line,
// and returns it with the mean accepted confidence.
func acceptOCR(results []OCRResult) (string, float64) {
	var lines []string
	var sum float64
	for _, r := range results {
		if r.Confidence <= MinOCRConfidence {
			continue
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		lines = append(lines, text)
		sum += r.Confidence
	}
	if len(lines) == 0 {
		return "", 0
	}
	return strings.Join(lines, "\n"), sum / float64(len(lines))
}

// ValidateOCRText reports whether OCR output looks like real text. It
// returns a reason when the text is rejected.
func ValidateOCRText(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	total := utf8.RuneCountInString(trimmed)
	if total < 10 {
		return false, "too short"
	}

	var dense, alnum int
	for _, r := range trimmed {
		isAlnum := unicode.IsLetter(r) || unicode.IsDigit(r)
		if isAlnum {
			alnum++
		}
		if isAlnum || unicode.IsSpace(r) {
			dense++
		}
	}
	if alnum == 0 {
		return false, "no alphanumeric characters"
	}
	if float64(dense)/float64(total) < 0.3 {
		return false, "too few alphanumeric characters"
	}

	var lines, short int
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		if utf8.RuneCountInString(line) <= 5 {
			short++
		}
	}
	if lines > 0 && float64(short)/float64(lines) >= 0.5 {
		return false, "mostly fragment lines"
	}

	return true, ""
}
