package chunk

import (
	"context"
	"fmt"
	"log/slog"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// Dispatcher routes content to the chunking strategy for its Kind.
type Dispatcher struct {
	opts Options
	ocr  OCREngine
}

// NewDispatcher creates a dispatcher. ocr may be nil, in which case images
// are rejected as unsupported.
func NewDispatcher(opts Options, ocr OCREngine) *Dispatcher {
	return &Dispatcher{opts: opts.withDefaults(), ocr: ocr}
}

// Options returns the effective chunking options.
func (d *Dispatcher) Options() Options {
	return d.opts
}

// Split turns content into ordered chunks. For TextLike and Spreadsheet,
// content is decoded UTF-8 text; for Image it is the encoded image.
func (d *Dispatcher) Split(ctx context.Context, kind Kind, content []byte, sourcePath string) ([]Chunk, error) {
	switch kind {
	case TextLike:
		return splitText(string(content), sourcePath, d.opts), nil

	case Spreadsheet:
		return splitSheets(string(content), sourcePath), nil

	case Image:
		return d.splitImage(ctx, content, sourcePath)

	default:
		return nil, amerrors.UnsupportedInput(fmt.Sprintf("unsupported file type for %s", sourcePath)).
			WithDetail("path", sourcePath)
	}
}

func (d *Dispatcher) splitImage(ctx context.Context, image []byte, sourcePath string) ([]Chunk, error) {
	if d.ocr == nil {
		return nil, amerrors.UnsupportedInput("no OCR engine configured for " + sourcePath).
			WithDetail("path", sourcePath)
	}

	results, err := d.ocr.Recognize(ctx, image)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeChunkingFailed, "ocr failed for "+sourcePath, err)
	}

	text, confidence := acceptOCR(results)
	if ok, reason := ValidateOCRText(text); !ok {
		slog.Debug("ocr_text_rejected",
			slog.String("path", sourcePath),
			slog.String("reason", reason),
			slog.Int("regions", len(results)))
		return nil, amerrors.UnsupportedInput(fmt.Sprintf("unprocessable OCR text in %s: %s", sourcePath, reason)).
			WithDetail("path", sourcePath)
	}

	chunks := splitText(text, sourcePath, d.opts)
	for i := range chunks {
		c := confidence
		chunks[i].OCRConfidence = &c
	}
	return chunks, nil
}
