package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

func TestKindFromExtension(t *testing.T) {
	tests := map[string]Kind{
		".txt":  TextLike,
		"PDF":   TextLike,
		".Go":   TextLike,
		"eml":   TextLike,
		".csv":  Spreadsheet,
		"XLSX":  Spreadsheet,
		".jpeg": Image,
		"webp":  Image,
		".xyz":  Unsupported,
		"":      Unsupported,
	}
	for ext, want := range tests {
		assert.Equal(t, want, KindFromExtension(ext), ext)
	}
	assert.Equal(t, Spreadsheet, KindFromPath("/tmp/Budget.TSV"))
	assert.Equal(t, ".pdf", NormalizeExtension(" PDF "))
}

func TestDispatcher_UnsupportedKind(t *testing.T) {
	d := NewDispatcher(Options{}, nil)

	_, err := d.Split(context.Background(), Unsupported, []byte("data"), "file.xyz")

	require.Error(t, err)
	assert.ErrorIs(t, err, amerrors.ErrUnsupported)
}

func TestDispatcher_Spreadsheet_OneChunkPerSheet(t *testing.T) {
	// Given: two sheets, one of them long, plus an empty sheet
	long := strings.Repeat("row,value,42\n", 100)
	content := SheetMarker("Q1") + "\n" + long + SheetMarker("Empty") + "\n\n" + SheetMarker("Q2") + "\na,b\n"
	d := NewDispatcher(Options{ChunkSize: 50, ChunkOverlap: 10}, nil)

	// When: splitting
	chunks, err := d.Split(context.Background(), Spreadsheet, []byte(content), "budget.xlsx")

	// Then: one chunk per non-empty sheet, never sub-chunked
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Q1", chunks[0].SheetName)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "=== Sheet: Q1 ==="))
	assert.Greater(t, len(chunks[0].Text), 50)
	assert.Equal(t, "Q2", chunks[1].SheetName)
	assert.Contains(t, chunks[1].Text, "a,b")
}

func TestDispatcher_Spreadsheet_NoMarker(t *testing.T) {
	d := NewDispatcher(Options{}, nil)

	chunks, err := d.Split(context.Background(), Spreadsheet, []byte("a,b\n1,2\n"), "plain.csv")

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].SheetName)
	assert.Equal(t, "a,b\n1,2", chunks[0].Text)
}

func TestDispatcher_Image_NoEngine(t *testing.T) {
	_, err := NewDispatcher(Options{}, nil).Split(context.Background(), Image, []byte{0x89}, "scan.png")

	assert.ErrorIs(t, err, amerrors.ErrUnsupported)
}

func TestDispatcher_Image_RejectsNoise(t *testing.T) {
	// Given: OCR returning "##"
	engine := OCRFunc(func(context.Context, []byte) ([]OCRResult, error) {
		return []OCRResult{{Text: "##", Confidence: 0.9}}, nil
	})

	// When: splitting
	_, err := NewDispatcher(Options{}, engine).Split(context.Background(), Image, []byte("img"), "noise.png")

	// Then: rejected as unsupported
	assert.ErrorIs(t, err, amerrors.ErrUnsupported)
}

func TestDispatcher_Image_AcceptsMeaningfulText(t *testing.T) {
	// Given: three confident lines and one low-confidence region
	engine := OCRFunc(func(context.Context, []byte) ([]OCRResult, error) {
		return []OCRResult{
			{Text: "Invoice number 2026-0042 issued", Confidence: 0.9},
			{Text: "Total amount due is 1,250 euros", Confidence: 0.8},
			{Text: "garbled %%%", Confidence: 0.3},
			{Text: "Payment expected within 30 days", Confidence: 0.7},
		}, nil
	})

	chunks, err := NewDispatcher(Options{}, engine).Split(context.Background(), Image, []byte("img"), "invoice.png")

	// Then: one chunk with the mean accepted confidence
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, "garbled")
	assert.Equal(t, 3, strings.Count(chunks[0].Text, "\n")+1)
	require.NotNil(t, chunks[0].OCRConfidence)
	assert.InDelta(t, 0.8, *chunks[0].OCRConfidence, 1e-9)
}

func TestDispatcher_Image_EngineError(t *testing.T) {
	engine := OCRFunc(func(context.Context, []byte) ([]OCRResult, error) {
		return nil, errors.New("engine crashed")
	})

	_, err := NewDispatcher(Options{}, engine).Split(context.Background(), Image, nil, "x.png")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeChunkingFailed, amerrors.GetCode(err))
}

func TestValidateOCRText(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"hash marks", "##", false},
		{"short", "hello", false},
		{"symbols only", "#$%^&*()!@#$%^&*", false},
		{"low density", "a#$%^&*()!@#$%^&*()!@#$%^&*", false},
		{"fragment lines", "ab\ncd\nef\nThis line is long enough", false},
		{"three meaningful lines", "Meeting notes for Monday\nBudget review is postponed\nNext sync on the 14th", true},
		{"single sentence", "The contract was signed in March.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidateOCRText(tt.text)
			assert.Equal(t, tt.ok, ok, reason)
		})
	}
}
