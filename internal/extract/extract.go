// Package extract turns files on disk into text the chunker can split.
//
// The default extractor covers plain text, code, email (.eml) and delimited
// spreadsheets (.csv, .tsv). Binary office and PDF formats need an external
// converter plugged in through the Extractor interface.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amandocs/internal/chunk"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/textenc"
)

// MaxFileSize caps how much of a single file is read.
const MaxFileSize = 64 << 20

// Content types reported by the default extractor.
const (
	ContentTypeText  = "text/plain"
	ContentTypeEmail = "message/rfc822"
	ContentTypeSheet = "text/x-sheet"
	ContentTypeImage = "image"
)

// Content is the extracted form of one file.
type Content struct {
	ContentType string
	Text        string
	// Data holds raw bytes for images, which are handed to OCR.
	Data []byte
	// Headers carries structured metadata such as email Subject/From/To/Date.
	Headers map[string]string
	// Encoding is the detected source text encoding.
	Encoding string
}

// Extractor reads a file and returns its content.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Content, error)
}

// Default is the built-in extractor.
type Default struct{}

// NewDefault returns the built-in extractor.
func NewDefault() *Default {
	return &Default{}
}

// Extract reads path and converts it according to its extension.
func (d *Default) Extract(ctx context.Context, path string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := chunk.NormalizeExtension(filepath.Ext(path))
	kind := chunk.KindFromExtension(ext)
	if kind == chunk.Unsupported {
		return nil, amerrors.UnsupportedInput("unsupported file extension " + ext).WithDetail("path", path)
	}
	if needsConverter(ext) {
		return nil, amerrors.UnsupportedInput(fmt.Sprintf("no converter configured for %s files", ext)).
			WithDetail("path", path)
	}

	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	switch {
	case kind == chunk.Image:
		return &Content{ContentType: ContentTypeImage, Data: data}, nil
	case kind == chunk.Spreadsheet:
		return extractDelimited(path, ext, data)
	case chunk.IsEmailExtension(ext):
		return extractEmail(data)
	default:
		text, enc := textenc.Decode(data)
		return &Content{ContentType: ContentTypeText, Text: text, Encoding: enc}, nil
	}
}

// needsConverter lists binary formats the default extractor cannot read.
func needsConverter(ext string) bool {
	switch ext {
	case ".pdf", ".doc", ".docx", ".odt", ".ppt", ".pptx", ".odp", ".epub", ".msg", ".rtf",
		".xls", ".xlsx", ".ods":
		return true
	}
	return false
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, amerrors.FileNotFound(path)
		}
		return nil, amerrors.New(amerrors.ErrCodeFilePermission, "cannot open "+path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return nil, amerrors.UnsupportedInput(fmt.Sprintf("%s exceeds %d bytes", path, MaxFileSize))
	}
	return data, nil
}

// extractDelimited renders a CSV/TSV file as a single sheet block named
// after the file.
func extractDelimited(path, ext string, data []byte) (*Content, error) {
	text, enc := textenc.Decode(data)

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if ext == ".tsv" {
		r.Comma = '\t'
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	sb.WriteString(chunk.SheetMarker(name))
	sb.WriteByte('\n')

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, amerrors.UnsupportedInput(fmt.Sprintf("malformed %s: %v", ext, err)).WithDetail("path", path)
		}
		sb.WriteString(strings.Join(record, " | "))
		sb.WriteByte('\n')
	}

	return &Content{ContentType: ContentTypeSheet, Text: sb.String(), Encoding: enc}, nil
}

// extractEmail parses RFC 5322 headers and the first text/plain body part.
func extractEmail(data []byte) (*Content, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		// Not a parseable message: fall back to plain text.
		text, enc := textenc.Decode(data)
		return &Content{ContentType: ContentTypeText, Text: text, Encoding: enc}, nil
	}

	dec := new(mime.WordDecoder)
	headers := make(map[string]string, 4)
	for _, key := range []string{"Subject", "From", "To", "Date"} {
		v := msg.Header.Get(key)
		if decoded, err := dec.DecodeHeader(v); err == nil {
			v = decoded
		}
		if v != "" {
			headers[key] = v
		}
	}

	body, err := emailBody(msg)
	if err != nil {
		return nil, amerrors.UnsupportedInput("unreadable email body: " + err.Error())
	}
	text, enc := textenc.Decode(body)

	return &Content{ContentType: ContentTypeEmail, Text: text, Headers: headers, Encoding: enc}, nil
}

func emailBody(msg *mail.Message) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return io.ReadAll(msg.Body)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var fallback []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		body, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		switch {
		case partType == "text/plain" || partType == "":
			return body, nil
		case partType == "text/html" && fallback == nil:
			fallback = body
		}
	}
	return fallback, nil
}
