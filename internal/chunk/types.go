// Package chunk splits decoded document content into overlapping, bounded
// text chunks. The strategy is chosen once per file from its Kind.
package chunk

// Chunk size defaults, counted in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunk is a retrievable unit of content.
type Chunk struct {
	Text       string // non-empty, trimmed
	SourcePath string
	SheetName  string // set for spreadsheet chunks
	// OCRConfidence is the mean confidence of accepted OCR regions, nil for non-image sources.
	OCRConfidence *float64
}

// Options bounds chunk length and the overlap carried between chunks.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// withDefaults fills zero values and clamps overlap below size.
func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 5
	}
	return o
}
