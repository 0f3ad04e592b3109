package chunk

import (
	"path/filepath"
	"strings"
)

// Kind selects the chunking strategy for a file.
type Kind int

const (
	Unsupported Kind = iota
	TextLike
	Spreadsheet
	Image
)

func (k Kind) String() string {
	switch k {
	case TextLike:
		return "text"
	case Spreadsheet:
		return "spreadsheet"
	case Image:
		return "image"
	default:
		return "unsupported"
	}
}

var kindByExtension = map[string]Kind{}

func register(kind Kind, exts ...string) {
	for _, ext := range exts {
		kindByExtension[ext] = kind
	}
}

func init() {
	register(TextLike,
		// prose and markup
		".txt", ".text", ".md", ".markdown", ".rst", ".log", ".html", ".htm", ".xml", ".tex", ".rtf",
		// data and config
		".json", ".jsonl", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".env", ".properties",
		// converted documents
		".eml", ".msg", ".pdf", ".doc", ".docx", ".odt", ".ppt", ".pptx", ".odp", ".epub",
		// code
		".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt", ".scala", ".c", ".h", ".cc",
		".cpp", ".hpp", ".cs", ".rb", ".rs", ".php", ".swift", ".sh", ".bash", ".sql", ".css",
		".scss", ".lua", ".r", ".pl",
	)
	register(Spreadsheet, ".csv", ".tsv", ".xls", ".xlsx", ".ods")
	register(Image, ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp")
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// KindFromExtension resolves the Kind for an extension such as "PDF" or ".pdf".
func KindFromExtension(ext string) Kind {
	return kindByExtension[NormalizeExtension(ext)]
}

// KindFromPath resolves the Kind from a file path's extension.
func KindFromPath(path string) Kind {
	return KindFromExtension(filepath.Ext(path))
}

// IsEmailExtension reports whether ext names an email message.
func IsEmailExtension(ext string) bool {
	switch NormalizeExtension(ext) {
	case ".eml", ".msg":
		return true
	}
	return false
}
