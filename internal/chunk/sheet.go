package chunk

import (
	"regexp"
	"strings"
)

// sheetMarker matches the line that opens each sheet block.
var sheetMarker = regexp.MustCompile(`(?m)^=== Sheet: (.*?) ===[ \t]*$`)

// SheetMarker renders the marker line for a sheet name.
func SheetMarker(name string) string {
	return "=== Sheet: " + name + " ==="
}

// splitSheets returns one chunk per sheet block. Sheets are never
// sub-chunked. Text before the first marker, or text with no marker at all,
// becomes a chunk without a sheet name.
func splitSheets(text, sourcePath string) []Chunk {
	locs := sheetMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			return []Chunk{{Text: body, SourcePath: sourcePath}}
		}
		return nil
	}

	var chunks []Chunk
	if lead := strings.TrimSpace(text[:locs[0][0]]); lead != "" {
		chunks = append(chunks, Chunk{Text: lead, SourcePath: sourcePath})
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		name := strings.TrimSpace(text[loc[2]:loc[3]])
		// empty sheets carry nothing worth retrieving
		if strings.TrimSpace(text[loc[1]:end]) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:       strings.TrimSpace(text[loc[0]:end]),
			SourcePath: sourcePath,
			SheetName:  name,
		})
	}
	return chunks
}
