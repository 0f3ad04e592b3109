package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amandocs/internal/service"
)

const snippetRunes = 600

// FormatSearchResults formats hits as markdown.
func FormatSearchResults(query string, hits []service.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, num int, h service.Hit) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, h.Path, h.Score)
	if h.Sheet != "" {
		fmt.Fprintf(sb, "**Sheet:** %s\n", h.Sheet)
	}
	if h.OCRConfidence != nil {
		fmt.Fprintf(sb, "**OCR confidence:** %.2f\n", *h.OCRConfidence)
	}
	if len(h.Keywords) > 0 {
		fmt.Fprintf(sb, "**Keywords:** %s\n", strings.Join(h.Keywords, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(truncate(h.Text, snippetRunes))
	sb.WriteString("\n\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// clampLimit returns limit bounded to [min, max], or defaultVal when unset.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
