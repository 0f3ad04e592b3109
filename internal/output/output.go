// Package output formats CLI results as aligned tables on a terminal and as
// JSON everywhere else.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
)

// Mode selects how results are rendered.
type Mode int

const (
	// ModeAuto picks ModeTable on a terminal and ModeJSON otherwise.
	ModeAuto Mode = iota
	ModeTable
	ModeJSON
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out  io.Writer
	json bool
}

// New creates a Writer. ModeAuto checks whether out is a terminal.
func New(out io.Writer, mode Mode) *Writer {
	useJSON := mode == ModeJSON
	if mode == ModeAuto {
		useJSON = !IsTTY(out)
	}
	return &Writer{out: out, json: useJSON}
}

// IsTTY checks if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// JSONMode reports whether results are rendered as JSON.
func (w *Writer) JSONMode() bool {
	return w.json
}

// Status prints a status message with an icon. Suppressed in JSON mode so
// stdout stays machine-readable.
func (w *Writer) Status(icon, msg string) {
	if w.json {
		return
	}
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	if !w.json {
		_, _ = fmt.Fprintln(w.out)
	}
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result renders v as JSON in JSON mode, otherwise calls table.
func (w *Writer) Result(v any, table func(*Table)) error {
	if w.json {
		return w.JSON(v)
	}
	t := &Table{}
	table(t)
	return t.render(w.out)
}

// Table collects rows for tab-aligned rendering.
type Table struct {
	header []string
	rows   [][]string
	empty  string
}

// Header sets the column titles.
func (t *Table) Header(cols ...string) {
	t.header = cols
}

// Row appends one row. Values are formatted with %v.
func (t *Table) Row(vals ...any) {
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = fmt.Sprint(v)
	}
	t.rows = append(t.rows, row)
}

// Empty sets the message printed when there are no rows.
func (t *Table) Empty(msg string) {
	t.empty = msg
}

func (t *Table) render(out io.Writer) error {
	if len(t.rows) == 0 && t.empty != "" {
		_, err := fmt.Fprintln(out, t.empty)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if len(t.header) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	}
	for _, r := range t.rows {
		_, _ = fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}
