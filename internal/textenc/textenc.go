// Package textenc turns bytes of unknown encoding into valid UTF-8.
//
// The fallback chain is: valid UTF-8 as-is, UTF-16 when a byte order mark is
// present, Windows-1252, and finally ISO-8859-1, which maps every byte and
// therefore never fails.
package textenc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns b as UTF-8 text and the name of the encoding that was used.
func Decode(b []byte) (string, string) {
	if bytes.HasPrefix(b, utf8BOM) {
		b = b[len(utf8BOM):]
	}
	if utf8.Valid(b) {
		return string(b), "utf-8"
	}

	if len(b) >= 2 {
		switch {
		case b[0] == 0xFF && b[1] == 0xFE:
			if s, ok := try(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), b); ok {
				return s, "utf-16le"
			}
		case b[0] == 0xFE && b[1] == 0xFF:
			if s, ok := try(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), b); ok {
				return s, "utf-16be"
			}
		}
	}

	if s, ok := try(charmap.Windows1252, b); ok {
		return s, "windows-1252"
	}

	s, _ := try(charmap.ISO8859_1, b)
	return s, "iso-8859-1"
}

// Normalize repairs a string that may carry invalid UTF-8 sequences.
// Valid strings are returned unchanged.
func Normalize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, _ := Decode([]byte(s))
	return strings.ToValidUTF8(out, "�")
}

func try(enc encoding.Encoding, b []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}
