// Package source reads source files by trying an ordered list of text encodings.
package source

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/odvcencio/pybundle/pkg/model"
)

// DefaultEncodings is the order the bundler tries when decoding a file.
var DefaultEncodings = []string{"utf-8", "latin-1", "cp1252"}

type decoder func([]byte) (string, bool)

var decoders = map[string]decoder{
	"utf-8":        decodeUTF8,
	"latin-1":      charmapDecoder(charmap.ISO8859_1),
	"iso-8859-1":   charmapDecoder(charmap.ISO8859_1),
	"cp1252":       charmapDecoder(charmap.Windows1252),
	"windows-1252": charmapDecoder(charmap.Windows1252),
}

// ValidateEncodings reports unknown encoding names.
func ValidateEncodings(names []string) error {
	for _, name := range names {
		if _, ok := decoders[normalizeName(name)]; !ok {
			return fmt.Errorf("unsupported encoding %q", name)
		}
	}
	return nil
}

// ReadFile returns the content of path decoded with the first encoding that
// accepts it. A nil or empty encodings list means DefaultEncodings.
func ReadFile(path string, encodings []string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Decode(path, raw, encodings)
}

// Decode is ReadFile without the file system access.
func Decode(path string, raw []byte, encodings []string) (string, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	for _, name := range encodings {
		decode, ok := decoders[normalizeName(name)]
		if !ok {
			return "", fmt.Errorf("unsupported encoding %q", name)
		}
		if text, ok := decode(raw); ok {
			return text, nil
		}
	}
	return "", &model.DecodeError{Path: path, Encodings: append([]string(nil), encodings...)}
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	if name == "utf8" {
		return "utf-8"
	}
	if name == "latin1" {
		return "latin-1"
	}
	return name
}

func decodeUTF8(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	return strings.TrimPrefix(string(raw), "\ufeff"), true
}

// charmapDecoder rejects bytes the code page leaves undefined instead of
// mapping them to U+FFFD.
func charmapDecoder(cm *charmap.Charmap) decoder {
	return func(raw []byte) (string, bool) {
		var builder strings.Builder
		builder.Grow(len(raw))
		for _, b := range raw {
			r := cm.DecodeByte(b)
			if r == utf8.RuneError {
				return "", false
			}
			builder.WriteRune(r)
		}
		return builder.String(), true
	}
}
