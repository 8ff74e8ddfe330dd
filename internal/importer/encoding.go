package importer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeContent converts raw CSV bytes to a UTF-8 string, trying encodings
// in order: UTF-8 (with or without BOM), Shift-JIS, EUC-JP. The first clean
// decode wins; a decode that produced replacement characters is treated as
// a failure and the next candidate is tried.
func decodeContent(data []byte) (content string, encoding string, err error) {
	trimmed := bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(trimmed) {
		return string(trimmed), "utf-8", nil
	}

	candidates := []struct {
		name string
		dec  interface {
			Bytes([]byte) ([]byte, error)
		}
	}{
		{"shift-jis", japanese.ShiftJIS.NewDecoder()},
		{"euc-jp", japanese.EUCJP.NewDecoder()},
	}

	for _, c := range candidates {
		decoded, decErr := c.dec.Bytes(data)
		if decErr != nil {
			continue
		}
		// The decoders substitute U+FFFD instead of erroring on bytes
		// that are not of the encoding; treat any substitution as a miss.
		if strings.ContainsRune(string(decoded), utf8.RuneError) {
			continue
		}
		return string(decoded), c.name, nil
	}

	return "", "", fmt.Errorf("could not detect CSV encoding")
}
