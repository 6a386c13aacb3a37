package filters

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
)

// ASCIIHexDecode decodes ASCII hexadecimal encoded data. Whitespace is
// ignored, '>' marks the end of data and an odd final digit is padded
// with 0.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2)
	var hi byte
	half := false
	for _, c := range data {
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		v, err := hexDigitToByte(c)
		if err != nil {
			return nil, err
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, nil
}

// ASCII85Decode decodes ASCII base-85 data. Whitespace and an optional
// leading "<~" are ignored and "~>" marks the end of data.
func ASCII85Decode(data []byte) ([]byte, error) {
	clean := make([]byte, 0, len(data))
	for _, c := range data {
		if !isWhitespace(c) {
			clean = append(clean, c)
		}
	}
	clean = bytes.TrimPrefix(clean, []byte("<~"))
	if end := bytes.Index(clean, []byte("~>")); end >= 0 {
		clean = clean[:end]
	}
	for _, c := range clean {
		if c != 'z' && (c < '!' || c > 'u') {
			return nil, fmt.Errorf("invalid ASCII85 character: %c", c)
		}
	}

	out := make([]byte, 4*len(clean)/5+4*bytes.Count(clean, []byte{'z'})+4)
	n, _, err := ascii85.Decode(out, clean, true)
	if err != nil {
		return nil, fmt.Errorf("ascii85: %w", err)
	}
	return out[:n], nil
}

// hexDigitToByte converts a hexadecimal character to its numeric value (0-15).
func hexDigitToByte(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %c", c)
	}
}

// isWhitespace reports whether c is a PDF whitespace character.
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}
