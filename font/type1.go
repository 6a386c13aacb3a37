package font

import (
	"bytes"
	"encoding/hex"

	tokenizer "github.com/benoitkugler/pstokenizer"
	"github.com/pkg/errors"
)

// ErrInvalidType1 reports a Type1 font program that cannot be inspected.
var ErrInvalidType1 = errors.New("invalid Type1 font program")

// Type1Info describes an embedded Type1 font program (/FontFile).
type Type1Info struct {
	FontName   string
	FontType   int
	GlyphNames []string // in /CharStrings order
}

const (
	eexecKey     = 55665
	eexecC1      = 52845
	eexecC2      = 22719
	eexecSkipped = 4
)

// InspectType1 reads the font name from the clear text part of a Type1
// program and the glyph names from its eexec-encrypted part. length1 and
// length2 are the /Length1 and /Length2 of the font file stream; a
// non-positive length1 makes the clear text end after the eexec keyword
// and a non-positive length2 makes the encrypted part run to the end.
func InspectType1(program []byte, length1, length2 int) (*Type1Info, error) {
	if length1 <= 0 || length1 > len(program) {
		i := bytes.Index(program, []byte("eexec"))
		if i < 0 {
			return nil, errors.Wrap(ErrInvalidType1, "missing eexec")
		}
		length1 = i + len("eexec")
	}
	encrypted := program[length1:]
	if length2 > 0 && length2 < len(encrypted) {
		encrypted = encrypted[:length2]
	}

	info := &Type1Info{}
	tk := tokenizer.NewTokenizer(program[:length1])
	for info.FontName == "" || info.FontType == 0 {
		tok, err := tk.NextToken()
		if err != nil || tok.Kind == tokenizer.EOF {
			break
		}
		key := string(tok.Value)
		if tok.Kind != tokenizer.Name || (key != "FontName" && key != "FontType") {
			continue
		}
		next, err := tk.PeekToken()
		if err != nil {
			break
		}
		switch {
		case key == "FontName" && next.Kind == tokenizer.Name:
			info.FontName = string(next.Value)
		case key == "FontType" && next.Kind == tokenizer.Integer:
			info.FontType, _ = next.Int()
		}
	}
	if info.FontName == "" {
		return nil, errors.Wrap(ErrInvalidType1, "missing /FontName")
	}

	private := DecryptEexec(encrypted)
	names, err := charStringNames(private)
	if err != nil {
		return nil, err
	}
	info.GlyphNames = names
	return info, nil
}

// DecryptEexec decrypts the eexec section of a Type1 program, in binary
// or hex form, and drops the leading random bytes.
func DecryptEexec(data []byte) []byte {
	data = bytes.TrimLeft(data, "\x00\t\n\f\r ")
	if isHexSection(data) {
		clean := make([]byte, 0, len(data))
		for _, c := range data {
			if _, ok := tokenizer.IsHexChar(c); ok {
				clean = append(clean, c)
			}
		}
		decoded := make([]byte, len(clean)/2)
		if n, err := hex.Decode(decoded, clean[:len(decoded)*2]); err == nil {
			data = decoded[:n]
		}
	}

	r := uint16(eexecKey)
	out := make([]byte, len(data))
	for i, c := range data {
		out[i] = c ^ byte(r>>8)
		r = (uint16(c)+r)*eexecC1 + eexecC2
	}
	if len(out) < eexecSkipped {
		return nil
	}
	return out[eexecSkipped:]
}

func isHexSection(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	for _, c := range data[:4] {
		if _, ok := tokenizer.IsHexChar(c); !ok {
			return false
		}
	}
	return true
}

// charStringNames lists the keys of the /CharStrings dictionary in the
// decrypted private part.
func charStringNames(private []byte) ([]string, error) {
	i := bytes.Index(private, []byte("/CharStrings"))
	if i < 0 {
		return nil, errors.Wrap(ErrInvalidType1, "missing /CharStrings")
	}
	tk := tokenizer.NewTokenizer(private[i:])
	begun := false
	var names []string
	var prev tokenizer.Token
	for {
		tok, err := tk.NextToken()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidType1, "charstrings: %v", err)
		}
		if tok.Kind == tokenizer.EOF {
			if !begun {
				return nil, errors.Wrap(ErrInvalidType1, "charstrings dictionary not started")
			}
			return names, nil
		}
		if tok.Kind == tokenizer.Other {
			switch string(tok.Value) {
			case "begin":
				begun = true
			case "end":
				if begun {
					return names, nil
				}
			case "RD", "-|":
				// Binary charstring data follows a single space.
				if prev.Kind == tokenizer.Integer {
					n, _ := prev.Int()
					tk.SkipBytes(n + 1)
				}
			}
		}
		if begun && tok.Kind == tokenizer.Name {
			if next, err := tk.PeekToken(); err == nil && next.Kind == tokenizer.Integer {
				names = append(names, string(tok.Value))
			}
		}
		prev = tok
	}
}
