package core

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
)

// FormatNumber canonicalizes the text of a PDF integer or real: no sign
// for positive values, no leading zeros, no trailing fraction zeros, no
// trailing '.', and "0" for every form of zero. It returns false if text is
// not a number.
func FormatNumber(text []byte) ([]byte, bool) {
	if !isInteger(text) && !isReal(text) {
		return nil, false
	}
	neg := false
	if text[0] == '-' || text[0] == '+' {
		neg = text[0] == '-'
		text = text[1:]
	}
	ip, fp := text, []byte(nil)
	if dot := bytes.IndexByte(text, '.'); dot >= 0 {
		ip, fp = text[:dot], text[dot+1:]
	}
	ip = bytes.TrimLeft(ip, "0")
	fp = bytes.TrimRight(fp, "0")
	if len(ip) == 0 && len(fp) == 0 {
		return []byte{'0'}, true
	}
	out := make([]byte, 0, len(ip)+len(fp)+2)
	if neg {
		out = append(out, '-')
	}
	out = append(out, ip...)
	if len(fp) > 0 {
		out = append(out, '.')
		out = append(out, fp...)
	}
	return out, true
}

// FormatReal formats f in canonical decimal notation without an exponent.
func FormatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	out, _ := FormatNumber([]byte(strconv.FormatFloat(f, 'f', -1, 64)))
	return string(out)
}

// EscapeName returns the body of a name (without the slash) with every
// byte that cannot appear literally written as #XX.
func EscapeName(name []byte) []byte {
	n := 0
	for _, b := range name {
		if nameNeedsEscape(b) {
			n++
		}
	}
	if n == 0 {
		return name
	}
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(name)+2*n)
	for _, b := range name {
		if nameNeedsEscape(b) {
			out = append(out, '#', digits[b>>4], digits[b&15])
			continue
		}
		out = append(out, b)
	}
	return out
}

func nameNeedsEscape(b byte) bool {
	return b < 0x21 || b > 0x7e || b == '#' || IsDelimiter(b)
}

// HexString returns s as a lowercase hex string <...>.
func HexString(s []byte) []byte {
	out := make([]byte, 0, 2*len(s)+2)
	out = append(out, '<')
	out = hex.AppendEncode(out, s)
	return append(out, '>')
}

// FormatString returns the shorter of the literal and hex forms of s,
// preferring the literal form on a tie.
func FormatString(s []byte) []byte {
	lit := EscapeString(s)
	if len(lit) <= 2*len(s)+2 {
		return lit
	}
	return HexString(s)
}

// EscapeString returns s as a literal string (...). Backslashes are always
// escaped and CR is written as \r. Parentheses are left unescaped as long
// as they stay balanced: while scanning, an open parenthesis is escaped
// once the close parentheses still to come cannot match it, and a close
// parenthesis is escaped when no open one is pending.
func EscapeString(s []byte) []byte {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '(')
	opens := bytes.Count(s, []byte{'('})
	closes := bytes.Count(s, []byte{')'})
	if opens == 0 || closes == 0 {
		for _, b := range s {
			switch b {
			case '\\', '(', ')':
				out = append(out, '\\', b)
			case '\r':
				out = append(out, '\\', 'r')
			default:
				out = append(out, b)
			}
		}
		return append(out, ')')
	}
	depth, closeRemaining := 0, closes
	for _, b := range s {
		switch b {
		case '\\':
			out = append(out, '\\', '\\')
		case '\r':
			out = append(out, '\\', 'r')
		case '(':
			if closeRemaining <= depth {
				out = append(out, '\\', '(')
			} else {
				depth++
				out = append(out, '(')
			}
		case ')':
			closeRemaining--
			if depth == 0 {
				out = append(out, '\\', ')')
			} else {
				depth--
				out = append(out, ')')
			}
		default:
			out = append(out, b)
		}
	}
	return append(out, ')')
}

// CompressOptions controls CompressValue.
type CompressOptions struct {
	// MapRef, if set, gives the new object number for each reference. A
	// false result replaces the reference with null. Mapped references are
	// always written with generation 0.
	MapRef func(num int) (int, bool)

	// Refs, if set, receives the object number of every reference in order
	// of appearance, before mapping.
	Refs *[]int

	// StringsAsHex writes every string in hex form.
	StringsAsHex bool
}

// PlaceholderRefs maps every reference to 0 0 R.
func PlaceholderRefs(int) (int, bool) { return 0, true }

// CompressValue returns the shortest equivalent form of the PDF value (or
// sequence of tokens) in data: comments and redundant whitespace removed,
// numbers and names canonical, strings in their shorter form unless
// opts.StringsAsHex is set, and references mapped through opts.MapRef.
func CompressValue(data []byte, opts *CompressOptions) ([]byte, error) {
	if opts == nil {
		opts = &CompressOptions{}
	}
	toks, err := tokenize(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if num, gen, ok := refAt(toks, i); ok {
			if opts.Refs != nil {
				*opts.Refs = append(*opts.Refs, num)
			}
			var ref []byte
			if opts.MapRef == nil {
				ref = []byte(IndirectRef{Number: num, Generation: gen}.String())
			} else if n, ok := opts.MapRef(num); ok {
				ref = []byte(IndirectRef{Number: n}.String())
			} else {
				ref = []byte("null")
			}
			out = appendToken(out, ref)
			i += 2
			continue
		}
		out = appendToken(out, formatToken(tok, opts.StringsAsHex))
	}
	return out, nil
}

func tokenize(data []byte) ([]Token, error) {
	l := NewLexer(data)
	var toks []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

// refAt reports whether toks[i:i+3] is an unsigned "n g R" reference.
func refAt(toks []Token, i int) (int, int, bool) {
	if i+2 >= len(toks) || toks[i+2].Type != TokenIndirectRef {
		return 0, 0, false
	}
	num, ok1 := unsignedInt(toks[i])
	gen, ok2 := unsignedInt(toks[i+1])
	return num, gen, ok1 && ok2
}

func unsignedInt(tok Token) (int, bool) {
	if tok.Type != TokenInteger || !isDigit(tok.Value[0]) {
		return 0, false
	}
	n, err := strconv.Atoi(string(tok.Value))
	return n, err == nil
}

func formatToken(tok Token, stringsAsHex bool) []byte {
	switch tok.Type {
	case TokenInteger, TokenReal:
		out, _ := FormatNumber(tok.Value)
		return out
	case TokenString, TokenHexString:
		if stringsAsHex {
			return HexString(tok.Value)
		}
		return FormatString(tok.Value)
	case TokenName:
		return append([]byte{'/'}, EscapeName(tok.Value)...)
	}
	return tok.Value
}

func appendToken(buf, tok []byte) []byte {
	if len(tok) > 0 && needsSpace(buf, tok[0]) {
		buf = append(buf, ' ')
	}
	return append(buf, tok...)
}

// RewriteToParsable parses the single PDF value starting at data[start]
// and returns it in a canonical form where every token is preceded by one
// space, strings are lowercase hex, names are escaped, numbers are trimmed
// and references are written as " n g R". It also returns the offset just
// after the value.
func RewriteToParsable(data []byte, start int) ([]byte, int, error) {
	p := NewParserAt(data, start)
	var out []byte
	if err := p.rewriteValue(&out); err != nil {
		return nil, p.Pos(), err
	}
	return out, p.Pos(), nil
}

func (p *Parser) rewriteValue(out *[]byte) error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	switch tok.Type {
	case TokenEOF:
		return truncatedf(tok.Pos, "value expected")
	case TokenInteger:
		if num, gen, ok := p.refAhead(tok); ok {
			*out = append(*out, ' ')
			*out = append(*out, IndirectRef{Number: num, Generation: gen}.String()...)
			return nil
		}
		fallthrough
	case TokenReal:
		n, _ := FormatNumber(tok.Value)
		*out = append(append(*out, ' '), n...)
	case TokenString, TokenHexString:
		*out = append(append(*out, ' '), HexString(tok.Value)...)
	case TokenName:
		*out = append(append(*out, ' ', '/'), EscapeName(tok.Value)...)
	case TokenKeyword:
		switch string(tok.Value) {
		case "true", "false", "null":
			*out = append(append(*out, ' '), tok.Value...)
		default:
			return parseErrorf(tok.Pos, "unexpected keyword %q", tok.Value)
		}
	case TokenArrayStart:
		*out = append(*out, ' ', '[')
		for {
			next, err := p.peek(0)
			if err != nil {
				return err
			}
			if next.Type == TokenArrayEnd {
				p.next()
				*out = append(*out, ' ', ']')
				return nil
			}
			if err := p.rewriteValue(out); err != nil {
				return err
			}
		}
	case TokenDictStart:
		*out = append(*out, ' ', '<', '<')
		for {
			key, err := p.next()
			if err != nil {
				return err
			}
			switch key.Type {
			case TokenDictEnd:
				*out = append(*out, ' ', '>', '>')
				return nil
			case TokenName:
				*out = append(append(*out, ' ', '/'), EscapeName(key.Value)...)
			case TokenEOF:
				return truncatedf(key.Pos, "unterminated dictionary")
			default:
				return parseErrorf(key.Pos, "dictionary key expected, got %v", key.Type)
			}
			next, err := p.peek(0)
			if err != nil {
				return err
			}
			if next.Type == TokenDictEnd {
				return parseErrorf(next.Pos, "dictionary value expected")
			}
			if err := p.rewriteValue(out); err != nil {
				return err
			}
		}
	default:
		return parseErrorf(tok.Pos, "unexpected %v", tok.Type)
	}
	return nil
}
