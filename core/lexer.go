package core

import (
	"bytes"
)

// TokenType represents the type of token
type TokenType int

const (
	TokenEOF         TokenType = iota
	TokenKeyword               // true, false, null, obj, endobj, stream, and other bare words
	TokenInteger               // 123
	TokenReal                  // 3.14
	TokenString                // (hello)
	TokenHexString             // <48656C6C6F>
	TokenName                  // /Type
	TokenArrayStart            // [
	TokenArrayEnd              // ]
	TokenDictStart             // <<
	TokenDictEnd               // >>
	TokenProcStart             // {
	TokenProcEnd               // }
	TokenIndirectRef           // R (after two numbers)
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenKeyword:
		return "Keyword"
	case TokenInteger:
		return "Integer"
	case TokenReal:
		return "Real"
	case TokenString:
		return "String"
	case TokenHexString:
		return "HexString"
	case TokenName:
		return "Name"
	case TokenArrayStart:
		return "ArrayStart"
	case TokenArrayEnd:
		return "ArrayEnd"
	case TokenDictStart:
		return "DictStart"
	case TokenDictEnd:
		return "DictEnd"
	case TokenProcStart:
		return "ProcStart"
	case TokenProcEnd:
		return "ProcEnd"
	case TokenIndirectRef:
		return "IndirectRef"
	default:
		return "Unknown"
	}
}

// Token represents a lexical token.
//
// Value holds the decoded payload: the bytes of a string or hex string, the
// name without the slash and with #HH escapes resolved, or the raw text of a
// number or keyword. Pos and End delimit the token in the input.
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int
	End   int
}

// Lexer performs lexical analysis of PDF content held in memory.
// Comments are skipped like whitespace.
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer creates a new lexer at the start of data.
func NewLexer(data []byte) *Lexer {
	return &Lexer{data: data}
}

// NewLexerAt creates a new lexer starting at offset pos of data.
func NewLexerAt(data []byte, pos int) *Lexer {
	return &Lexer{data: data, pos: pos}
}

// Pos returns the offset of the next unread byte.
func (l *Lexer) Pos() int { return l.pos }

// SetPos moves the lexer to offset pos.
func (l *Lexer) SetPos(pos int) { l.pos = pos }

// Data returns the input the lexer reads.
func (l *Lexer) Data() []byte { return l.data }

// NextToken returns the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	l.SkipWhitespace()
	if l.pos >= len(l.data) {
		return Token{Type: TokenEOF, Pos: l.pos, End: l.pos}, nil
	}

	start := l.pos
	b := l.data[l.pos]
	switch b {
	case '[':
		l.pos++
		return Token{Type: TokenArrayStart, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
	case ']':
		l.pos++
		return Token{Type: TokenArrayEnd, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
	case '{':
		l.pos++
		return Token{Type: TokenProcStart, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
	case '}':
		l.pos++
		return Token{Type: TokenProcEnd, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
	case '(':
		return l.readString()
	case ')':
		return Token{}, parseErrorf(start, "unexpected ')'")
	case '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return Token{Type: TokenDictStart, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
		}
		return l.readHexString()
	case '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return Token{Type: TokenDictEnd, Value: l.data[start:l.pos], Pos: start, End: l.pos}, nil
		}
		if l.pos+1 >= len(l.data) {
			return Token{}, truncatedf(start, "'>' at end of input")
		}
		return Token{}, parseErrorf(start, "unexpected '>'")
	case '/':
		return l.readName()
	}
	return l.readRegular()
}

// SkipWhitespace skips whitespace and comments.
func (l *Lexer) SkipWhitespace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if IsWhitespace(b) {
			l.pos++
			continue
		}
		if b != '%' {
			return
		}
		for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
			l.pos++
		}
	}
}

// readString reads a literal string (hello)
func (l *Lexer) readString() (Token, error) {
	start := l.pos
	s, end, err := ParseString(l.data, start)
	if err != nil {
		return Token{}, err
	}
	l.pos = end
	return Token{Type: TokenString, Value: s, Pos: start, End: end}, nil
}

// ParseString decodes the literal string starting at data[start], which
// must be '('. It returns the decoded bytes and the offset after the
// closing parenthesis.
//
// Escapes \n \r \t \b \f \( \) \\ and 1 to 3 octal digits are decoded; a
// backslash before LF, CR or CRLF splices the line; raw CR and CRLF become
// LF; an unknown escape drops the backslash.
func ParseString(data []byte, start int) ([]byte, int, error) {
	if start >= len(data) || data[start] != '(' {
		return nil, start, parseErrorf(start, "expected '('")
	}
	var buf []byte
	i := start + 1
	depth := 1
	for {
		if i >= len(data) {
			return nil, i, truncatedf(start, "unterminated string")
		}
		b := data[i]
		i++
		switch b {
		case '(':
			depth++
			buf = append(buf, b)
		case ')':
			depth--
			if depth == 0 {
				if buf == nil {
					buf = []byte{}
				}
				return buf, i, nil
			}
			buf = append(buf, b)
		case '\r':
			buf = append(buf, '\n')
			if i < len(data) && data[i] == '\n' {
				i++
			}
		case '\\':
			if i >= len(data) {
				return nil, i, truncatedf(start, "unterminated string escape")
			}
			next := data[i]
			i++
			switch next {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\n':
			case '\r':
				if i < len(data) && data[i] == '\n' {
					i++
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := int(next - '0')
				for n := 0; n < 2 && i < len(data) && isOctalDigit(data[i]); n++ {
					val = val*8 + int(data[i]-'0')
					i++
				}
				buf = append(buf, byte(val))
			default:
				buf = append(buf, next)
			}
		default:
			buf = append(buf, b)
		}
	}
}

// readHexString reads a hexadecimal string <48656C6C6F>
func (l *Lexer) readHexString() (Token, error) {
	start := l.pos
	s, end, err := ParseHexString(l.data, start)
	if err != nil {
		return Token{}, err
	}
	l.pos = end
	return Token{Type: TokenHexString, Value: s, Pos: start, End: end}, nil
}

// ParseHexString decodes the hex string starting at data[start], which must
// be '<'. Whitespace between digits is ignored and an odd digit count is
// padded with a trailing 0.
func ParseHexString(data []byte, start int) ([]byte, int, error) {
	if start >= len(data) || data[start] != '<' {
		return nil, start, parseErrorf(start, "expected '<'")
	}
	buf := []byte{}
	var hi byte
	half := false
	for i := start + 1; ; i++ {
		if i >= len(data) {
			return nil, i, truncatedf(start, "unterminated hex string")
		}
		b := data[i]
		if b == '>' {
			if half {
				buf = append(buf, hi<<4)
			}
			return buf, i + 1, nil
		}
		if IsWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return nil, i, parseErrorf(i, "invalid hex digit %q", b)
		}
		if half {
			buf = append(buf, hi<<4|hexValue(b))
		} else {
			hi = hexValue(b)
		}
		half = !half
	}
}

// readName reads a name object /Type
func (l *Lexer) readName() (Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenName, Value: DecodeName(l.data[start+1 : l.pos]), Pos: start, End: l.pos}, nil
}

// DecodeName resolves #HH escapes in the body of a name (without the
// leading slash). A '#' not followed by two hex digits stays literal.
func DecodeName(raw []byte) []byte {
	if bytes.IndexByte(raw, '#') < 0 {
		return raw
	}
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b == '#' && i+2 < len(raw) && isHexDigit(raw[i+1]) && isHexDigit(raw[i+2]) {
			buf = append(buf, hexValue(raw[i+1])<<4|hexValue(raw[i+2]))
			i += 2
			continue
		}
		buf = append(buf, b)
	}
	return buf
}

// readRegular reads a run of regular characters and classifies it as a
// number or a keyword.
func (l *Lexer) readRegular() (Token, error) {
	start := l.pos
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		l.pos++
	}
	value := l.data[start:l.pos]
	tok := Token{Value: value, Pos: start, End: l.pos}
	switch {
	case isInteger(value):
		tok.Type = TokenInteger
	case isReal(value):
		tok.Type = TokenReal
	case len(value) == 1 && value[0] == 'R':
		tok.Type = TokenIndirectRef
	default:
		tok.Type = TokenKeyword
	}
	return tok, nil
}

func isInteger(b []byte) bool {
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		b = b[1:]
	}
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !isDigit(c) {
			return false
		}
	}
	return true
}

// isReal also accepts a lone '.', a malformed number some producers write
// for zero.
func isReal(b []byte) bool {
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		b = b[1:]
	}
	dots := 0
	for _, c := range b {
		switch {
		case isDigit(c):
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return dots == 1
}

// Helper functions

// IsWhitespace reports whether b is PDF whitespace: NUL, TAB, LF, FF, CR or space.
func IsWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

// IsDelimiter reports whether b is one of ( ) < > [ ] { } / %.
func IsDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

// IsRegular reports whether b is neither whitespace nor a delimiter.
func IsRegular(b byte) bool {
	return !IsWhitespace(b) && !IsDelimiter(b)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	if b >= '0' && b <= '9' {
		return b - '0'
	}
	if b >= 'a' && b <= 'f' {
		return b - 'a' + 10
	}
	if b >= 'A' && b <= 'F' {
		return b - 'A' + 10
	}
	return 0
}
