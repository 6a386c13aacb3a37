package core

import (
	"bytes"
	"strconv"
)

// Parser parses PDF values from an in-memory buffer using a Lexer for
// tokenization. It keeps a small lookahead so that "n g R" references can be
// told apart from plain integers.
type Parser struct {
	lexer *Lexer
	ahead []Token
	end   int
}

// NewParser creates a parser at the start of data.
func NewParser(data []byte) *Parser {
	return NewParserAt(data, 0)
}

// NewParserAt creates a parser starting at offset pos of data.
func NewParserAt(data []byte, pos int) *Parser {
	return &Parser{lexer: NewLexerAt(data, pos), end: pos}
}

// Pos returns the offset just after the last consumed token.
func (p *Parser) Pos() int { return p.end }

func (p *Parser) next() (Token, error) {
	if len(p.ahead) > 0 {
		tok := p.ahead[0]
		p.ahead = p.ahead[1:]
		p.end = tok.End
		return tok, nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return tok, err
	}
	p.end = tok.End
	return tok, nil
}

func (p *Parser) peek(n int) (Token, error) {
	for len(p.ahead) <= n {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return tok, err
		}
		p.ahead = append(p.ahead, tok)
	}
	return p.ahead[n], nil
}

// refAhead consumes the rest of an "n g R" reference whose first token is
// tok, if the following tokens complete one.
func (p *Parser) refAhead(tok Token) (int, int, bool) {
	num, ok := unsignedInt(tok)
	if !ok {
		return 0, 0, false
	}
	t1, err := p.peek(0)
	if err != nil {
		return 0, 0, false
	}
	gen, ok := unsignedInt(t1)
	if !ok {
		return 0, 0, false
	}
	t2, err := p.peek(1)
	if err != nil || t2.Type != TokenIndirectRef {
		return 0, 0, false
	}
	p.next()
	p.next()
	return num, gen, true
}

// ParseObject parses and returns the next PDF value from the input.
// Arrays and dictionaries are parsed recursively.
func (p *Parser) ParseObject() (Object, error) {
	return p.parseObject(false)
}

// parseObject parses the next value. When shallow is set, nested arrays and
// dictionaries are returned as Raw holding their compressed form.
func (p *Parser) parseObject(shallow bool) (Object, error) {
	start, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if shallow && (start.Type == TokenArrayStart || start.Type == TokenDictStart) {
		if _, err := p.parseObject(false); err != nil {
			return nil, err
		}
		compact, err := CompressValue(p.lexer.Data()[start.Pos:p.end], nil)
		if err != nil {
			return nil, err
		}
		return Raw(compact), nil
	}

	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokenEOF:
		return nil, truncatedf(tok.Pos, "value expected")

	case TokenKeyword:
		switch string(tok.Value) {
		case "null":
			return Null{}, nil
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, parseErrorf(tok.Pos, "unexpected keyword %q", tok.Value)

	case TokenInteger:
		if num, gen, ok := p.refAhead(tok); ok {
			return IndirectRef{Number: num, Generation: gen}, nil
		}
		fallthrough

	case TokenReal:
		obj, ok := parseNumber(tok.Value)
		if !ok {
			return nil, parseErrorf(tok.Pos, "invalid number %q", tok.Value)
		}
		return obj, nil

	case TokenString, TokenHexString:
		return String(tok.Value), nil

	case TokenName:
		return Name(tok.Value), nil

	case TokenArrayStart:
		return p.parseArray(shallow)

	case TokenDictStart:
		return p.parseDict(shallow)
	}
	return nil, parseErrorf(tok.Pos, "unexpected %v", tok.Type)
}

// parseArray parses an array after its opening bracket.
func (p *Parser) parseArray(shallow bool) (Array, error) {
	arr := Array{}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenArrayEnd {
			p.next()
			return arr, nil
		}
		obj, err := p.parseObject(shallow)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

// parseDict parses a dictionary after its opening <<. On duplicate keys the
// last one wins.
func (p *Parser) parseDict(shallow bool) (Dict, error) {
	dict := Dict{}
	for {
		key, err := p.next()
		if err != nil {
			return nil, err
		}
		switch key.Type {
		case TokenDictEnd:
			return dict, nil
		case TokenEOF:
			return nil, truncatedf(key.Pos, "unterminated dictionary")
		case TokenName:
		default:
			return nil, parseErrorf(key.Pos, "dictionary key expected, got %v", key.Type)
		}
		next, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if next.Type == TokenDictEnd {
			return nil, parseErrorf(next.Pos, "missing value for key /%s", key.Value)
		}
		val, err := p.parseObject(shallow)
		if err != nil {
			return nil, err
		}
		dict[string(key.Value)] = val
	}
}

// expectEnd fails unless only whitespace and comments remain.
func (p *Parser) expectEnd() error {
	tok, err := p.peek(0)
	if err != nil {
		return err
	}
	if tok.Type != TokenEOF {
		return parseErrorf(tok.Pos, "trailing data after value")
	}
	return nil
}

// ParseValueRecursive parses data as a single PDF value, decoding every
// nested array and dictionary.
func ParseValueRecursive(data []byte) (Object, error) {
	p := NewParser(data)
	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return obj, nil
}

// ParseSimpleValue parses a single non-composite value surrounded by
// optional whitespace. Arrays and dictionaries are accepted only as opaque
// Raw byte ranges.
func ParseSimpleValue(data []byte) (Object, error) {
	trimmed := bytes.Trim(data, "\x00\t\n\f\r ")
	if len(trimmed) == 0 {
		return nil, parseErrorf(0, "empty value")
	}
	if (trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']') ||
		(bytes.HasPrefix(trimmed, []byte("<<")) && bytes.HasSuffix(trimmed, []byte(">>"))) {
		return Raw(trimmed), nil
	}
	p := NewParser(trimmed)
	if tok, err := p.peek(0); err == nil && (tok.Type == TokenArrayStart || tok.Type == TokenDictStart) {
		return nil, parseErrorf(tok.Pos, "composite value is not simple")
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return obj, nil
}

// ParseDict parses a dictionary <<...>>. A linear scan accepting only flat
// values is tried first; nested arrays and dictionaries found by that scan
// are kept byte-exact as Raw. Input with comments, literal strings with
// parentheses or escapes, or nested composites falls back to the recursive
// parser, which stores composite values as compressed Raw.
func ParseDict(data []byte) (Dict, error) {
	if d, ok := scanFlatDict(data); ok {
		return d, nil
	}
	p := NewParser(data)
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenDictStart {
		return nil, parseErrorf(tok.Pos, "dictionary expected")
	}
	d, err := p.parseDict(true)
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseArray parses an array [...] with the same two-tier strategy as
// ParseDict.
func ParseArray(data []byte) (Array, error) {
	if a, ok := scanFlatArray(data); ok {
		return a, nil
	}
	p := NewParser(data)
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenArrayStart {
		return nil, parseErrorf(tok.Pos, "array expected")
	}
	a, err := p.parseArray(true)
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return a, nil
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && IsWhitespace(data[i]) {
		i++
	}
	return i
}

// isSimpleNameChar reports whether b may appear in a name or bare token
// accepted by the flat scanner.
func isSimpleNameChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || isDigit(b) ||
		b == '-' || b == '+' || b == '_' || b == '.'
}

func scanSimpleName(data []byte, i int) int {
	for i < len(data) && isSimpleNameChar(data[i]) {
		i++
	}
	return i
}

func scanFlatDict(data []byte) (Dict, bool) {
	i := skipSpace(data, 0)
	if !bytes.HasPrefix(data[i:], []byte("<<")) {
		return nil, false
	}
	i += 2
	d := Dict{}
	for {
		i = skipSpace(data, i)
		if i >= len(data) {
			return nil, false
		}
		if bytes.HasPrefix(data[i:], []byte(">>")) {
			if skipSpace(data, i+2) != len(data) {
				return nil, false
			}
			return d, true
		}
		if data[i] != '/' {
			return nil, false
		}
		keyEnd := scanSimpleName(data, i+1)
		if keyEnd == i+1 || keyEnd >= len(data) || IsRegular(data[keyEnd]) || data[keyEnd] == '%' {
			return nil, false
		}
		key := string(data[i+1 : keyEnd])
		val, end, ok := scanFlatValue(data, skipSpace(data, keyEnd))
		if !ok {
			return nil, false
		}
		d[key] = val
		i = end
	}
}

func scanFlatArray(data []byte) (Array, bool) {
	i := skipSpace(data, 0)
	if i >= len(data) || data[i] != '[' {
		return nil, false
	}
	i++
	a := Array{}
	for {
		i = skipSpace(data, i)
		if i >= len(data) {
			return nil, false
		}
		if data[i] == ']' {
			if skipSpace(data, i+1) != len(data) {
				return nil, false
			}
			return a, true
		}
		val, end, ok := scanFlatValue(data, i)
		if !ok {
			return nil, false
		}
		a = append(a, val)
		i = end
	}
}

// scanFlatValue recognizes one value at data[i] that contains no comment,
// no nesting beyond one flat level, and no literal string with parentheses
// or escapes. ok is false when the value needs the full parser.
func scanFlatValue(data []byte, i int) (Object, int, bool) {
	if i >= len(data) {
		return nil, i, false
	}
	switch data[i] {
	case '(':
		j := i + 1
		for j < len(data) && data[j] != '(' && data[j] != ')' && data[j] != '\\' && data[j] != '\r' {
			j++
		}
		if j >= len(data) || data[j] != ')' {
			return nil, i, false
		}
		return String(data[i+1 : j]), j + 1, true
	case '<':
		if i+1 < len(data) && data[i+1] == '<' {
			j := i + 2
			for j < len(data) && data[j] != '%' && data[j] != '(' && data[j] != '<' && data[j] != '>' {
				j++
			}
			if !bytes.HasPrefix(data[j:], []byte(">>")) {
				return nil, i, false
			}
			return Raw(data[i : j+2]), j + 2, true
		}
		s, end, err := ParseHexString(data, i)
		if err != nil {
			return nil, i, false
		}
		return String(s), end, true
	case '[':
		j := i + 1
		for j < len(data) && data[j] != '%' && data[j] != '(' && data[j] != '[' && data[j] != ']' {
			j++
		}
		if j >= len(data) || data[j] != ']' {
			return nil, i, false
		}
		return Raw(data[i : j+1]), j + 1, true
	case '/':
		end := scanSimpleName(data, i+1)
		if end == i+1 || !tokenEnds(data, end) {
			return nil, i, false
		}
		return Name(data[i+1 : end]), end, true
	}

	end := scanSimpleName(data, i)
	if end == i || !tokenEnds(data, end) {
		return nil, i, false
	}
	word := data[i:end]
	if isInteger(word) && isDigit(word[0]) {
		if num, gen, refEnd, ok := scanRef(data, i, end); ok {
			return IndirectRef{Number: num, Generation: gen}, refEnd, true
		}
	}
	if obj, ok := parseNumber(word); ok {
		return obj, end, true
	}
	switch string(word) {
	case "true":
		return Bool(true), end, true
	case "false":
		return Bool(false), end, true
	case "null":
		return Null{}, end, true
	}
	return nil, i, false
}

// tokenEnds reports whether a token ending at data[end] is properly
// terminated.
func tokenEnds(data []byte, end int) bool {
	return end >= len(data) || (!IsRegular(data[end]) && data[end] != '%')
}

// scanRef matches "num ws+ gen ws+ R" where num spans data[i:numEnd].
func scanRef(data []byte, i, numEnd int) (int, int, int, bool) {
	j := numEnd
	if j >= len(data) || !IsWhitespace(data[j]) {
		return 0, 0, 0, false
	}
	j = skipSpace(data, j)
	genStart := j
	for j < len(data) && isDigit(data[j]) {
		j++
	}
	if j == genStart || j >= len(data) || !IsWhitespace(data[j]) {
		return 0, 0, 0, false
	}
	genEnd := j
	j = skipSpace(data, j)
	if j >= len(data) || data[j] != 'R' || !tokenEnds(data, j+1) {
		return 0, 0, 0, false
	}
	num, err1 := strconv.Atoi(string(data[i:numEnd]))
	gen, err2 := strconv.Atoi(string(data[genStart:genEnd]))
	if err1 != nil || err2 != nil {
		return 0, 0, 0, false
	}
	return num, gen, j + 1, true
}

// parseNumber returns the value of a number token. A number whose text
// does not survive conversion to Int or Real, such as an integer beyond
// int64 or a real with more digits than a float64 holds, is kept as Raw
// holding its canonical text.
func parseNumber(text []byte) (Object, bool) {
	canon, ok := FormatNumber(text)
	if !ok {
		return nil, false
	}
	if isInteger(text) {
		if n, err := strconv.ParseInt(string(canon), 10, 64); err == nil {
			return Int(n), true
		}
		return Raw(canon), true
	}
	f, err := strconv.ParseFloat(string(canon), 64)
	if err != nil || FormatReal(f) != string(canon) {
		return Raw(canon), true
	}
	return Real(f), true
}
