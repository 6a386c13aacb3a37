package core

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/tsawler/pdfsizeopt/internal/filters"
	"github.com/tsawler/pdfsizeopt/logging"
)

// ErrIndirectLength is returned by ParseIndirectObject for a stream whose
// /Length is an indirect reference when no LengthFunc is available. The
// loader retries such objects once every other object is known.
var ErrIndirectLength = errors.New("stream length is an indirect reference")

// LengthFunc resolves an indirect /Length reference of a stream. ok is
// false when the referenced object is unknown or not an integer.
type LengthFunc func(ref IndirectRef) (length int, ok bool)

// IndirectObject is the body of an indirect object: a head value and an
// optional stream.
//
// The head is kept as bytes. A dictionary head is parsed into a cache on
// the first Get; Set updates the cache and drops the bytes, which are
// regenerated with sorted keys by the next Head call.
type IndirectObject struct {
	head  []byte
	cache Dict

	// Stream is nil for objects without a stream. A non-nil empty slice is
	// an empty stream.
	Stream []byte
}

// NewObject returns an object with the given head bytes and stream.
func NewObject(head, stream []byte) *IndirectObject {
	return &IndirectObject{head: head, Stream: stream}
}

// NewDictObject returns an object whose head is d.
func NewDictObject(d Dict, stream []byte) *IndirectObject {
	return &IndirectObject{cache: d, Stream: stream}
}

// Head returns the serialized head.
func (o *IndirectObject) Head() []byte {
	if o.head == nil && o.cache != nil {
		o.head = SerializeDict(o.cache)
	}
	return o.head
}

// SetHead replaces the head and drops the dictionary cache.
func (o *IndirectObject) SetHead(head []byte) {
	o.head = head
	o.cache = nil
}

// HasStream reports whether the object has a stream.
func (o *IndirectObject) HasStream() bool { return o.Stream != nil }

// IsDict reports whether the head is a dictionary.
func (o *IndirectObject) IsDict() bool {
	return o.cache != nil || bytes.HasPrefix(o.head, []byte("<<"))
}

// Dict returns the parsed head dictionary, or nil if the head is not a
// valid dictionary. The result is the cache itself; use Set to modify it.
func (o *IndirectObject) Dict() Dict {
	if o.cache == nil {
		if !bytes.HasPrefix(o.head, []byte("<<")) {
			return nil
		}
		d, err := ParseDict(o.head)
		if err != nil {
			return nil
		}
		o.cache = d
	}
	return o.cache
}

// Get returns the value of key in a dictionary head, or nil.
func (o *IndirectObject) Get(key string) Object {
	if o.cache == nil && bytes.IndexByte(o.head, '#') < 0 && !bytes.Contains(o.head, []byte(key)) {
		return nil
	}
	d := o.Dict()
	if d == nil {
		return nil
	}
	return d[key]
}

// Set sets key in a dictionary head. A nil value deletes the key. Setting
// a value equal to the current one keeps the head bytes. Set on a head
// that is not a dictionary does nothing unless the head is empty.
func (o *IndirectObject) Set(key string, value Object) {
	d := o.Dict()
	if d == nil {
		if len(o.head) != 0 {
			return
		}
		d = Dict{}
		o.cache = d
	}
	old, ok := d[key]
	if value == nil {
		if !ok {
			return
		}
		delete(d, key)
	} else {
		if ok && Equal(old, value) {
			return
		}
		d[key] = value
	}
	o.head = nil
}

// Size estimates the number of bytes the object takes in the output.
func (o *IndirectObject) Size() int {
	if o.Stream == nil {
		return len(o.Head()) + 40
	}
	return len(o.Head()) + len(o.Stream) + 52
}

// Clone returns a copy of o whose cache may be modified independently.
// The stream bytes are shared.
func (o *IndirectObject) Clone() *IndirectObject {
	c := &IndirectObject{head: o.head, Stream: o.Stream}
	if o.cache != nil {
		c.cache = o.cache.Clone()
	}
	return c
}

// SetStream replaces the stream and updates /Length.
func (o *IndirectObject) SetStream(data []byte) {
	if data == nil {
		data = []byte{}
	}
	o.Stream = data
	o.Set("Length", Int(len(data)))
}

// SetStreamAndCompress stores data, Flate-compressed if that is shorter.
// /DecodeParms is removed.
func (o *IndirectObject) SetStreamAndCompress(data []byte) error {
	o.Set("DecodeParms", nil)
	compressed, err := filters.FlateEncode(data)
	if err != nil {
		return err
	}
	if len(compressed) < len(data) {
		o.Set("Filter", Name("FlateDecode"))
		o.SetStream(compressed)
	} else {
		o.Set("Filter", nil)
		o.SetStream(data)
	}
	return nil
}

// DecodedStream returns the stream with all filters undone.
func (o *IndirectObject) DecodedStream() ([]byte, error) {
	if o.Stream == nil {
		return nil, ErrUnexpectedStream
	}
	d := o.Dict()
	if d == nil {
		return nil, parseErrorf(0, "stream head is not a dictionary")
	}
	return DecodeStream(d, o.Stream)
}

// IsImage reports whether o is an image XObject.
func (o *IndirectObject) IsImage() bool {
	if o.Stream == nil {
		return false
	}
	subtype, _ := o.Get("Subtype").(Name)
	return subtype == "Image"
}

// IsFontProgram reports whether o looks like an embedded font program.
func (o *IndirectObject) IsFontProgram() bool {
	if o.Stream == nil {
		return false
	}
	if o.Get("Length1") != nil || o.Get("Length2") != nil || o.Get("Length3") != nil {
		return true
	}
	switch subtype, _ := o.Get("Subtype").(Name); subtype {
	case "Type1C", "CIDFontType0C", "OpenType":
		return true
	}
	return false
}

// AppendTo appends the object definition "num 0 obj ... endobj\n" to buf.
// /Length is corrected to the stream length if needed.
func (o *IndirectObject) AppendTo(buf []byte, num int) []byte {
	if o.Stream != nil {
		if n, ok := o.Get("Length").(Int); !ok || int(n) != len(o.Stream) {
			o.Set("Length", Int(len(o.Stream)))
		}
	}
	buf = strconv.AppendInt(buf, int64(num), 10)
	buf = append(buf, " 0 obj\n"...)
	head := o.Head()
	buf = append(buf, head...)
	if len(head) > 0 && IsRegular(head[len(head)-1]) {
		buf = append(buf, ' ')
	}
	if o.Stream != nil {
		buf = append(buf, "stream\n"...)
		buf = append(buf, o.Stream...)
		buf = append(buf, "endstream "...)
	}
	return append(buf, "endobj\n"...)
}

// ObjectDef is an indirect object definition found in a file.
type ObjectDef struct {
	Number     int
	Generation int
	Object     *IndirectObject

	// Start is the offset of the object number and End the offset after
	// endobj and a single following whitespace byte (or CRLF).
	Start, End int

	// LengthFixed is set when /Length was wrong and the stream was
	// delimited by searching for endstream instead.
	LengthFixed bool
}

// ParseIndirectObject parses "num gen obj ... endobj" starting at
// data[offset]. The head is stored canonicalized. An indirect /Length is
// resolved through lengthOf; with a nil lengthOf it fails with
// ErrIndirectLength. A missing or wrong /Length is repaired by searching
// for endstream, with a warning. Streamless objects lose their stream
// keys (/Length, /Filter, /DecodeParms).
func ParseIndirectObject(data []byte, offset int, lengthOf LengthFunc) (*ObjectDef, error) {
	l := NewLexerAt(data, offset)
	numTok, err := l.NextToken()
	if err != nil {
		return nil, err
	}
	genTok, err := l.NextToken()
	if err != nil {
		return nil, err
	}
	objTok, err := l.NextToken()
	if err != nil {
		return nil, err
	}
	num, ok1 := unsignedInt(numTok)
	gen, ok2 := unsignedInt(genTok)
	if !ok1 || !ok2 || objTok.Type != TokenKeyword || string(objTok.Value) != "obj" {
		return nil, parseErrorf(offset, "expected object definition")
	}
	def := &ObjectDef{Number: num, Generation: gen, Start: numTok.Pos}

	p := NewParserAt(data, objTok.End)
	first, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if first.Type == TokenEOF {
		return nil, truncatedf(first.Pos, "object %d has no value", num)
	}
	value, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	head, err := CompressValue(data[first.Pos:p.Pos()], nil)
	if err != nil {
		return nil, err
	}
	obj := NewObject(head, nil)
	def.Object = obj

	tok, err := p.next()
	if err != nil {
		tok = Token{Type: TokenKeyword, Pos: p.Pos(), End: p.Pos()}
	}
	if tok.Type == TokenKeyword && string(tok.Value) == "stream" {
		if _, ok := value.(Dict); !ok {
			return nil, parseErrorf(tok.Pos, "stream of object %d without dictionary", num)
		}
		// Parse the cache from the copied head so nothing aliases data.
		if obj.cache, err = ParseDict(head); err != nil {
			return nil, err
		}
		endstream, err := def.readStream(data, tok.End, lengthOf)
		if err != nil {
			return nil, err
		}
		expandFilterAbbreviations(obj)
		l.SetPos(endstream)
		if tok, err = l.NextToken(); err != nil {
			tok = Token{Type: TokenKeyword, Pos: endstream, End: endstream}
		}
	} else if obj.IsDict() {
		obj.Set("Length", nil)
		obj.Set("Filter", nil)
		obj.Set("DecodeParms", nil)
	}

	if tok.Type != TokenKeyword || string(tok.Value) != "endobj" {
		if tok.Type == TokenEOF {
			return nil, truncatedf(tok.Pos, "endobj of object %d not found", num)
		}
		idx := bytes.Index(data[tok.Pos:], []byte("endobj"))
		if idx < 0 {
			return nil, truncatedf(tok.Pos, "endobj of object %d not found", num)
		}
		logging.Logger().Warn("junk before endobj", "obj", num, "offset", tok.Pos)
		tok.End = tok.Pos + idx + len("endobj")
	}
	def.End = skipEOL(data, tok.End)
	return def, nil
}

// readStream reads the stream data starting after the stream keyword at
// data[pos] into def.Object and returns the offset after endstream.
func (def *ObjectDef) readStream(data []byte, pos int, lengthOf LengthFunc) (int, error) {
	obj := def.Object
	for pos < len(data) && (data[pos] == ' ' || data[pos] == '\t' || data[pos] == 0 || data[pos] == '\f') {
		pos++
	}
	start := skipEOLOnly(data, pos)
	if start == pos && !bytes.HasPrefix(data[pos:], []byte("endstream")) {
		return 0, parseErrorf(pos, "stream keyword of object %d not followed by EOL", def.Number)
	}

	length := -1
	switch v := obj.cache["Length"].(type) {
	case Int:
		length = int(v)
	case IndirectRef:
		if lengthOf == nil {
			return 0, ErrIndirectLength
		}
		if n, ok := lengthOf(v); ok {
			length = n
		}
	}

	if length >= 0 && start+length <= len(data) {
		after := skipSpace(data, start+length)
		if bytes.HasPrefix(data[after:], []byte("endstream")) {
			obj.Stream = append([]byte{}, data[start:start+length]...)
			if _, indirect := obj.cache["Length"].(IndirectRef); indirect {
				obj.Set("Length", Int(length))
			}
			return after + len("endstream"), nil
		}
	}

	idx := bytes.Index(data[start:], []byte("endstream"))
	if idx < 0 {
		return 0, truncatedf(start, "endstream of object %d not found", def.Number)
	}
	end := start + idx
	if end > start && data[end-1] == '\n' {
		end--
		if end > start && data[end-1] == '\r' {
			end--
		}
	} else if end > start && data[end-1] == '\r' {
		end--
	}
	obj.Stream = append([]byte{}, data[start:end]...)
	obj.Set("Length", Int(len(obj.Stream)))
	def.LengthFixed = true
	logging.Logger().Warn("fixed stream length", "obj", def.Number, "length", len(obj.Stream))
	return start + idx + len("endstream"), nil
}

// skipEOLOnly skips a single CRLF, LF or CR at data[pos].
func skipEOLOnly(data []byte, pos int) int {
	if bytes.HasPrefix(data[pos:], []byte("\r\n")) {
		return pos + 2
	}
	if pos < len(data) && (data[pos] == '\n' || data[pos] == '\r') {
		return pos + 1
	}
	return pos
}

// skipEOL skips a single CRLF or whitespace byte at data[pos].
func skipEOL(data []byte, pos int) int {
	if bytes.HasPrefix(data[pos:], []byte("\r\n")) {
		return pos + 2
	}
	if pos < len(data) && IsWhitespace(data[pos]) {
		return pos + 1
	}
	return pos
}

// GetBadNumbersFixed replaces malformed numbers consisting only of a sign
// and a dot (such as "." or "-.") with 0, leaving all other bytes of data
// unchanged.
func GetBadNumbersFixed(data []byte) []byte {
	l := NewLexer(data)
	var out []byte
	last := 0
	for {
		tok, err := l.NextToken()
		if err != nil || tok.Type == TokenEOF {
			break
		}
		if tok.Type != TokenReal || bytes.ContainsAny(tok.Value, "0123456789") {
			continue
		}
		out = append(out, data[last:tok.Pos]...)
		out = append(out, '0')
		last = tok.End
	}
	if out == nil {
		return data
	}
	return append(out, data[last:]...)
}
