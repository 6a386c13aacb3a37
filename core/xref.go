package core

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
	pstrconv "github.com/tdewolff/parse/v2/strconv"
)

// XRefEntryType is the type of a cross-reference entry.
type XRefEntryType int

const (
	XRefFree       XRefEntryType = iota // free object, ignored
	XRefInUse                           // uncompressed object at a file offset
	XRefCompressed                      // object inside an object stream
)

// XRefEntry represents a single cross-reference entry.
type XRefEntry struct {
	Type XRefEntryType

	// Offset and Generation locate an in-use object.
	Offset     int
	Generation int

	// StreamNum and Index locate a compressed object.
	StreamNum int
	Index     int
}

// XRefTable holds the entries of one cross-reference section (a classical
// table or an xref stream) and its trailer dictionary.
type XRefTable struct {
	Entries map[int]XRefEntry
	Trailer Dict

	// Start, TrailerStart and End delimit a classical section in the file:
	// the xref keyword, the trailer keyword and the end of the trailer
	// dictionary.
	Start, TrailerStart, End int
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]XRefEntry),
		Trailer: make(Dict),
	}
}

// Merge adds the entries of an older section. Entries already present win,
// as later sections of an incrementally updated file override earlier ones.
func (x *XRefTable) Merge(older *XRefTable) {
	for num, entry := range older.Entries {
		if _, ok := x.Entries[num]; !ok {
			x.Entries[num] = entry
		}
	}
}

// Prev returns the /Prev offset of the section's trailer, if any.
func (x *XRefTable) Prev() (int, bool) {
	prev, ok := x.Trailer.GetInt("Prev")
	return int(prev), ok && prev >= 0
}

// FindStartXRef returns the offset named by the last "startxref NNN" in
// the final 1024 bytes of data.
func FindStartXRef(data []byte) (int, error) {
	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, errors.Wrap(ErrXref, "startxref not found")
	}
	rest := tail[idx+len("startxref"):]
	i := skipSpace(rest, 0)
	offset, n := pstrconv.ParseUint(rest[i:])
	if n == 0 {
		return 0, errors.Wrap(ErrXref, "startxref offset missing")
	}
	if int(offset) >= len(data) {
		return 0, errors.Wrapf(ErrXref, "startxref offset %d beyond end of file", offset)
	}
	return int(offset), nil
}

// ParseXRefTable parses a classical cross-reference section starting at
// data[offset] ("xref", subsections, "trailer <<...>>"). Entries are read
// by field rather than as fixed 20-byte records, so the common EOL
// variations are accepted.
func ParseXRefTable(data []byte, offset int) (*XRefTable, error) {
	pos := skipSpace(data, offset)
	if !bytes.HasPrefix(data[pos:], []byte("xref")) {
		return nil, errors.Wrapf(ErrXref, "expected xref at %d", offset)
	}
	table := NewXRefTable()
	table.Start = pos
	pos += len("xref")

	for {
		pos = skipSpace(data, pos)
		if bytes.HasPrefix(data[pos:], []byte("trailer")) {
			break
		}
		first, n := pstrconv.ParseUint(data[pos:])
		if n == 0 {
			return nil, errors.Wrapf(ErrXref, "subsection header expected at %d", pos)
		}
		pos = skipSpace(data, pos+n)
		count, n := pstrconv.ParseUint(data[pos:])
		if n == 0 {
			return nil, errors.Wrapf(ErrXref, "subsection count expected at %d", pos)
		}
		pos += n
		for i := 0; i < int(count); i++ {
			entry, end, err := parseXRefEntry(data, pos)
			if err != nil {
				return nil, err
			}
			pos = end
			num := int(first) + i
			if _, dup := table.Entries[num]; !dup {
				table.Entries[num] = entry
			}
		}
	}

	table.TrailerStart = pos
	trailer, end, err := ParseTrailer(data, pos)
	if err != nil {
		return nil, err
	}
	table.Trailer = trailer
	table.End = end
	return table, nil
}

// parseXRefEntry reads "offset generation n|f" at data[pos].
func parseXRefEntry(data []byte, pos int) (XRefEntry, int, error) {
	pos = skipSpace(data, pos)
	offset, n := pstrconv.ParseUint(data[pos:])
	if n == 0 {
		return XRefEntry{}, pos, errors.Wrapf(ErrXref, "entry offset expected at %d", pos)
	}
	pos = skipSpace(data, pos+n)
	gen, n := pstrconv.ParseUint(data[pos:])
	if n == 0 {
		return XRefEntry{}, pos, errors.Wrapf(ErrXref, "entry generation expected at %d", pos)
	}
	pos = skipSpace(data, pos+n)
	if pos >= len(data) {
		return XRefEntry{}, pos, errors.Wrap(ErrXref, "xref entry truncated")
	}
	entry := XRefEntry{Offset: int(offset), Generation: int(gen)}
	switch data[pos] {
	case 'n':
		entry.Type = XRefInUse
	case 'f':
		entry.Type = XRefFree
	default:
		return XRefEntry{}, pos, errors.Wrapf(ErrXref, "invalid entry flag %q at %d", data[pos], pos)
	}
	return entry, pos + 1, nil
}

// ParseTrailer parses "trailer <<...>>" at data[pos] and returns the
// dictionary and the offset after it.
func ParseTrailer(data []byte, pos int) (Dict, int, error) {
	pos = skipSpace(data, pos)
	if !bytes.HasPrefix(data[pos:], []byte("trailer")) {
		return nil, pos, errors.Wrapf(ErrXref, "trailer expected at %d", pos)
	}
	p := NewParserAt(data, pos+len("trailer"))
	obj, err := p.ParseObject()
	if err != nil {
		return nil, pos, errors.Wrap(ErrXref, err.Error())
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, pos, errors.Wrapf(ErrXref, "trailer is %v, not a dictionary", obj.Type())
	}
	return trailer, p.Pos(), nil
}

// ParseXRefStream decodes a cross-reference stream object. Entries are
// big-endian fields of the widths in /W; a zero-width type field means
// type 1. /Index defaults to [0 /Size]. The stream's dictionary becomes the
// trailer.
func ParseXRefStream(obj *IndirectObject) (*XRefTable, error) {
	head := obj.Dict()
	if head == nil || obj.Stream == nil {
		return nil, errors.Wrap(ErrXrefStream, "not a stream object")
	}
	if typ, _ := head.GetName("Type"); typ != "XRef" {
		return nil, errors.Wrapf(ErrXrefStream, "unexpected /Type %v", head.Get("Type"))
	}
	w, ok := head.GetArray("W")
	if !ok || len(w) != 3 {
		return nil, errors.Wrap(ErrXrefStream, "/W must be an array of three integers")
	}
	var widths [3]int
	rowSize := 0
	for i := range widths {
		n, ok := w.GetInt(i)
		if !ok || n < 0 || n > 8 {
			return nil, errors.Wrapf(ErrXrefStream, "invalid /W field %d", i)
		}
		widths[i] = int(n)
		rowSize += int(n)
	}
	if rowSize == 0 {
		return nil, errors.Wrap(ErrXrefStream, "/W fields are all zero")
	}

	size, _ := head.GetInt("Size")
	index := Array{Int(0), size}
	if arr, ok := head.GetArray("Index"); ok {
		index = arr
	}
	if len(index)%2 != 0 {
		return nil, errors.Wrap(ErrXrefStream, "/Index has an odd number of elements")
	}

	data, err := obj.DecodedStream()
	if err != nil {
		return nil, errors.Wrap(ErrXrefStream, err.Error())
	}

	table := NewXRefTable()
	table.Trailer = head
	pos := 0
	for i := 0; i < len(index); i += 2 {
		first, ok1 := index.GetInt(i)
		count, ok2 := index.GetInt(i + 1)
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, errors.Wrap(ErrXrefStream, "/Index entries must be non-negative integers")
		}
		for j := 0; j < int(count); j++ {
			if pos+rowSize > len(data) {
				return nil, errors.Wrapf(ErrXrefStream, "stream ends inside entry for object %d", int(first)+j)
			}
			typ := 1
			if widths[0] > 0 {
				typ = readBigEndian(data[pos : pos+widths[0]])
			}
			f1 := readBigEndian(data[pos+widths[0] : pos+widths[0]+widths[1]])
			f2 := readBigEndian(data[pos+widths[0]+widths[1] : pos+rowSize])
			pos += rowSize

			num := int(first) + j
			if _, dup := table.Entries[num]; dup {
				continue
			}
			switch typ {
			case 0:
				table.Entries[num] = XRefEntry{Type: XRefFree}
			case 1:
				table.Entries[num] = XRefEntry{Type: XRefInUse, Offset: f1, Generation: f2}
			case 2:
				table.Entries[num] = XRefEntry{Type: XRefCompressed, StreamNum: f1, Index: f2}
			}
			// Unknown types are references to the null object.
		}
	}
	return table, nil
}

// readBigEndian decodes an unsigned MSB-first integer.
func readBigEndian(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n
}

// AppendBigEndian appends n as an MSB-first integer of width bytes.
func AppendBigEndian(buf []byte, n, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(n>>(8*uint(i))))
	}
	return buf
}

// ByteWidth returns the number of bytes needed to store n, at least 1.
func ByteWidth(n int) int {
	w := 1
	for n > 0xff {
		n >>= 8
		w++
	}
	return w
}

// FormatXRefEntry returns the 20-byte classical entry for an offset and
// generation.
func FormatXRefEntry(offset, gen int, inUse bool) []byte {
	flag := "f"
	if inUse {
		flag = "n"
	}
	buf := make([]byte, 0, 20)
	buf = append(buf, zeroPad(offset, 10)...)
	buf = append(buf, ' ')
	buf = append(buf, zeroPad(gen, 5)...)
	buf = append(buf, ' ')
	buf = append(buf, flag...)
	return append(buf, " \n"...)
}

func zeroPad(n, width int) []byte {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return []byte(s)
}
