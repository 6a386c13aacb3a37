package core

import (
	"github.com/pkg/errors"
	pstrconv "github.com/tdewolff/parse/v2/strconv"
)

// ObjectStream is a decoded object stream (Type /ObjStm): /N objects whose
// numbers and offsets are listed as integer pairs before /First.
type ObjectStream struct {
	// Numbers lists the object numbers in index order.
	Numbers []int

	offsets []int
	first   int
	decoded []byte
}

// NewObjectStream decodes an object stream object and reads its header
// pairs.
func NewObjectStream(obj *IndirectObject) (*ObjectStream, error) {
	head := obj.Dict()
	if head == nil || obj.Stream == nil {
		return nil, errors.Wrap(ErrXrefStream, "object stream is not a stream")
	}
	if typ, _ := head.GetName("Type"); typ != "ObjStm" {
		return nil, errors.Wrapf(ErrXrefStream, "object stream has /Type %v", head.Get("Type"))
	}
	n, ok := head.GetInt("N")
	if !ok || n < 0 {
		return nil, errors.Wrap(ErrXrefStream, "object stream has no valid /N")
	}
	first, ok := head.GetInt("First")
	if !ok || first < 0 {
		return nil, errors.Wrap(ErrXrefStream, "object stream has no valid /First")
	}
	decoded, err := obj.DecodedStream()
	if err != nil {
		return nil, errors.Wrap(err, "decode object stream")
	}
	if int(first) > len(decoded) {
		return nil, errors.Wrapf(ErrXrefStream, "/First %d beyond stream data", first)
	}

	s := &ObjectStream{first: int(first), decoded: decoded}
	pos := 0
	header := decoded[:first]
	for i := 0; i < int(n); i++ {
		pos = skipSpace(header, pos)
		num, k := pstrconv.ParseUint(header[pos:])
		if k == 0 {
			return nil, errors.Wrapf(ErrXrefStream, "object number %d missing in object stream header", i)
		}
		pos = skipSpace(header, pos+k)
		off, k := pstrconv.ParseUint(header[pos:])
		if k == 0 {
			return nil, errors.Wrapf(ErrXrefStream, "offset %d missing in object stream header", i)
		}
		pos += k
		if int(first)+int(off) > len(decoded) {
			return nil, errors.Wrapf(ErrXrefStream, "offset of object %d beyond stream data", num)
		}
		s.Numbers = append(s.Numbers, int(num))
		s.offsets = append(s.offsets, int(off))
	}
	return s, nil
}

// Len returns the number of objects in the stream.
func (s *ObjectStream) Len() int { return len(s.Numbers) }

// Head returns the canonical head bytes of the object at index. num is
// the object number the cross-reference table expects there; a different
// number in the stream header is an error.
func (s *ObjectStream) Head(index, num int) ([]byte, error) {
	if index < 0 || index >= len(s.Numbers) {
		return nil, errors.Wrapf(ErrXrefStream, "object %d: index %d out of range", num, index)
	}
	if s.Numbers[index] != num {
		return nil, errors.Wrapf(ErrXrefStream, "object %d: object stream has object %d at index %d", num, s.Numbers[index], index)
	}
	start := s.first + s.offsets[index]
	p := NewParserAt(s.decoded, start)
	first, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.ParseObject(); err != nil {
		return nil, err
	}
	return CompressValue(s.decoded[first.Pos:p.Pos()], nil)
}

// Objects returns the head of every object in the stream keyed by object
// number.
func (s *ObjectStream) Objects() (map[int][]byte, error) {
	heads := make(map[int][]byte, len(s.Numbers))
	for i, num := range s.Numbers {
		head, err := s.Head(i, num)
		if err != nil {
			return nil, err
		}
		heads[num] = head
	}
	return heads, nil
}
