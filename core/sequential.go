package core

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
	pstrconv "github.com/tdewolff/parse/v2/strconv"

	"github.com/tsawler/pdfsizeopt/logging"
)

// ItemKind classifies the items reported by ScanSequential.
type ItemKind int

const (
	ItemHeader     ItemKind = iota // %PDF-x.y line and binary comment
	ItemObject                     // N G obj ... endobj
	ItemXref                       // classical xref section up to the trailer keyword
	ItemTrailer                    // trailer <<...>>
	ItemStartXref                  // startxref NNN %%EOF
	ItemWhitespace                 // whitespace, comments and unparsable bytes between items
)

func (k ItemKind) String() string {
	switch k {
	case ItemHeader:
		return "header"
	case ItemObject:
		return "object"
	case ItemXref:
		return "xref"
	case ItemTrailer:
		return "trailer"
	case ItemStartXref:
		return "startxref"
	case ItemWhitespace:
		return "whitespace"
	default:
		return "unknown"
	}
}

// Item is one logical piece of a PDF file. Consecutive items cover the
// input without gaps or overlap.
type Item struct {
	Kind       ItemKind
	Start, End int

	// Object is set for ItemObject.
	Object *ObjectDef

	// XRef is set for ItemXref and ItemTrailer.
	XRef *XRefTable

	// Linearized marks the first-page xref section of a linearized file.
	Linearized bool

	// StartXRef is the offset named by an ItemStartXref.
	StartXRef int
}

// ScanSequential walks data from start to end and calls fn once per item
// in file order, without building an object table. Objects that fail to
// parse are logged and reported as whitespace. An error returned by fn
// stops the scan and is returned.
func ScanSequential(data []byte, fn func(Item) error) error {
	headerStart := bytes.Index(data, []byte("%PDF-"))
	if headerStart < 0 || headerStart > 1024 {
		return errors.Wrap(ErrParse, "PDF header not found")
	}
	if headerStart > 0 {
		if err := fn(Item{Kind: ItemWhitespace, Start: 0, End: headerStart}); err != nil {
			return err
		}
	}
	pos := headerEnd(data, headerStart)
	if err := fn(Item{Kind: ItemHeader, Start: headerStart, End: pos}); err != nil {
		return err
	}

	s := &scanner{data: data, lengths: map[int]int{}}
	gapStart := pos
	flushGap := func(end int) error {
		if end > gapStart {
			if err := fn(Item{Kind: ItemWhitespace, Start: gapStart, End: end}); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		pos = skipSpaceAndComments(data, pos)
		if pos >= len(data) {
			return flushGap(len(data))
		}

		var items []Item
		switch {
		case isDigit(data[pos]):
			def, err := ParseIndirectObject(data, pos, s.lengthOf)
			if err != nil {
				logging.Logger().Warn("dropping unparsable object", "offset", pos, "err", err)
				break
			}
			if !s.sawObject {
				s.sawObject = true
				s.linearized = def.Object.Get("Linearized") != nil
			}
			if n, ok := intHead(def.Object.Head()); ok {
				s.lengths[def.Number] = n
			}
			items = append(items, Item{Kind: ItemObject, Start: def.Start, End: def.End, Object: def})
		case bytes.HasPrefix(data[pos:], []byte("xref")):
			table, err := ParseXRefTable(data, pos)
			if err != nil {
				logging.Logger().Warn("skipping unparsable xref section", "offset", pos, "err", err)
				break
			}
			linearized := s.linearized && !s.sawXref
			s.sawXref = true
			end := skipEOL(data, table.End)
			items = append(items,
				Item{Kind: ItemXref, Start: table.Start, End: table.TrailerStart, XRef: table, Linearized: linearized},
				Item{Kind: ItemTrailer, Start: table.TrailerStart, End: end, XRef: table, Linearized: linearized})
		case bytes.HasPrefix(data[pos:], []byte("trailer")):
			trailer, end, err := ParseTrailer(data, pos)
			if err != nil {
				logging.Logger().Warn("skipping unparsable trailer", "offset", pos, "err", err)
				break
			}
			table := NewXRefTable()
			table.Trailer = trailer
			table.Start, table.TrailerStart, table.End = pos, pos, end
			items = append(items, Item{Kind: ItemTrailer, Start: pos, End: skipEOL(data, end), XRef: table})
		case bytes.HasPrefix(data[pos:], []byte("startxref")):
			offset, end, ok := parseFooter(data, pos)
			if ok {
				items = append(items, Item{Kind: ItemStartXref, Start: pos, End: end, StartXRef: offset})
			}
		}

		if len(items) == 0 {
			// Junk: skip the rest of the line.
			pos = nextLine(data, pos)
			continue
		}
		if err := flushGap(items[0].Start); err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		pos = items[len(items)-1].End
		gapStart = pos
	}
}

type scanner struct {
	data       []byte
	lengths    map[int]int
	sawObject  bool
	sawXref    bool
	linearized bool
}

// ScanLengthFunc returns a LengthFunc that finds the referenced object by
// searching data for its definition.
func ScanLengthFunc(data []byte) LengthFunc {
	s := &scanner{data: data, lengths: map[int]int{}}
	return s.lengthOf
}

// lengthOf resolves an indirect /Length from objects already scanned, or
// by looking ahead for the definition of the referenced object.
func (s *scanner) lengthOf(ref IndirectRef) (int, bool) {
	if n, ok := s.lengths[ref.Number]; ok {
		return n, true
	}
	pattern := []byte(strconv.Itoa(ref.Number) + " " + strconv.Itoa(ref.Generation) + " obj")
	for from := 0; from < len(s.data); {
		idx := bytes.Index(s.data[from:], pattern)
		if idx < 0 {
			return 0, false
		}
		at := from + idx
		from = at + len(pattern)
		if at > 0 && !IsWhitespace(s.data[at-1]) {
			continue
		}
		def, err := ParseIndirectObject(s.data, at, nil)
		if err != nil || def.Number != ref.Number {
			continue
		}
		if n, ok := intHead(def.Object.Head()); ok {
			s.lengths[ref.Number] = n
			return n, true
		}
		return 0, false
	}
	return 0, false
}

// intHead reports whether head is a non-negative integer.
func intHead(head []byte) (int, bool) {
	n, k := pstrconv.ParseUint(head)
	if k == 0 || k != len(head) {
		return 0, false
	}
	return int(n), true
}

// headerEnd returns the offset after the header line and an optional
// binary comment line.
func headerEnd(data []byte, start int) int {
	pos := nextLine(data, start)
	if pos < len(data) && data[pos] == '%' {
		end := nextLine(data, pos)
		for _, c := range data[pos:end] {
			if c >= 0x80 {
				return end
			}
		}
	}
	return pos
}

// nextLine returns the offset after the next EOL at or after pos.
func nextLine(data []byte, pos int) int {
	for pos < len(data) && data[pos] != '\n' && data[pos] != '\r' {
		pos++
	}
	return skipEOLOnly(data, pos)
}

// skipSpaceAndComments skips whitespace and comments other than %%EOF.
func skipSpaceAndComments(data []byte, pos int) int {
	for pos < len(data) {
		switch {
		case IsWhitespace(data[pos]):
			pos++
		case data[pos] == '%' && !bytes.HasPrefix(data[pos:], []byte("%%EOF")):
			for pos < len(data) && data[pos] != '\n' && data[pos] != '\r' {
				pos++
			}
		default:
			return pos
		}
	}
	return pos
}

// parseFooter parses "startxref NNN %%EOF" with a trailing EOL.
func parseFooter(data []byte, pos int) (offset, end int, ok bool) {
	end = skipSpace(data, pos+len("startxref"))
	n, k := pstrconv.ParseUint(data[end:])
	if k == 0 {
		return 0, 0, false
	}
	end += k
	after := end
	for after < len(data) && IsWhitespace(data[after]) {
		after++
	}
	if bytes.HasPrefix(data[after:], []byte("%%EOF")) {
		end = skipEOLOnly(data, after+len("%%EOF"))
	} else {
		end = skipEOLOnly(data, end)
	}
	return int(n), end, true
}
