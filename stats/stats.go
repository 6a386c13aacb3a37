package stats

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"

	"github.com/tsawler/pdfsizeopt/core"
)

// Role is what a byte range of a PDF file is used for.
type Role int

const (
	RoleHeader       Role = iota // %PDF-x.y line and binary comment
	RoleXref                     // classical xref sections and xref streams
	RoleTrailer                  // trailer dictionaries
	RoleImage                    // image XObjects
	RoleFont                     // embedded font programs
	RoleContent                  // page content streams
	RoleOtherStream              // any other stream object
	RoleOtherObject              // objects without a stream
	RoleWhitespace               // bytes between items
	RoleFooter                   // startxref and %%EOF

	numRoles
)

var roleNames = [numRoles]string{
	"header", "xref", "trailer", "image", "font", "content stream",
	"other stream", "other object", "whitespace", "footer",
}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return "unknown"
	}
	return roleNames[r]
}

// Roles returns every role in report order.
func Roles() []Role {
	roles := make([]Role, numRoles)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

// Stats is the byte accounting of one PDF file.
type Stats struct {
	FileSize int

	// Bytes and Count give the number of bytes and of items per role.
	Bytes [numRoles]int
	Count [numRoles]int

	// Title is the document title from the Info dictionary, if any.
	Title string
}

// Total returns the sum of all buckets. It equals FileSize.
func (s *Stats) Total() int {
	total := 0
	for _, n := range s.Bytes {
		total += n
	}
	return total
}

// object is a scanned object definition waiting for classification.
type object struct {
	num  int
	size int
	role Role
}

// Compute scans data once and attributes every byte to a role. Streams
// referenced from a page's /Contents count as content streams, which is
// only known after the whole file is scanned; so classification of plain
// streams is deferred.
func Compute(data []byte) (*Stats, error) {
	s := &Stats{FileSize: len(data)}
	var pending []object
	contents := map[int]bool{}
	titles := map[int]core.String{}
	var info core.IndirectRef

	err := core.ScanSequential(data, func(item core.Item) error {
		size := item.End - item.Start
		switch item.Kind {
		case core.ItemHeader:
			s.add(RoleHeader, size)
		case core.ItemXref:
			s.add(RoleXref, size)
		case core.ItemTrailer:
			s.add(RoleTrailer, size)
			if ref, ok := item.XRef.Trailer.GetIndirectRef("Info"); ok {
				info = ref
			}
		case core.ItemStartXref:
			s.add(RoleFooter, size)
		case core.ItemWhitespace:
			s.add(RoleWhitespace, size)
		case core.ItemObject:
			num, obj := item.Object.Number, item.Object.Object
			role := classify(obj)
			if typ, _ := obj.Get("Type").(core.Name); typ == "Page" && !obj.HasStream() {
				for _, ref := range contentRefs(obj) {
					contents[ref] = true
				}
			}
			if role == RoleXref {
				if ref, ok := obj.Dict().GetIndirectRef("Info"); ok {
					info = ref
				}
			}
			if t, ok := obj.Get("Title").(core.String); ok && !obj.HasStream() {
				titles[num] = t
			}
			pending = append(pending, object{num: num, size: size, role: role})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan PDF")
	}

	for _, o := range pending {
		if o.role == RoleOtherStream && contents[o.num] {
			o.role = RoleContent
		}
		s.add(o.role, o.size)
	}
	if t, ok := titles[info.Number]; ok && info.Number > 0 {
		s.Title = DecodeTextString([]byte(t))
	}
	if total := s.Total(); total != s.FileSize {
		return nil, errors.Errorf("accounted for %d bytes of %d", total, s.FileSize)
	}
	return s, nil
}

func (s *Stats) add(role Role, size int) {
	s.Bytes[role] += size
	s.Count[role]++
}

func classify(obj *core.IndirectObject) Role {
	if !obj.HasStream() {
		return RoleOtherObject
	}
	switch {
	case obj.IsImage():
		return RoleImage
	case obj.IsFontProgram():
		return RoleFont
	}
	if typ, _ := obj.Get("Type").(core.Name); typ == "XRef" {
		return RoleXref
	}
	return RoleOtherStream
}

// contentRefs returns the object numbers in a page's /Contents, which is
// a reference or an array of references.
func contentRefs(page *core.IndirectObject) []int {
	d := page.Dict()
	if ref, ok := d.GetIndirectRef("Contents"); ok {
		return []int{ref.Number}
	}
	arr, ok := d.GetArray("Contents")
	if !ok {
		return nil
	}
	var nums []int
	for _, v := range arr {
		if ref, ok := v.(core.IndirectRef); ok {
			nums = append(nums, ref.Number)
		}
	}
	return nums
}

// DecodeTextString decodes a PDF text string: UTF-16BE with a byte order
// mark, or else single bytes taken as Latin-1. The result is in NFC.
func DecodeTextString(s []byte) string {
	if bytes.HasPrefix(s, []byte{0xfe, 0xff}) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(s); err == nil {
			return norm.NFC.String(string(out))
		}
	}
	runes := make([]rune, len(s))
	for i, b := range s {
		runes[i] = rune(b)
	}
	return norm.NFC.String(string(runes))
}

// FormatPercent returns num/den as a rounded whole percentage.
func FormatPercent(num, den int) string {
	if den == 0 {
		return "?%"
	}
	return fmt.Sprintf("%d%%", (num*100+den/2)/den)
}

// Report writes one line per role with its size in bytes and its share of
// the file, followed by the total. Numbers use English digit grouping.
func (s *Stats) Report(w io.Writer) error {
	p := message.NewPrinter(language.English)
	if s.Title != "" {
		if _, err := p.Fprintf(w, "title: %s\n", s.Title); err != nil {
			return err
		}
	}
	for _, role := range Roles() {
		if _, err := p.Fprintf(w, "%-15s %13d bytes %5s %6d items\n",
			role.String()+":", s.Bytes[role], FormatPercent(s.Bytes[role], s.FileSize), s.Count[role]); err != nil {
			return err
		}
	}
	_, err := p.Fprintf(w, "%-15s %13d bytes %5s\n", "total:", s.Total(), FormatPercent(s.Total(), s.FileSize))
	return err
}
