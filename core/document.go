package core

import (
	"bytes"
	"sort"
)

// Document owns the object table of a PDF. All mutation of objects goes
// through the document or the objects it holds.
type Document struct {
	// Version is the header version, such as "1.4".
	Version string

	// Objects maps object numbers to objects. Object 0 is never present.
	Objects map[int]*IndirectObject

	// Trailer holds the trailer dictionary as a streamless object.
	Trailer *IndirectObject

	// FileSize is the size of the file the document was loaded from.
	FileSize int
}

// NewDocument returns an empty document of the given version.
func NewDocument(version string) *Document {
	return &Document{
		Version: version,
		Objects: make(map[int]*IndirectObject),
		Trailer: NewDictObject(Dict{}, nil),
	}
}

// Get returns object num, or nil.
func (d *Document) Get(num int) *IndirectObject {
	return d.Objects[num]
}

// MaxObjNum returns the largest object number in use, or 0.
func (d *Document) MaxObjNum() int {
	max := 0
	for num := range d.Objects {
		if num > max {
			max = num
		}
	}
	return max
}

// Numbers returns the object numbers in ascending order.
func (d *Document) Numbers() []int {
	nums := make([]int, 0, len(d.Objects))
	for num := range d.Objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// Resolve follows obj while it is a reference and returns the head value
// it leads to. Missing targets and reference cycles yield Null. A Raw
// composite is parsed.
func (d *Document) Resolve(obj Object) Object {
	seen := map[int]bool{}
	for {
		switch v := obj.(type) {
		case IndirectRef:
			if seen[v.Number] {
				return Null{}
			}
			seen[v.Number] = true
			target := d.Objects[v.Number]
			if target == nil {
				return Null{}
			}
			if dict := target.Dict(); dict != nil {
				return dict
			}
			parsed, err := ParseValueRecursive(target.Head())
			if err != nil {
				return Null{}
			}
			obj = parsed
		case Raw:
			parsed, err := ParseValueRecursive(v)
			if err != nil {
				return Null{}
			}
			return parsed
		default:
			return obj
		}
	}
}

// ResolveDict resolves obj and returns it as a dictionary.
func (d *Document) ResolveDict(obj Object) (Dict, bool) {
	dict, ok := d.Resolve(obj).(Dict)
	return dict, ok
}

// Root returns the document catalog.
func (d *Document) Root() (Dict, bool) {
	return d.ResolveDict(d.Trailer.Get("Root"))
}

// MaxVersion returns the larger of two "major.minor" versions.
func MaxVersion(a, b string) string {
	if a >= b {
		return a
	}
	return b
}

// FixAllBadNumbers rewrites malformed numbers such as a lone "." to 0 in
// every object head. It returns the number of objects changed.
func FixAllBadNumbers(doc *Document) int {
	changed := 0
	for _, obj := range doc.Objects {
		head := obj.Head()
		if !bytes.Contains(head, []byte{'.'}) {
			continue
		}
		fixed := GetBadNumbersFixed(head)
		if !bytes.Equal(fixed, head) {
			obj.SetHead(fixed)
			changed++
		}
	}
	return changed
}
