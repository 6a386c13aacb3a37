package pages

import (
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
)

var (
	// ErrNoPageTree is returned when the catalog has no usable /Pages.
	ErrNoPageTree = errors.New("document has no page tree")

	// ErrCountMismatch is returned by CheckCount when a /Count disagrees
	// with the number of pages below the node.
	ErrCountMismatch = errors.New("page count mismatch")
)

// inheritable lists the page attributes a page may take from an ancestor.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// Tree is the page tree of a document. Nodes are identified by object
// number.
type Tree struct {
	doc   *core.Document
	root  int
	pages []*Page // cached leaves in document order
}

// NewTree returns the page tree named by the catalog's /Pages.
func NewTree(doc *core.Document) (*Tree, error) {
	root, ok := doc.Root()
	if !ok {
		return nil, errors.Wrap(ErrNoPageTree, "no catalog")
	}
	ref, ok := root.GetIndirectRef("Pages")
	if !ok {
		return nil, errors.Wrap(ErrNoPageTree, "catalog /Pages is not a reference")
	}
	if doc.Objects[ref.Number] == nil {
		return nil, errors.Wrapf(ErrNoPageTree, "root node %d not found", ref.Number)
	}
	return &Tree{doc: doc, root: ref.Number}, nil
}

// Root returns the object number of the root /Pages node.
func (t *Tree) Root() int { return t.root }

// Count returns the /Count of the root node.
func (t *Tree) Count() (int, error) {
	d := t.doc.Objects[t.root].Dict()
	n, ok := t.doc.Resolve(d.Get("Count")).(core.Int)
	if !ok {
		return 0, errors.Errorf("page tree root %d has no valid /Count", t.root)
	}
	return int(n), nil
}

// Pages returns the page leaves in document order.
func (t *Tree) Pages() ([]*Page, error) {
	if t.pages == nil {
		pages := []*Page{}
		if _, err := t.walk(t.root, core.Dict{}, map[int]bool{}, &pages, false); err != nil {
			return nil, err
		}
		t.pages = pages
	}
	return t.pages, nil
}

// Page returns the page at a 0-based index.
func (t *Tree) Page(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, errors.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}
	return pages[index], nil
}

// walk visits node and returns the number of leaves below it. inherited
// holds the inheritable attributes of the ancestors. With check set, every
// intermediate /Count is compared with the leaves found.
func (t *Tree) walk(num int, inherited core.Dict, onPath map[int]bool, pages *[]*Page, check bool) (int, error) {
	if onPath[num] {
		return 0, errors.Errorf("page tree node %d is its own ancestor", num)
	}
	obj := t.doc.Objects[num]
	if obj == nil {
		return 0, errors.Errorf("page tree node %d not found", num)
	}
	d := obj.Dict()
	if d == nil {
		return 0, errors.Errorf("page tree node %d is not a dictionary", num)
	}

	typ, _ := d.GetName("Type")
	if typ == "Page" || (typ == "" && !d.Has("Kids")) {
		*pages = append(*pages, &Page{Num: num, doc: t.doc, dict: d, inherited: inherited})
		return 1, nil
	}
	if typ != "Pages" && typ != "" {
		return 0, errors.Errorf("page tree node %d has /Type /%s", num, typ)
	}

	kids, ok := t.doc.Resolve(d.Get("Kids")).(core.Array)
	if !ok {
		return 0, errors.Errorf("page tree node %d has no /Kids array", num)
	}
	next, cloned := inherited, false
	for _, k := range inheritable {
		if v := d.Get(k); v != nil {
			if !cloned {
				next, cloned = inherited.Clone(), true
			}
			next[k] = v
		}
	}

	onPath[num] = true
	defer delete(onPath, num)
	leaves := 0
	for i, kid := range kids {
		ref, ok := kid.(core.IndirectRef)
		if !ok {
			return 0, errors.Errorf("page tree node %d: kid %d is not a reference", num, i)
		}
		n, err := t.walk(ref.Number, next, onPath, pages, check)
		if err != nil {
			return 0, err
		}
		leaves += n
	}
	if check {
		count, ok := t.doc.Resolve(d.Get("Count")).(core.Int)
		if !ok || int(count) != leaves {
			return 0, errors.Wrapf(ErrCountMismatch, "node %d has /Count %v but %d pages", num, d.Get("Count"), leaves)
		}
	}
	return leaves, nil
}

// Numbers returns the object numbers of the pages of doc in order.
func Numbers(doc *core.Document) ([]int, error) {
	t, err := NewTree(doc)
	if err != nil {
		return nil, err
	}
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	nums := make([]int, len(pages))
	for i, p := range pages {
		nums[i] = p.Num
	}
	return nums, nil
}

// CheckCount verifies the /Count of every node of the page tree and
// returns the number of pages.
func CheckCount(doc *core.Document) (int, error) {
	t, err := NewTree(doc)
	if err != nil {
		return 0, err
	}
	var pages []*Page
	return t.walk(t.root, core.Dict{}, map[int]bool{}, &pages, true)
}

// Page is a page leaf of the tree.
type Page struct {
	// Num is the object number of the page.
	Num int

	doc       *core.Document
	dict      core.Dict
	inherited core.Dict
}

// Dict returns the page dictionary.
func (p *Page) Dict() core.Dict { return p.dict }

// attr returns the page's own value of key, or the inherited one.
func (p *Page) attr(key string) core.Object {
	if v := p.dict.Get(key); v != nil {
		return v
	}
	return p.inherited.Get(key)
}

// MediaBox returns the media box [x1 y1 x2 y2], which may be inherited.
func (p *Page) MediaBox() ([]float64, error) {
	return p.box("MediaBox")
}

// CropBox returns the crop box, defaulting to the media box.
func (p *Page) CropBox() ([]float64, error) {
	if p.attr("CropBox") == nil {
		return p.MediaBox()
	}
	return p.box("CropBox")
}

func (p *Page) box(name string) ([]float64, error) {
	arr, ok := p.doc.Resolve(p.attr(name)).(core.Array)
	if !ok {
		return nil, errors.Errorf("page %d: %s not found", p.Num, name)
	}
	if len(arr) != 4 {
		return nil, errors.Errorf("page %d: %s has %d elements, want 4", p.Num, name, len(arr))
	}
	box := make([]float64, 4)
	for i := range arr {
		v, ok := arr.GetNumber(i)
		if !ok {
			return nil, errors.Errorf("page %d: %s element %d is %v", p.Num, name, i, arr[i])
		}
		box[i] = v
	}
	return box, nil
}

// Resources returns the resource dictionary, which may be inherited. A
// page without resources gets an empty dictionary.
func (p *Page) Resources() core.Dict {
	if d, ok := p.doc.ResolveDict(p.attr("Resources")); ok {
		return d
	}
	return core.Dict{}
}

// Contents returns the object numbers of the content streams.
func (p *Page) Contents() []int {
	switch v := p.dict.Get("Contents").(type) {
	case core.IndirectRef:
		if target := p.doc.Objects[v.Number]; target != nil && !target.HasStream() {
			// A reference to an array of streams.
			return refNumbers(p.doc.Resolve(v))
		}
		return []int{v.Number}
	case nil:
		return nil
	default:
		return refNumbers(p.doc.Resolve(v))
	}
}

func refNumbers(obj core.Object) []int {
	arr, ok := obj.(core.Array)
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

// Rotate returns the page rotation normalized to 0, 90, 180 or 270.
func (p *Page) Rotate() int {
	n, ok := p.doc.Resolve(p.attr("Rotate")).(core.Int)
	if !ok || n%90 != 0 {
		return 0
	}
	return int((n%360 + 360) % 360)
}

// Width returns the width of the media box.
func (p *Page) Width() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[2] - box[0], nil
}

// Height returns the height of the media box.
func (p *Page) Height() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[3] - box[1], nil
}
