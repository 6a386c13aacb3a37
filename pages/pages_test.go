package pages

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tsawler/pdfsizeopt/core"
)

// newDoc builds a document from object heads. Streams get a one-byte body.
func newDoc(trailer string, heads map[int]string, streams ...int) *core.Document {
	doc := core.NewDocument("1.4")
	doc.Trailer = core.NewObject([]byte(trailer), nil)
	isStream := map[int]bool{}
	for _, n := range streams {
		isStream[n] = true
	}
	for num, head := range heads {
		var stream []byte
		if isStream[num] {
			stream = []byte("q")
		}
		doc.Objects[num] = core.NewObject([]byte(head), stream)
	}
	return doc
}

// nestedDoc has the tree 2 -> (3, 4 -> (5, 6)) with attributes inherited
// from both levels.
func nestedDoc() *core.Document {
	return newDoc("<</Root 1 0 R>>", map[int]string{
		1:  "<</Type/Catalog/Pages 2 0 R>>",
		2:  "<</Type/Pages/Kids[3 0 R 4 0 R]/Count 3/MediaBox[0 0 612 792]/Resources<</Font<</F1 9 0 R>>>>>>",
		3:  "<</Type/Page/Parent 2 0 R/Contents 7 0 R>>",
		4:  "<</Type/Pages/Parent 2 0 R/Kids[5 0 R 6 0 R]/Count 2/Rotate 90>>",
		5:  "<</Type/Page/Parent 4 0 R/MediaBox[0 0 100 200]/Contents[7 0 R 8 0 R]>>",
		6:  "<</Type/Page/Parent 4 0 R/Rotate -90/Resources 10 0 R>>",
		7:  "<</Length 1>>",
		8:  "<</Length 1>>",
		9:  "<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>",
		10: "<</XObject<<>>>>",
	}, 7, 8)
}

func TestNumbers(t *testing.T) {
	got, err := Numbers(nestedDoc())
	if err != nil {
		t.Fatalf("Numbers() error = %v", err)
	}
	if want := []int{3, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("Numbers() = %v, want %v", got, want)
	}
}

func TestTreeCount(t *testing.T) {
	tree, err := NewTree(nestedDoc())
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	if tree.Root() != 2 {
		t.Errorf("Root() = %d, want 2", tree.Root())
	}
	count, err := tree.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
}

func TestPageInheritance(t *testing.T) {
	tree, err := NewTree(nestedDoc())
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	tests := []struct {
		index    int
		num      int
		mediaBox []float64
		rotate   int
		hasFont  bool
		contents []int
		width    float64
		height   float64
	}{
		{0, 3, []float64{0, 0, 612, 792}, 0, true, []int{7}, 612, 792},
		{1, 5, []float64{0, 0, 100, 200}, 90, true, []int{7, 8}, 100, 200},
		{2, 6, []float64{0, 0, 612, 792}, 270, false, nil, 612, 792},
	}

	for _, tt := range tests {
		p, err := tree.Page(tt.index)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", tt.index, err)
		}
		if p.Num != tt.num {
			t.Errorf("Page(%d).Num = %d, want %d", tt.index, p.Num, tt.num)
		}
		box, err := p.MediaBox()
		if err != nil {
			t.Errorf("Page(%d).MediaBox() error = %v", tt.index, err)
		} else if !reflect.DeepEqual(box, tt.mediaBox) {
			t.Errorf("Page(%d).MediaBox() = %v, want %v", tt.index, box, tt.mediaBox)
		}
		if got := p.Rotate(); got != tt.rotate {
			t.Errorf("Page(%d).Rotate() = %d, want %d", tt.index, got, tt.rotate)
		}
		if _, got := p.Resources().GetDict("Font"); got != tt.hasFont {
			t.Errorf("Page(%d).Resources() has /Font = %v, want %v", tt.index, got, tt.hasFont)
		}
		if got := p.Contents(); !reflect.DeepEqual(got, tt.contents) {
			t.Errorf("Page(%d).Contents() = %v, want %v", tt.index, got, tt.contents)
		}
		if w, _ := p.Width(); w != tt.width {
			t.Errorf("Page(%d).Width() = %v, want %v", tt.index, w, tt.width)
		}
		if h, _ := p.Height(); h != tt.height {
			t.Errorf("Page(%d).Height() = %v, want %v", tt.index, h, tt.height)
		}
	}
}

func TestPageCropBox(t *testing.T) {
	doc := newDoc("<</Root 1 0 R>>", map[int]string{
		1: "<</Type/Catalog/Pages 2 0 R>>",
		2: "<</Type/Pages/Kids[3 0 R 4 0 R]/Count 2/MediaBox[0 0 612 792]>>",
		3: "<</Type/Page/Parent 2 0 R/CropBox[10 10 600 780]>>",
		4: "<</Type/Page/Parent 2 0 R>>",
	})
	tree, err := NewTree(doc)
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	tests := []struct {
		index int
		want  []float64
	}{
		{0, []float64{10, 10, 600, 780}},
		{1, []float64{0, 0, 612, 792}},
	}
	for _, tt := range tests {
		p, err := tree.Page(tt.index)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", tt.index, err)
		}
		got, err := p.CropBox()
		if err != nil {
			t.Fatalf("Page(%d).CropBox() error = %v", tt.index, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Page(%d).CropBox() = %v, want %v", tt.index, got, tt.want)
		}
	}
}

func TestPageContentsIndirectArray(t *testing.T) {
	doc := newDoc("<</Root 1 0 R>>", map[int]string{
		1: "<</Type/Catalog/Pages 2 0 R>>",
		2: "<</Type/Pages/Kids[3 0 R]/Count 1>>",
		3: "<</Type/Page/Parent 2 0 R/Contents 4 0 R>>",
		4: "[5 0 R 6 0 R]",
		5: "<</Length 1>>",
		6: "<</Length 1>>",
	}, 5, 6)
	tree, err := NewTree(doc)
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	p, err := tree.Page(0)
	if err != nil {
		t.Fatalf("Page(0) error = %v", err)
	}
	if got, want := p.Contents(), []int{5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("Contents() = %v, want %v", got, want)
	}
}

func TestPageOutOfRange(t *testing.T) {
	tree, err := NewTree(nestedDoc())
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	for _, i := range []int{-1, 3, 100} {
		if _, err := tree.Page(i); err == nil {
			t.Errorf("Page(%d) expected error", i)
		}
	}
}

func TestPageMissingMediaBox(t *testing.T) {
	doc := newDoc("<</Root 1 0 R>>", map[int]string{
		1: "<</Type/Catalog/Pages 2 0 R>>",
		2: "<</Type/Pages/Kids[3 0 R]/Count 1>>",
		3: "<</Type/Page/Parent 2 0 R/MediaBox[0 0 1]>>",
	})
	tree, err := NewTree(doc)
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	p, err := tree.Page(0)
	if err != nil {
		t.Fatalf("Page(0) error = %v", err)
	}
	if _, err := p.MediaBox(); err == nil {
		t.Error("MediaBox() expected error for a three element box")
	}
	if _, err := p.Width(); err == nil {
		t.Error("Width() expected error")
	}
}

func TestNewTreeErrors(t *testing.T) {
	tests := []struct {
		name    string
		trailer string
		heads   map[int]string
	}{
		{"no root", "<<>>", map[int]string{}},
		{"no pages", "<</Root 1 0 R>>", map[int]string{1: "<</Type/Catalog>>"}},
		{"direct pages", "<</Root 1 0 R>>", map[int]string{1: "<</Type/Catalog/Pages<</Kids[]>>>>"}},
		{"missing pages", "<</Root 1 0 R>>", map[int]string{1: "<</Type/Catalog/Pages 2 0 R>>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(newDoc(tt.trailer, tt.heads))
			if !errors.Is(err, ErrNoPageTree) {
				t.Errorf("NewTree() error = %v, want %v", err, ErrNoPageTree)
			}
		})
	}
}

func TestPagesCycle(t *testing.T) {
	doc := newDoc("<</Root 1 0 R>>", map[int]string{
		1: "<</Type/Catalog/Pages 2 0 R>>",
		2: "<</Type/Pages/Kids[3 0 R]/Count 1>>",
		3: "<</Type/Pages/Kids[2 0 R]/Count 1>>",
	})
	if _, err := Numbers(doc); err == nil {
		t.Error("Numbers() expected error for a cyclic tree")
	}
}

func TestPagesSharedKid(t *testing.T) {
	// The same page twice is not a cycle.
	doc := newDoc("<</Root 1 0 R>>", map[int]string{
		1: "<</Type/Catalog/Pages 2 0 R>>",
		2: "<</Type/Pages/Kids[3 0 R 3 0 R]/Count 2>>",
		3: "<</Type/Page/Parent 2 0 R>>",
	})
	got, err := Numbers(doc)
	if err != nil {
		t.Fatalf("Numbers() error = %v", err)
	}
	if want := []int{3, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("Numbers() = %v, want %v", got, want)
	}
}

func TestCheckCount(t *testing.T) {
	n, err := CheckCount(nestedDoc())
	if err != nil {
		t.Fatalf("CheckCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CheckCount() = %d, want 3", n)
	}

	bad := nestedDoc()
	bad.Objects[4].SetHead([]byte("<</Type/Pages/Parent 2 0 R/Kids[5 0 R 6 0 R]/Count 5>>"))
	if _, err := CheckCount(bad); !errors.Is(err, ErrCountMismatch) {
		t.Errorf("CheckCount() error = %v, want %v", err, ErrCountMismatch)
	}
}

func TestPagesBadNode(t *testing.T) {
	tests := []struct {
		name string
		head string
	}{
		{"wrong type", "<</Type/Font>>"},
		{"not a dictionary", "42"},
		{"kids not references", "<</Type/Pages/Kids[1 2 3]/Count 3>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc("<</Root 1 0 R>>", map[int]string{
				1: "<</Type/Catalog/Pages 2 0 R>>",
				2: "<</Type/Pages/Kids[3 0 R]/Count 1>>",
				3: tt.head,
			})
			if _, err := Numbers(doc); err == nil {
				t.Error("Numbers() expected error")
			}
		})
	}
}
