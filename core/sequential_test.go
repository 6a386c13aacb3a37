package core

import (
	"errors"
	"reflect"
	"testing"
)

const sequentialPDF = "%PDF-1.4\n%\xd0\xd4\xc5\xd0\n" +
	"1 0 obj\n<< /Type /Catalog >>\nendobj\n" +
	"% comment\ngarbage here\n" +
	"2 0 obj\n5\nendobj\n" +
	"xref\n0 3\n0000000000 65535 f \n0000000015 00000 n \n0000000050 00000 n \n" +
	"trailer\n<</Size 3/Root 1 0 R>>\n" +
	"startxref\n74\n%%EOF\n"

func scanAll(t *testing.T, data string) []Item {
	t.Helper()
	var items []Item
	if err := ScanSequential([]byte(data), func(item Item) error {
		items = append(items, item)
		return nil
	}); err != nil {
		t.Fatalf("ScanSequential() error = %v", err)
	}
	return items
}

func TestScanSequential(t *testing.T) {
	items := scanAll(t, sequentialPDF)

	var kinds []ItemKind
	pos := 0
	for _, item := range items {
		kinds = append(kinds, item.Kind)
		if item.Start != pos {
			t.Errorf("%v item starts at %d, want %d", item.Kind, item.Start, pos)
		}
		if item.End <= item.Start {
			t.Errorf("%v item is empty: %d..%d", item.Kind, item.Start, item.End)
		}
		pos = item.End
	}
	if pos != len(sequentialPDF) {
		t.Errorf("items end at %d, want %d", pos, len(sequentialPDF))
	}

	want := []ItemKind{ItemHeader, ItemObject, ItemWhitespace, ItemObject, ItemXref, ItemTrailer, ItemStartXref}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}

	if got := sequentialPDF[items[0].Start:items[0].End]; got != "%PDF-1.4\n%\xd0\xd4\xc5\xd0\n" {
		t.Errorf("header = %q", got)
	}
	if got := sequentialPDF[items[2].Start:items[2].End]; got != "% comment\ngarbage here\n" {
		t.Errorf("whitespace = %q", got)
	}
	if obj := items[1].Object; obj.Number != 1 || string(obj.Object.Head()) != "<</Type/Catalog>>" {
		t.Errorf("object = %d %q", obj.Number, obj.Object.Head())
	}
	if got := len(items[4].XRef.Entries); got != 3 {
		t.Errorf("xref entries = %d, want 3", got)
	}
	if size, _ := items[5].XRef.Trailer.GetInt("Size"); size != 3 {
		t.Errorf("trailer /Size = %d, want 3", size)
	}
	if items[6].StartXRef != 74 {
		t.Errorf("StartXRef = %d, want 74", items[6].StartXRef)
	}
}

func TestScanSequentialLeadingJunk(t *testing.T) {
	data := "junk\n" + sequentialPDF
	items := scanAll(t, data)
	if items[0].Kind != ItemWhitespace || items[0].End != 5 {
		t.Errorf("first item = %v %d..%d, want whitespace 0..5", items[0].Kind, items[0].Start, items[0].End)
	}
	if items[1].Kind != ItemHeader || items[1].Start != 5 {
		t.Errorf("second item = %v at %d, want header at 5", items[1].Kind, items[1].Start)
	}
}

func TestScanSequentialIndirectLength(t *testing.T) {
	data := "%PDF-1.4\n" +
		"3 0 obj\n<</Length 4 0 R>>\nstream\nabcd\nendstream\nendobj\n" +
		"4 0 obj\n4\nendobj\n"
	items := scanAll(t, data)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	def := items[1].Object
	if string(def.Object.Stream) != "abcd" || def.LengthFixed {
		t.Errorf("stream = %q, LengthFixed = %v", def.Object.Stream, def.LengthFixed)
	}
	if !Equal(def.Object.Get("Length"), Int(4)) {
		t.Errorf("/Length = %v, want 4", def.Object.Get("Length"))
	}
}

func TestScanSequentialLinearized(t *testing.T) {
	section := "xref\n0 1\n0000000000 65535 f \ntrailer\n<<>>\n"
	data := "%PDF-1.5\n1 0 obj\n<</Linearized 1>>\nendobj\n" + section + section
	var linearized []bool
	for _, item := range scanAll(t, data) {
		if item.Kind == ItemXref {
			linearized = append(linearized, item.Linearized)
		}
	}
	if !reflect.DeepEqual(linearized, []bool{true, false}) {
		t.Errorf("Linearized flags = %v, want [true false]", linearized)
	}
}

func TestScanSequentialErrors(t *testing.T) {
	err := ScanSequential([]byte("not a pdf"), func(Item) error { return nil })
	if !errors.Is(err, ErrParse) {
		t.Errorf("ScanSequential() error = %v, want ErrParse", err)
	}

	stop := errors.New("stop")
	calls := 0
	err = ScanSequential([]byte(sequentialPDF), func(Item) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		t.Errorf("ScanSequential() = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestItemKindString(t *testing.T) {
	if got := ItemStartXref.String(); got != "startxref" {
		t.Errorf("String() = %q, want startxref", got)
	}
	if got := ItemKind(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
