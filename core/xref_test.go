package core

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tsawler/pdfsizeopt/internal/filters"
)

func TestFindStartXRef(t *testing.T) {
	body := "%PDF-1.4\n" + string(make([]byte, 2000)) + "\n"
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"simple", "%PDF-1.4\nxref\nstartxref\n9\n%%EOF\n", 9, false},
		{"CRLF", "%PDF-1.4\r\nxref\r\nstartxref\r\n10\r\n%%EOF\r\n", 10, false},
		{"last wins", "%PDF-1.4\nstartxref\n1\n%%EOF\nstartxref\n5\n%%EOF", 5, false},
		{"no EOF marker", "%PDF-1.4\nstartxref 3", 3, false},
		{"far from end", body + "startxref\n9\n%%EOF\n", 9, false},
		{"missing", "%PDF-1.4\n%%EOF\n", 0, true},
		{"no offset", "%PDF-1.4\nstartxref\n%%EOF\n", 0, true},
		{"beyond end", "%PDF-1.4\nstartxref\n9999\n%%EOF\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindStartXRef([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindStartXRef() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrXref) {
					t.Errorf("FindStartXRef() error = %v, want ErrXref", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("FindStartXRef() = %d, want %d", got, tt.want)
			}
		})
	}
}

const xrefSection = "xref\n" +
	"0 3\n" +
	"0000000000 65535 f \n" +
	"0000000015 00000 n \n" +
	"0000000079 00000 n\r\n" +
	"5 1\n" +
	"0000000200 00001 n \n" +
	"trailer\n" +
	"<< /Size 6 /Root 1 0 R /Prev 400 >>\n" +
	"startxref\n"

func TestParseXRefTable(t *testing.T) {
	data := []byte("junk" + xrefSection)
	table, err := ParseXRefTable(data, 4)
	if err != nil {
		t.Fatalf("ParseXRefTable() error = %v", err)
	}

	want := map[int]XRefEntry{
		0: {Type: XRefFree, Offset: 0, Generation: 65535},
		1: {Type: XRefInUse, Offset: 15},
		2: {Type: XRefInUse, Offset: 79},
		5: {Type: XRefInUse, Offset: 200, Generation: 1},
	}
	if !reflect.DeepEqual(table.Entries, want) {
		t.Errorf("Entries = %v, want %v", table.Entries, want)
	}
	if size, _ := table.Trailer.GetInt("Size"); size != 6 {
		t.Errorf("trailer /Size = %v, want 6", table.Trailer.Get("Size"))
	}
	if ref, _ := table.Trailer.GetIndirectRef("Root"); ref.Number != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R", table.Trailer.Get("Root"))
	}
	if prev, ok := table.Prev(); !ok || prev != 400 {
		t.Errorf("Prev() = %d, %v, want 400, true", prev, ok)
	}
	if table.Start != 4 {
		t.Errorf("Start = %d, want 4", table.Start)
	}
	if got := string(data[table.TrailerStart : table.TrailerStart+7]); got != "trailer" {
		t.Errorf("TrailerStart points at %q", got)
	}
	if got := string(data[table.End:]); got != "\nstartxref\n" {
		t.Errorf("End leaves %q", got)
	}
}

func TestParseXRefTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not xref", "trailer\n<<>>"},
		{"bad subsection", "xref\nx 1\n"},
		{"missing count", "xref\n0\n"},
		{"bad flag", "xref\n0 1\n0000000000 65535 x \ntrailer<<>>"},
		{"truncated entry", "xref\n0 2\n0000000000 65535 f \n"},
		{"no trailer dict", "xref\n0 1\n0000000000 65535 f \ntrailer 5"},
		{"no trailer", "xref\n0 1\n0000000000 65535 f \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseXRefTable([]byte(tt.input), 0); !errors.Is(err, ErrXref) {
				t.Errorf("ParseXRefTable() error = %v, want ErrXref", err)
			}
		})
	}
}

func TestXRefTableMerge(t *testing.T) {
	newer := NewXRefTable()
	newer.Entries[1] = XRefEntry{Type: XRefInUse, Offset: 500}
	newer.Entries[3] = XRefEntry{Type: XRefFree}

	older := NewXRefTable()
	older.Entries[1] = XRefEntry{Type: XRefInUse, Offset: 15}
	older.Entries[2] = XRefEntry{Type: XRefInUse, Offset: 80}
	older.Entries[3] = XRefEntry{Type: XRefInUse, Offset: 90}

	newer.Merge(older)
	want := map[int]XRefEntry{
		1: {Type: XRefInUse, Offset: 500},
		2: {Type: XRefInUse, Offset: 80},
		3: {Type: XRefFree},
	}
	if !reflect.DeepEqual(newer.Entries, want) {
		t.Errorf("Merge() = %v, want %v", newer.Entries, want)
	}

	if _, ok := NewXRefTable().Prev(); ok {
		t.Error("Prev() without /Prev should fail")
	}
}

func xrefStreamObject(t *testing.T, head string, rows []byte) *IndirectObject {
	t.Helper()
	d, err := ParseDict([]byte(head))
	if err != nil {
		t.Fatalf("ParseDict() error = %v", err)
	}
	obj := NewDictObject(d, nil)
	obj.SetStream(rows)
	return obj
}

func TestParseXRefStream(t *testing.T) {
	rows := []byte{
		0, 0, 0, 0xff,
		1, 0, 15, 0,
		2, 0, 5, 1,
		1, 1, 0, 0,
	}
	obj := xrefStreamObject(t, "<</Type/XRef/Size 4/W[1 2 1]/Root 1 0 R>>", rows)
	table, err := ParseXRefStream(obj)
	if err != nil {
		t.Fatalf("ParseXRefStream() error = %v", err)
	}
	want := map[int]XRefEntry{
		0: {Type: XRefFree},
		1: {Type: XRefInUse, Offset: 15},
		2: {Type: XRefCompressed, StreamNum: 5, Index: 1},
		3: {Type: XRefInUse, Offset: 256},
	}
	if !reflect.DeepEqual(table.Entries, want) {
		t.Errorf("Entries = %v, want %v", table.Entries, want)
	}
	if ref, _ := table.Trailer.GetIndirectRef("Root"); ref.Number != 1 {
		t.Errorf("trailer /Root = %v", table.Trailer.Get("Root"))
	}
}

func TestParseXRefStreamIndexAndDefaultType(t *testing.T) {
	obj := xrefStreamObject(t, "<</Type/XRef/Size 12/W[0 2 0]/Index[10 2]>>", []byte{0, 100, 0, 200})
	table, err := ParseXRefStream(obj)
	if err != nil {
		t.Fatalf("ParseXRefStream() error = %v", err)
	}
	want := map[int]XRefEntry{
		10: {Type: XRefInUse, Offset: 100},
		11: {Type: XRefInUse, Offset: 200},
	}
	if !reflect.DeepEqual(table.Entries, want) {
		t.Errorf("Entries = %v, want %v", table.Entries, want)
	}
}

func TestParseXRefStreamPredictor(t *testing.T) {
	rows := []byte{
		0, 0, 0, 0xff,
		1, 0, 15, 0,
		1, 0, 80, 0,
	}
	encoded, err := filters.FlateEncodeUp(rows, 4)
	if err != nil {
		t.Fatalf("FlateEncodeUp() error = %v", err)
	}
	obj := xrefStreamObject(t, "<</Type/XRef/Size 3/W[1 2 1]/Filter/FlateDecode/DecodeParms<</Predictor 12/Columns 4>>>>", encoded)
	table, err := ParseXRefStream(obj)
	if err != nil {
		t.Fatalf("ParseXRefStream() error = %v", err)
	}
	if got := table.Entries[2]; got.Type != XRefInUse || got.Offset != 80 {
		t.Errorf("entry 2 = %+v, want in use at 80", got)
	}
}

func TestParseXRefStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		head string
		rows []byte
	}{
		{"wrong type", "<</Type/ObjStm/W[1 2 1]/Size 1>>", []byte{1, 0, 0, 0}},
		{"missing W", "<</Type/XRef/Size 1>>", []byte{1, 0, 0, 0}},
		{"short W", "<</Type/XRef/W[1 2]/Size 1>>", []byte{1, 0, 0}},
		{"zero W", "<</Type/XRef/W[0 0 0]/Size 1>>", []byte{}},
		{"odd Index", "<</Type/XRef/W[1 2 1]/Index[0]/Size 1>>", []byte{1, 0, 0, 0}},
		{"truncated", "<</Type/XRef/W[1 2 1]/Size 2>>", []byte{1, 0, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseXRefStream(xrefStreamObject(t, tt.head, tt.rows)); !errors.Is(err, ErrXrefStream) {
				t.Errorf("ParseXRefStream() error = %v, want ErrXrefStream", err)
			}
		})
	}

	if _, err := ParseXRefStream(NewObject([]byte("<</Type/XRef>>"), nil)); !errors.Is(err, ErrXrefStream) {
		t.Errorf("ParseXRefStream() without stream error = %v", err)
	}
}

func TestFormatXRefEntry(t *testing.T) {
	tests := []struct {
		offset, gen int
		inUse       bool
		want        string
	}{
		{0, 65535, false, "0000000000 65535 f \n"},
		{15, 0, true, "0000000015 00000 n \n"},
		{1234567890, 3, true, "1234567890 00003 n \n"},
	}
	for _, tt := range tests {
		got := FormatXRefEntry(tt.offset, tt.gen, tt.inUse)
		if string(got) != tt.want || len(got) != 20 {
			t.Errorf("FormatXRefEntry(%d, %d) = %q, want %q", tt.offset, tt.gen, got, tt.want)
		}
	}
}

func TestBigEndian(t *testing.T) {
	tests := []struct {
		n, width int
		want     []byte
	}{
		{0, 1, []byte{0}},
		{255, 1, []byte{255}},
		{256, 2, []byte{1, 0}},
		{0x010203, 3, []byte{1, 2, 3}},
		{5, 3, []byte{0, 0, 5}},
	}
	for _, tt := range tests {
		got := AppendBigEndian(nil, tt.n, tt.width)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("AppendBigEndian(%d, %d) = %v, want %v", tt.n, tt.width, got, tt.want)
		}
		if back := readBigEndian(got); back != tt.n {
			t.Errorf("readBigEndian(%v) = %d, want %d", got, back, tt.n)
		}
	}

	widths := map[int]int{0: 1, 255: 1, 256: 2, 65535: 2, 65536: 3, 1 << 24: 4}
	for n, want := range widths {
		if got := ByteWidth(n); got != want {
			t.Errorf("ByteWidth(%d) = %d, want %d", n, got, want)
		}
	}
}
