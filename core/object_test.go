package core

import (
	"testing"
)

func TestObjectString(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		want string
	}{
		{"null", Null{}, "null"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"int", Int(-42), "-42"},
		{"real", Real(3.50), "3.5"},
		{"real integral", Real(2), "2"},
		{"real small", Real(0.000001), ".000001"},
		{"real leading zero dropped", Real(-0.25), "-.25"},
		{"string literal", String("Hi"), "(Hi)"},
		{"string backslash", String(`a\b`), `(a\\b)`},
		{"name", Name("Type"), "/Type"},
		{"name escaped", Name("A B"), "/A#20B"},
		{"array", Array{Int(1), Name("X"), Int(2)}, "[1/X 2]"},
		{"ref", IndirectRef{Number: 12, Generation: 0}, "12 0 R"},
		{"raw", Raw("[1 2]"), "[1 2]"},
		{"dict", Dict{"Type": Name("Page"), "Count": Int(3)}, "<</Count 3/Type/Page>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obj.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObjectTypeString(t *testing.T) {
	if got := ObjDict.String(); got == "" {
		t.Error("ObjDict.String() is empty")
	}
	if Int(1).Type() != ObjInt || (Dict{}).Type() != ObjDict || Raw("[]").Type() != ObjRaw {
		t.Error("Type() returned wrong kinds")
	}
}

func TestDictAccessors(t *testing.T) {
	d := Dict{
		"Type":   Name("Font"),
		"Width":  Int(600),
		"Scale":  Real(0.5),
		"Title":  String("T"),
		"Hidden": Bool(true),
		"Parent": IndirectRef{Number: 3},
		"Box":    Raw("[0 0 612 792]"),
		"Res":    Raw("<</Font<</F1 5 0 R>>>>"),
	}

	if name, ok := d.GetName("Type"); !ok || name != "Font" {
		t.Errorf("GetName() = %v, %v, want Font, true", name, ok)
	}
	if _, ok := d.GetName("Width"); ok {
		t.Error("GetName() on an integer should fail")
	}
	if n, ok := d.GetInt("Width"); !ok || n != 600 {
		t.Errorf("GetInt() = %v, %v, want 600, true", n, ok)
	}
	if f, ok := d.GetNumber("Scale"); !ok || f != 0.5 {
		t.Errorf("GetNumber() = %v, %v, want 0.5, true", f, ok)
	}
	if f, ok := d.GetNumber("Width"); !ok || f != 600 {
		t.Errorf("GetNumber() on int = %v, %v, want 600, true", f, ok)
	}
	if s, ok := d.GetString("Title"); !ok || s != "T" {
		t.Errorf("GetString() = %v, %v", s, ok)
	}
	if b, ok := d.GetBool("Hidden"); !ok || !bool(b) {
		t.Errorf("GetBool() = %v, %v", b, ok)
	}
	if ref, ok := d.GetIndirectRef("Parent"); !ok || ref.Number != 3 {
		t.Errorf("GetIndirectRef() = %v, %v", ref, ok)
	}

	box, ok := d.GetArray("Box")
	if !ok || box.Len() != 4 {
		t.Fatalf("GetArray() = %v, %v, want 4 elements", box, ok)
	}
	if n, ok := box.GetInt(2); !ok || n != 612 {
		t.Errorf("Array.GetInt(2) = %v, %v, want 612", n, ok)
	}
	if box.Get(10) != nil {
		t.Error("Array.Get() out of range should be nil")
	}

	res, ok := d.GetDict("Res")
	if !ok {
		t.Fatal("GetDict() on a Raw dictionary failed")
	}
	fonts, ok := res.GetDict("Font")
	if !ok {
		t.Fatal("GetDict() on a nested Raw dictionary failed")
	}
	if ref, ok := fonts.GetIndirectRef("F1"); !ok || ref.Number != 5 {
		t.Errorf("nested reference = %v, %v, want 5 0 R", ref, ok)
	}
	if _, ok := d.GetDict("Box"); ok {
		t.Error("GetDict() on an array should fail")
	}
}

func TestDictMutation(t *testing.T) {
	d := Dict{"A": Int(1)}
	d.Set("B", Name("X"))
	if !d.Has("B") {
		t.Error("Set() did not add key")
	}
	d.Set("A", nil)
	if d.Has("A") {
		t.Error("Set(nil) did not delete key")
	}
	c := d.Clone()
	c.Delete("B")
	if !d.Has("B") {
		t.Error("Clone() shares storage with the original")
	}
	if keys := (Dict{"b": Null{}, "a": Null{}, "C": Null{}}).Keys(); len(keys) != 3 || keys[0] != "C" || keys[1] != "a" {
		t.Errorf("Keys() = %v, want sorted", keys)
	}
}

func TestSerializeDict(t *testing.T) {
	tests := []struct {
		name string
		dict Dict
		want string
	}{
		{"empty", Dict{}, "<<>>"},
		{"name values need no space", Dict{"Type": Name("XObject"), "Subtype": Name("Image")}, "<</Subtype/Image/Type/XObject>>"},
		{"numbers need a space", Dict{"Length": Int(4)}, "<</Length 4>>"},
		{"negative number", Dict{"X": Real(-1.5)}, "<</X -1.5>>"},
		{"reference", Dict{"Parent": IndirectRef{Number: 2}}, "<</Parent 2 0 R>>"},
		{"bool", Dict{"A": Bool(false)}, "<</A false>>"},
		{"composite", Dict{"K": Array{Int(1)}, "S": String("x")}, "<</K[1]/S(x)>>"},
		{"nil value", Dict{"N": nil}, "<</N null>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(SerializeDict(tt.dict)); got != tt.want {
				t.Errorf("SerializeDict() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Object
		want bool
	}{
		{"same ints", Int(3), Int(3), true},
		{"int vs real", Int(3), Real(3), true},
		{"int vs real differ", Int(3), Real(3.5), false},
		{"number vs name", Int(3), Name("3"), false},
		{"strings by bytes", String("ab"), String("ab"), true},
		{"dict key order", Dict{"A": Int(1), "B": Int(2)}, Dict{"B": Int(2), "A": Int(1)}, true},
		{"dict differs", Dict{"A": Int(1)}, Dict{"A": Int(2)}, false},
		{"raw vs array", Raw("[1 2]"), Array{Int(1), Int(2)}, true},
		{"raw spacing", Raw("[1  2 ]"), Raw("[1 2]"), true},
		{"array length", Array{Int(1)}, Array{Int(1), Int(1)}, false},
		{"refs", IndirectRef{Number: 1}, IndirectRef{Number: 1}, true},
		{"refs differ", IndirectRef{Number: 1}, IndirectRef{Number: 2}, false},
		{"nil nil", nil, nil, true},
		{"nil vs null", nil, Null{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
