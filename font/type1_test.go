package font

import (
	"bytes"
	"encoding/hex"
	"errors"
	"reflect"
	"testing"
)

const type1ClearText = "%!PS-AdobeFont-1.0: TestFont 001.000\n" +
	"11 dict begin\n" +
	"/FontInfo 2 dict dup begin /FullName (Test Font) readonly def end readonly def\n" +
	"/FontName /TestFont def\n" +
	"/FontType 1 def\n" +
	"/FontMatrix [0.001 0 0 0.001 0 0] readonly def\n" +
	"currentfile eexec\n"

const type1Private = "\x11\x22\x33\x44" +
	"dup /Private 8 dict dup begin\n" +
	"/RD{string currentfile exch readstring pop}executeonly def\n" +
	"/ND{noaccess def}executeonly def\n" +
	"/Subrs 1 array\ndup 0 3 RD \x0b(\xff NP\nND\n" +
	"2 index /CharStrings 3 dict dup begin\n" +
	"/.notdef 4 RD \x8b(\xf7) ND\n" +
	"/A 3 RD )x< ND\n" +
	"/B 2 RD ab ND\n" +
	"end\nend\nreadonly put\nnoaccess put\ndup /FontName get exch definefont pop\n" +
	"mark currentfile closefile\n"

func encryptEexec(plain []byte) []byte {
	r := uint16(eexecKey)
	out := make([]byte, len(plain))
	for i, p := range plain {
		c := p ^ byte(r>>8)
		out[i] = c
		r = (uint16(c)+r)*eexecC1 + eexecC2
	}
	return out
}

func TestDecryptEexec(t *testing.T) {
	plain := []byte(type1Private)
	encrypted := encryptEexec(plain)

	if got := DecryptEexec(encrypted); !bytes.Equal(got, plain[4:]) {
		t.Errorf("DecryptEexec(binary) = %q, want %q", got, plain[4:])
	}
	hexForm := []byte("\r\n" + hex.EncodeToString(encrypted[:20]) + "\n" + hex.EncodeToString(encrypted[20:]))
	if got := DecryptEexec(hexForm); !bytes.Equal(got, plain[4:]) {
		t.Errorf("DecryptEexec(hex) = %q, want %q", got, plain[4:])
	}
	if got := DecryptEexec([]byte{1, 2}); got != nil {
		t.Errorf("DecryptEexec(short) = %q, want nil", got)
	}
}

func TestInspectType1(t *testing.T) {
	encrypted := encryptEexec([]byte(type1Private))
	trailer := "\n" + string(bytes.Repeat([]byte("0"), 64)) + "\ncleartomark\n"
	program := append([]byte(type1ClearText), encrypted...)
	program = append(program, trailer...)

	tests := []struct {
		name    string
		length1 int
		length2 int
	}{
		{"lengths", len(type1ClearText), len(encrypted)},
		{"no lengths", 0, 0},
		{"no length2", len(type1ClearText), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := InspectType1(program, tt.length1, tt.length2)
			if err != nil {
				t.Fatalf("InspectType1() error = %v", err)
			}
			if info.FontName != "TestFont" || info.FontType != 1 {
				t.Errorf("InspectType1() = %q type %d, want TestFont type 1", info.FontName, info.FontType)
			}
			if want := []string{".notdef", "A", "B"}; !reflect.DeepEqual(info.GlyphNames, want) {
				t.Errorf("GlyphNames = %q, want %q", info.GlyphNames, want)
			}
		})
	}
}

func TestInspectType1Errors(t *testing.T) {
	tests := []struct {
		name    string
		program []byte
	}{
		{"no eexec", []byte("/FontName /X def\n")},
		{"no font name", append([]byte("/FontType 1 def currentfile eexec\n"), encryptEexec([]byte(type1Private))...)},
		{"no charstrings", append([]byte(type1ClearText), encryptEexec([]byte("1234/Private 1 dict"))...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := InspectType1(tt.program, 0, 0); !errors.Is(err, ErrInvalidType1) {
				t.Errorf("InspectType1() error = %v, want ErrInvalidType1", err)
			}
		})
	}
}

func TestInspectType1FontNames(t *testing.T) {
	encrypted := encryptEexec([]byte(type1Private))
	tests := []struct {
		clear string
		want  string
	}{
		{"/FontName /Times-Roman def /FontType 1 def currentfile eexec\n", "Times-Roman"},
		{"/FontType 1 def\n/FontName /ABCDEF+CMR10 def currentfile eexec\n", "ABCDEF+CMR10"},
		{"/FontInfo 1 dict dup begin /Notice (FontName) def end def /FontName /X.1 def currentfile eexec\n", "X.1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			program := append([]byte(tt.clear), encrypted...)
			info, err := InspectType1(program, len(tt.clear), len(encrypted))
			if err != nil {
				t.Fatalf("InspectType1() error = %v", err)
			}
			if info.FontName != tt.want {
				t.Errorf("InspectType1() FontName = %q, want %q", info.FontName, tt.want)
			}
			if len(info.GlyphNames) != 3 {
				t.Errorf("GlyphNames = %q, want 3 names", info.GlyphNames)
			}
		})
	}
}
