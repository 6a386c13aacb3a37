package multivalent

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/internal/filters"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/reader"
	"github.com/tsawler/pdfsizeopt/writer"
)

const multivalentOutput = "%PDF-1.5\n" +
	"%\x90\x84\x86\x8f\n" +
	"1 0 obj<</Type/Pages/Kids[5 0 R]/MediaBox[0 0 419 534]/Count 1>>\n" +
	"endobj\n" +
	"2 0 obj<</Type   /Catalog/Pages 1 0 R>>\n" +
	"endobj\n" +
	"3 0 obj<</Length 30>>stream\n" +
	"\n" +
	"q\n" +
	"419 0 0 534 0 0 cm /S Do\n" +
	"Q\n" +
	"\n" +
	"endstream\n" +
	"endobj\n" +
	"4 0 obj<</Subtype/ImagE/Width 419/Height    534/FilteR/FlateDecode" +
	"/Interpolate false/BitsPerComponent 1/ColorSpace/DeviceGray" +
	"/Length 4/Filter/JPXDecode>>stream\n" +
	"BLAH\n" +
	"endstream\n" +
	"endobj\n" +
	"5 0 obj<</Type/Page/Contents 3 0 R/Resources<</XObject<</S 4 0 R>>>>" +
	"/Parent 1 0 R>>\n" +
	"endobj\n" +
	"6 0 obj<</Type/XRef/W[0 2 0]/Size 7/Root 2 0 R/Compress<<" +
	"/LengthO 7677/SpecO/1.2>>/ID[" +
	"(\x87\xfa\x8d\xcdc\x80\xf4y\xa9\x9e\tI\xa0b\xad3)" +
	"(\x8d\\\\\x87\xa1\xbb\t\xae\xe6sU<\x10\x90*I\xf1)" +
	"]/Length 14>>stream\n" +
	"\x00\x00\x00\x0f\x00W\x00\x86\x00\xd2\x01\x88\x01\xe3\n" +
	"endstream\n" +
	"endobj\n" +
	"startxref\n" +
	"483\n" +
	"%%EOF\n"

const fixedOutput = "%PDF-1.5\n" +
	"%\xd0\xd4\xc5\xd0\n" +
	"1 0 obj\n" +
	"<</Type/Pages/Kids[5 0 R]/MediaBox[0 0 419 534]/Count 1>>endobj\n" +
	"2 0 obj\n" +
	"<</Type/Catalog/Pages 1 0 R>>endobj\n" +
	"3 0 obj\n" +
	"<</Length 30>>stream\n" +
	"\n" +
	"q\n" +
	"419 0 0 534 0 0 cm /S Do\n" +
	"Q\n" +
	"endstream endobj\n" +
	"4 0 obj\n" +
	"<</BitsPerComponent 1/ColorSpace/DeviceGray/Filter/FlateDecode" +
	"/Height 534/Interpolate false/Length 4/Subtype/Image/Width 419" +
	">>stream\n" +
	"BLAHendstream endobj\n" +
	"5 0 obj\n" +
	"<</Type/Page/Contents 3 0 R/Resources<</XObject<</S 4 0 R>>>>" +
	"/Parent 1 0 R>>endobj\n" +
	"6 0 obj\n" +
	"<</Length 14/Root 2 0 R/Size 7/Type/XRef/W[0 2 0]>>stream\n" +
	"\x00\x00\x00\x0f\x00W\x00\x83\x00\xcf\x01q\x01\xcc" +
	"endstream endobj\n" +
	"startxref\n" +
	"460\n" +
	"%%EOF\n"

func TestFix(t *testing.T) {
	got, err := Fix([]byte(multivalentOutput), Options{})
	require.NoError(t, err)
	assert.Equal(t, fixedOutput, string(got))

	again, err := Fix(got, Options{})
	require.NoError(t, err)
	assert.Equal(t, fixedOutput, string(again))
}

func TestFixOffsetsLoadable(t *testing.T) {
	h := logging.NewBufferedHandler(slog.LevelWarn)
	old := logging.Logger()
	logging.SetLogger(slog.New(h))
	defer logging.SetLogger(old)

	out, err := Fix([]byte(multivalentOutput), Options{})
	require.NoError(t, err)

	doc, err := reader.Load(out, reader.DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, h.Len(), "warnings: %s", h.String())
	assert.Len(t, doc.Objects, 5)
	assert.True(t, doc.Objects[4].IsImage())
	assert.False(t, doc.Trailer.Dict().Has("Compress"))
}

func TestFixNames(t *testing.T) {
	tests := []struct {
		name    string
		head    string
		want    string
		changed bool
	}{
		{
			name:    "image subtype",
			head:    "<</Subtype/ImagE/Width 1>>",
			want:    "<</Subtype/Image/Width 1>>",
			changed: true,
		},
		{
			name:    "filter overrides",
			head:    "<</FilteR/FlateDecode/Filter/JPXDecode>>",
			want:    "<</Filter/FlateDecode>>",
			changed: true,
		},
		{
			name:    "decode parms",
			head:    "<</DecodeParmS<</Predictor 15>>>>",
			want:    "<</DecodeParms<</Predictor 15>>>>",
			changed: true,
		},
		{
			name: "untouched",
			head: "<</Subtype/Image/Filter/FlateDecode>>",
			want: "<</Subtype/Image/Filter/FlateDecode>>",
		},
		{
			name: "name inside a string",
			head: "<</Title(ImagE)>>",
			want: "<</Title(ImagE)>>",
		},
		{
			name: "not a dictionary",
			head: "[/ImagE]",
			want: "[/ImagE]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := core.NewObject([]byte(tt.head), nil)
			assert.Equal(t, tt.changed, FixNames(obj))
			assert.Equal(t, tt.want, string(obj.Head()))
		})
	}
}

// packedPDF writes a document with an object stream and an image whose
// subtype is then misspelled in place.
func packedPDF(t *testing.T) []byte {
	t.Helper()
	doc := core.NewDocument("1.5")
	doc.Trailer = core.NewObject([]byte("<</Root 1 0 R>>"), nil)
	doc.Objects[1] = core.NewObject([]byte("<</Type/Catalog/Pages 2 0 R>>"), nil)
	doc.Objects[2] = core.NewObject([]byte("<</Type/Pages/Count 1/Kids[3 0 R]>>"), nil)
	doc.Objects[3] = core.NewObject([]byte("<</Type/Page/Parent 2 0 R/Resources<</XObject<</I 4 0 R>>>>>>"), nil)
	doc.Objects[4] = core.NewObject([]byte("<</Subtype/Image/Width 1/Height 1/BitsPerComponent 8/ColorSpace/DeviceGray/Length 1>>"), []byte{0x80})
	data, err := writer.Serialize(doc, writer.Options{XrefStream: true, ObjectStreams: true})
	require.NoError(t, err)
	require.Contains(t, string(data), "/ObjStm")
	return bytes.Replace(data, []byte("/Subtype/Image"), []byte("/Subtype/ImagE"), 1)
}

func TestFixObjectStreams(t *testing.T) {
	data := packedPDF(t)

	out, err := Fix(data, Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "/ObjStm")
	assert.NotContains(t, string(out), "ImagE")

	doc, err := reader.Load(out, reader.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, doc.Objects, 4)
	assert.True(t, doc.Objects[4].IsImage())
	assert.Equal(t, "<</Type/Catalog/Pages 2 0 R>>", string(doc.Objects[1].Head()))
}

func TestFixInlineCompressed(t *testing.T) {
	data := packedPDF(t)

	out, err := Fix(data, Options{InlineCompressed: true})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "/ObjStm")
	assert.NotContains(t, string(out), "/XRef")
	assert.Contains(t, string(out), "\nxref\n0 5\n0000000000 65535 f \n")
	assert.Contains(t, string(out), "1 0 obj\n<</Type/Catalog/Pages 2 0 R>>endobj\n")

	doc, err := reader.Load(out, reader.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, doc.Objects, 4)
	assert.True(t, doc.Objects[4].IsImage())
}

func TestFixXrefStreamWidens(t *testing.T) {
	xref := core.NewObject([]byte("<</Type/XRef/W[1 1 0]/Index[3 2]/Size 5/Length 4>>"), []byte{1, 10, 2, 3})
	fixed, err := FixXrefStream(xref, map[int]int{3: 70000, 4: 9})
	require.NoError(t, err)

	w, _ := fixed.Dict().GetArray("W")
	assert.Equal(t, "[1 3 0]", w.String())
	assert.Equal(t, []byte{1, 1, 0x11, 0x70, 2, 0, 0, 3}, fixed.Stream)

	table, err := core.ParseXRefStream(fixed)
	require.NoError(t, err)
	assert.Equal(t, core.XRefEntry{Type: core.XRefInUse, Offset: 70000}, table.Entries[3])
	assert.Equal(t, core.XRefEntry{Type: core.XRefCompressed, StreamNum: 3}, table.Entries[4])
}

func TestFixXrefStreamCompressed(t *testing.T) {
	rows := []byte{0, 0, 1, 15, 1, 40}
	compressed, err := filters.FlateEncodeUp(rows, 2)
	require.NoError(t, err)
	orig := core.NewDictObject(core.Dict{
		"Type":        core.Name("XRef"),
		"W":           core.Array{core.Int(1), core.Int(1), core.Int(0)},
		"Size":        core.Int(3),
		"Filter":      core.Name("FlateDecode"),
		"DecodeParms": core.Dict{"Predictor": core.Int(12), "Columns": core.Int(2)},
	}, nil)
	orig.SetStream(compressed)

	fixed, err := FixXrefStream(orig, map[int]int{1: 16, 2: 41})
	require.NoError(t, err)
	assert.Equal(t, core.Name("FlateDecode"), fixed.Get("Filter"))
	parms, ok := fixed.Dict().GetDict("DecodeParms")
	require.True(t, ok)
	assert.Equal(t, core.Int(2), parms.Get("Columns"))

	table, err := core.ParseXRefStream(fixed)
	require.NoError(t, err)
	assert.Equal(t, 16, table.Entries[1].Offset)
	assert.Equal(t, 41, table.Entries[2].Offset)
	assert.Equal(t, core.XRefFree, table.Entries[0].Type)
}

func TestFixXrefStreamMissingObject(t *testing.T) {
	// Object 4 is listed in use, but the scan found only object 3.
	xref := core.NewObject([]byte("<</Type/XRef/W[1 1 0]/Index[3 2]/Size 5/Length 4>>"), []byte{1, 10, 1, 20})
	_, err := FixXrefStream(xref, map[int]int{3: 12})
	assert.ErrorIs(t, err, core.ErrXrefStream)

	// A stream without type fields marks object 0 in use; it needs no offset.
	xref = core.NewObject([]byte("<</Type/XRef/W[0 1 0]/Size 2/Length 2>>"), []byte{0, 10})
	fixed, err := FixXrefStream(xref, map[int]int{1: 12})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 12}, fixed.Stream)
}

func TestFixErrors(t *testing.T) {
	_, err := Fix([]byte("not a pdf"), Options{})
	assert.ErrorIs(t, err, core.ErrParse)

	_, err = FixXrefStream(core.NewObject([]byte("<</W[1 2]>>"), []byte{}), nil)
	assert.ErrorIs(t, err, core.ErrXrefStream)

	_, err = FixXrefStream(core.NewObject([]byte("<</W[1 1 0]/Size 3>>"), []byte{1, 2}), nil)
	assert.ErrorIs(t, err, core.ErrXrefStream)
}
