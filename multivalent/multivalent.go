package multivalent

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/internal/filters"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/reader"
	"github.com/tsawler/pdfsizeopt/writer"
)

// Options controls Fix.
type Options struct {
	// InlineCompressed moves the objects of object streams out into
	// standalone objects and writes a classical xref instead of the xref
	// stream.
	InlineCompressed bool
}

// renamedKeys are dictionary keys Multivalent misspells so that it does not
// recompress image data itself.
var renamedKeys = []struct{ from, to string }{
	{"FilteR", "Filter"},
	{"DecodeParmS", "DecodeParms"},
}

// droppedKeys are trailer entries Multivalent adds that must not survive.
var droppedKeys = []string{"Compress", "ID", "Prev", "XRefStm"}

// FixNames undoes the renaming of image dictionaries: /Subtype/ImagE,
// /FilteR and /DecodeParmS. A misspelled key replaces the correct one if
// both are present. It reports whether obj changed.
func FixNames(obj *core.IndirectObject) bool {
	head := obj.Head()
	if !bytes.Contains(head, []byte("ImagE")) && !bytes.Contains(head, []byte("FilteR")) &&
		!bytes.Contains(head, []byte("DecodeParmS")) {
		return false
	}
	if !obj.IsDict() {
		return false
	}
	changed := false
	if subtype, _ := obj.Get("Subtype").(core.Name); subtype == "ImagE" {
		obj.Set("Subtype", core.Name("Image"))
		changed = true
	}
	for _, k := range renamedKeys {
		if v := obj.Get(k.from); v != nil {
			obj.Set(k.to, v)
			obj.Set(k.from, nil)
			changed = true
		}
	}
	return changed
}

// Fix rewrites a PDF produced by Multivalent: image dictionaries get their
// names back and the binary header comment is replaced. The objects are
// written in file order followed by the xref stream, whose in-use entries
// are updated to the new offsets. Without an xref stream, or with
// opts.InlineCompressed, the document is loaded and written with a
// classical xref instead.
func Fix(data []byte, opts Options) ([]byte, error) {
	version, err := reader.ParseVersion(data)
	if err != nil {
		return nil, err
	}

	var order []int
	objs := map[int]*core.IndirectObject{}
	xrefNum := 0
	renamed := 0
	err = core.ScanSequential(data, func(item core.Item) error {
		if item.Kind != core.ItemObject {
			return nil
		}
		num, obj := item.Object.Number, item.Object.Object
		if FixNames(obj) {
			renamed++
		}
		if _, ok := objs[num]; !ok {
			order = append(order, num)
		}
		objs[num] = obj
		if typ, _ := obj.Get("Type").(core.Name); typ == "XRef" && obj.HasStream() {
			xrefNum = num
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan Multivalent output")
	}
	logging.Logger().Debug("fixed Multivalent names", "objects", len(objs), "renamed", renamed)

	if xrefNum == 0 || opts.InlineCompressed {
		return rewrite(data)
	}

	buf := make([]byte, 0, len(data))
	buf = append(buf, "%PDF-"...)
	buf = append(buf, version...)
	buf = append(buf, "\n%\xd0\xd4\xc5\xd0\n"...)
	offsets := make(map[int]int, len(objs))
	for _, num := range order {
		if num == xrefNum {
			continue
		}
		offsets[num] = len(buf)
		buf = objs[num].AppendTo(buf, num)
	}
	xrefOffset := len(buf)
	offsets[xrefNum] = xrefOffset
	xref, err := FixXrefStream(objs[xrefNum], offsets)
	if err != nil {
		return nil, err
	}
	buf = xref.AppendTo(buf, xrefNum)
	buf = append(buf, "startxref\n"...)
	buf = strconv.AppendInt(buf, int64(xrefOffset), 10)
	return append(buf, "\n%%EOF\n"...), nil
}

// FixTo runs Fix and writes the result to w.
func FixTo(w io.Writer, data []byte, opts Options) (int64, error) {
	out, err := Fix(data, opts)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), errors.Wrap(err, "write PDF")
}

// rewrite loads data into a document, inlining object streams, fixes
// its names and writes it with a classical xref.
func rewrite(data []byte) ([]byte, error) {
	doc, err := reader.Load(data, reader.DefaultOptions())
	if err != nil {
		return nil, errors.Wrap(err, "load Multivalent output")
	}
	for _, obj := range doc.Objects {
		FixNames(obj)
	}
	for _, k := range droppedKeys {
		doc.Trailer.Set(k, nil)
	}
	return writer.Serialize(doc, writer.Options{})
}

// FixXrefStream returns a copy of the xref stream xref whose in-use
// entries point to offsets. Every in-use entry other than object 0 must
// have an offset. Free and compressed entries are kept. /W and /Index are kept, except that the
// offset field is widened when a new offset does not fit. The rows are
// Flate compressed, with the PNG Up predictor if the original used a
// predictor, only if the original was compressed.
func FixXrefStream(xref *core.IndirectObject, offsets map[int]int) (*core.IndirectObject, error) {
	head := xref.Dict()
	if head == nil {
		return nil, errors.Wrap(core.ErrXrefStream, "xref stream head is not a dictionary")
	}
	w, ok := head.GetArray("W")
	if !ok || len(w) != 3 {
		return nil, errors.Wrap(core.ErrXrefStream, "/W must be an array of three integers")
	}
	var widths [3]int
	rowSize := 0
	for i := range widths {
		n, ok := w.GetInt(i)
		if !ok || n < 0 || n > 8 {
			return nil, errors.Wrapf(core.ErrXrefStream, "invalid /W field %d", i)
		}
		widths[i] = int(n)
		rowSize += int(n)
	}
	if rowSize == 0 {
		return nil, errors.Wrap(core.ErrXrefStream, "/W fields are all zero")
	}
	size, _ := head.GetInt("Size")
	index := core.Array{core.Int(0), size}
	if arr, ok := head.GetArray("Index"); ok {
		index = arr
	}
	if len(index)%2 != 0 {
		return nil, errors.Wrap(core.ErrXrefStream, "/Index has an odd number of elements")
	}
	data, err := xref.DecodedStream()
	if err != nil {
		return nil, errors.Wrap(core.ErrXrefStream, err.Error())
	}

	type row struct{ typ, f1, f2 int }
	var rows []row
	pos := 0
	for i := 0; i < len(index); i += 2 {
		first, ok1 := index.GetInt(i)
		count, ok2 := index.GetInt(i + 1)
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, errors.Wrap(core.ErrXrefStream, "/Index entries must be non-negative integers")
		}
		for j := 0; j < int(count); j++ {
			if pos+rowSize > len(data) {
				return nil, errors.Wrapf(core.ErrXrefStream, "stream ends inside entry for object %d", int(first)+j)
			}
			r := row{typ: 1}
			if widths[0] > 0 {
				r.typ = readField(data[pos : pos+widths[0]])
			}
			r.f1 = readField(data[pos+widths[0] : pos+widths[0]+widths[1]])
			r.f2 = readField(data[pos+widths[0]+widths[1] : pos+rowSize])
			pos += rowSize
			if num := int(first) + j; r.typ == 1 && num != 0 {
				off, ok := offsets[num]
				if !ok {
					return nil, errors.Wrapf(core.ErrXrefStream, "object %d is in use but has no new offset", num)
				}
				r.f1 = off
			}
			rows = append(rows, r)
		}
	}

	for _, r := range rows {
		if need := core.ByteWidth(r.f1); r.f1 > 0 && need > widths[1] {
			widths[1] = need
		}
	}
	out := make([]byte, 0, len(rows)*(widths[0]+widths[1]+widths[2]))
	for _, r := range rows {
		out = core.AppendBigEndian(out, r.typ, widths[0])
		out = core.AppendBigEndian(out, r.f1, widths[1])
		out = core.AppendBigEndian(out, r.f2, widths[2])
	}

	d := head.Clone()
	for _, k := range droppedKeys {
		d.Delete(k)
	}
	d.Set("W", core.Array{core.Int(widths[0]), core.Int(widths[1]), core.Int(widths[2])})
	stream := out
	if _, filtered := d["Filter"]; filtered {
		columns := widths[0] + widths[1] + widths[2]
		predicted := d.Has("DecodeParms")
		d.Delete("DecodeParms")
		if predicted {
			stream, err = filters.FlateEncodeUp(out, columns)
			d.Set("DecodeParms", core.Dict{"Predictor": core.Int(12), "Columns": core.Int(columns)})
		} else {
			stream, err = filters.FlateEncode(out)
		}
		if err != nil {
			return nil, errors.Wrap(err, "compress xref stream")
		}
		d.Set("Filter", core.Name("FlateDecode"))
	}
	obj := core.NewDictObject(d, nil)
	obj.SetStream(stream)
	return obj, nil
}

func readField(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n
}
