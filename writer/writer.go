package writer

import (
	"bytes"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/internal/filters"
	"github.com/tsawler/pdfsizeopt/logging"
)

// binaryMarker follows the header line and declares the file binary.
const binaryMarker = "%\xd0\xd4\xc5\xd0\n"

// Options selects the cross-reference format of the output.
type Options struct {
	// XrefStream writes a cross-reference stream instead of a classical
	// xref table and trailer. The output version is raised to 1.5.
	XrefStream bool

	// ObjectStreams packs streamless objects into a single object stream.
	// It has no effect without XrefStream.
	ObjectStreams bool
}

// droppedTrailerKeys describe the layout of the input file.
var droppedTrailerKeys = []string{"Prev", "XRefStm", "Compress", "Type", "W", "Index", "Length", "Filter", "DecodeParms"}

// Serialize renders doc as a complete PDF file. Objects are written in
// ascending number order with generation 0.
func Serialize(doc *core.Document, opts Options) ([]byte, error) {
	if doc.Trailer == nil {
		return nil, errors.New("document without trailer")
	}
	nums := doc.Numbers()
	if len(nums) == 0 {
		return nil, errors.New("document without objects")
	}

	version := doc.Version
	if opts.XrefStream {
		version = core.MaxVersion(version, "1.5")
	}
	buf := make([]byte, 0, estimateSize(doc))
	buf = append(buf, "%PDF-"...)
	buf = append(buf, version...)
	buf = append(buf, '\n')
	buf = append(buf, binaryMarker...)

	entries := make(map[int]core.XRefEntry, len(nums)+2)
	direct := nums
	var packed []int
	if opts.XrefStream && opts.ObjectStreams {
		direct, packed = partition(doc, nums)
		if len(packed) < 2 {
			direct, packed = nums, nil
		}
	}
	for _, num := range direct {
		entries[num] = core.XRefEntry{Type: core.XRefInUse, Offset: len(buf)}
		buf = doc.Objects[num].AppendTo(buf, num)
	}

	trailer := doc.Trailer.Dict()
	if trailer == nil {
		return nil, errors.Errorf("trailer is not a dictionary: %q", doc.Trailer.Head())
	}
	trailer = trailer.Clone()
	for _, k := range droppedTrailerKeys {
		trailer.Delete(k)
	}

	if !opts.XrefStream {
		xrefOffset := len(buf)
		buf = appendXRefTable(buf, nums, entries)
		trailer.Set("Size", core.Int(nums[len(nums)-1]+1))
		buf = append(buf, "trailer\n"...)
		buf = append(buf, core.SerializeDict(trailer)...)
		buf = append(buf, '\n')
		return appendFooter(buf, xrefOffset), nil
	}

	next := nums[len(nums)-1] + 1
	if packed != nil {
		objStm, err := GenerateObjectStream(doc, packed)
		if err != nil {
			return nil, err
		}
		for i, num := range packed {
			entries[num] = core.XRefEntry{Type: core.XRefCompressed, StreamNum: next, Index: i}
		}
		entries[next] = core.XRefEntry{Type: core.XRefInUse, Offset: len(buf)}
		buf = objStm.AppendTo(buf, next)
		next++
	}
	xrefOffset := len(buf)
	entries[next] = core.XRefEntry{Type: core.XRefInUse, Offset: xrefOffset}
	xref, err := GenerateXrefStream(entries, trailer)
	if err != nil {
		return nil, err
	}
	buf = xref.AppendTo(buf, next)
	return appendFooter(buf, xrefOffset), nil
}

// Write serializes doc to w and returns the number of bytes written.
func Write(w io.Writer, doc *core.Document, opts Options) (int64, error) {
	data, err := Serialize(doc, opts)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), errors.Wrap(err, "write PDF")
	}
	logging.Logger().Info("generated PDF", "objects", len(doc.Objects), "bytes", n,
		"xref_stream", opts.XrefStream, "object_streams", opts.ObjectStreams)
	return int64(n), nil
}

// BestMaxSize is the largest estimated output size for which WriteBest
// tries every job.
const BestMaxSize = 4 << 20

// Jobs returns the option sets WriteBest tries: opts itself, an xref
// stream without object streams if opts asks for an xref stream, and a
// classical xref. Duplicates are removed. Without opts.XrefStream the
// only job is the classical xref.
func Jobs(opts Options) []Options {
	if !opts.XrefStream {
		opts.ObjectStreams = false
	}
	jobs := []Options{opts}
	fallbacks := []Options{{}}
	if opts.XrefStream {
		fallbacks = []Options{{XrefStream: true}, {}}
	}
	for _, job := range fallbacks {
		dup := false
		for _, j := range jobs {
			if j == job {
				dup = true
			}
		}
		if !dup {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// WriteBest serializes doc with every job of Jobs(opts) and writes the
// shortest result; ties go to the earlier job. Documents estimated larger
// than BestMaxSize are written with opts only.
func WriteBest(w io.Writer, doc *core.Document, opts Options) (int64, error) {
	if estimateSize(doc) > BestMaxSize {
		return Write(w, doc, opts)
	}
	var best []byte
	var bestJob Options
	for _, job := range Jobs(opts) {
		data, err := Serialize(doc, job)
		if err != nil {
			return 0, err
		}
		logging.Logger().Debug("serialized job", "xref_stream", job.XrefStream,
			"object_streams", job.ObjectStreams, "bytes", len(data))
		if best == nil || len(data) < len(best) {
			best, bestJob = data, job
		}
	}
	n, err := w.Write(best)
	if err != nil {
		return int64(n), errors.Wrap(err, "write PDF")
	}
	logging.Logger().Info("generated PDF", "objects", len(doc.Objects), "bytes", n,
		"xref_stream", bestJob.XrefStream, "object_streams", bestJob.ObjectStreams)
	return int64(n), nil
}

func estimateSize(doc *core.Document) int {
	size := 64
	for _, obj := range doc.Objects {
		size += obj.Size()
	}
	return size
}

// partition splits nums into objects written directly and objects that
// may go into an object stream.
func partition(doc *core.Document, nums []int) (direct, packed []int) {
	for _, num := range nums {
		if ObjectStreamEligible(doc.Objects[num]) {
			packed = append(packed, num)
		} else {
			direct = append(direct, num)
		}
	}
	return direct, packed
}

// ObjectStreamEligible reports whether obj may be stored in an object
// stream: it has no stream and its head is not a bare reference.
func ObjectStreamEligible(obj *core.IndirectObject) bool {
	if obj.HasStream() {
		return false
	}
	fields := bytes.Fields(obj.Head())
	return !(len(fields) == 3 && string(fields[2]) == "R")
}

// GenerateObjectStream builds a /Type/ObjStm object holding the heads of
// the objects nums, in that order. The stream starts with the
// "num offset" pairs; /First is their length.
func GenerateObjectStream(doc *core.Document, nums []int) (*core.IndirectObject, error) {
	var header, body []byte
	for i, num := range nums {
		obj := doc.Objects[num]
		if obj == nil {
			return nil, errors.Errorf("object %d not found", num)
		}
		if !ObjectStreamEligible(obj) {
			return nil, errors.Errorf("object %d cannot go into an object stream", num)
		}
		head := obj.Head()
		if len(body) > 0 && len(head) > 0 && core.IsRegular(body[len(body)-1]) && core.IsRegular(head[0]) {
			body = append(body, ' ')
		}
		if i > 0 {
			header = append(header, ' ')
		}
		header = strconv.AppendInt(header, int64(num), 10)
		header = append(header, ' ')
		header = strconv.AppendInt(header, int64(len(body)), 10)
		body = append(body, head...)
	}
	if len(body) > 0 && core.IsRegular(body[0]) {
		header = append(header, ' ')
	}

	obj := core.NewDictObject(core.Dict{
		"Type":  core.Name("ObjStm"),
		"N":     core.Int(len(nums)),
		"First": core.Int(len(header)),
	}, nil)
	if err := obj.SetStreamAndCompress(append(header, body...)); err != nil {
		return nil, errors.Wrap(err, "compress object stream")
	}
	return obj, nil
}

// appendXRefTable appends a classical xref section for nums. Entry 0 is
// the head of the free list; other numbers are grouped into contiguous
// subsections.
func appendXRefTable(buf []byte, nums []int, entries map[int]core.XRefEntry) []byte {
	buf = append(buf, "xref\n"...)
	i := 0
	if nums[0] != 1 {
		buf = append(buf, "0 1\n"...)
		buf = append(buf, core.FormatXRefEntry(0, 65535, false)...)
	}
	for i < len(nums) {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		first, count := nums[i], j-i
		if first == 1 {
			first, count = 0, count+1
		}
		buf = strconv.AppendInt(buf, int64(first), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(count), 10)
		buf = append(buf, '\n')
		if first == 0 {
			buf = append(buf, core.FormatXRefEntry(0, 65535, false)...)
		}
		for ; i < j; i++ {
			buf = append(buf, core.FormatXRefEntry(entries[nums[i]].Offset, 0, true)...)
		}
	}
	return buf
}

func appendFooter(buf []byte, xrefOffset int) []byte {
	buf = append(buf, "startxref\n"...)
	buf = strconv.AppendInt(buf, int64(xrefOffset), 10)
	return append(buf, "\n%%EOF\n"...)
}

// xrefLayout is one way of laying out the rows of an xref stream.
type xrefLayout struct {
	widths [3]int
	index  core.Array // nil when the rows start at object 0
	rows   []byte
}

// GenerateXrefStream builds a cross-reference stream object for entries,
// which must include the entry of the xref stream itself. The keys of
// trailer are copied into its dictionary, and /Size is set.
//
// Two layouts are tried: one row per object number from 0, with absent
// numbers as free rows, and one row per listed object with an /Index of
// the contiguous runs. The rows are stored uncompressed, Flate compressed
// or Flate compressed after the PNG Up predictor, whichever object is the
// shortest.
func GenerateXrefStream(entries map[int]core.XRefEntry, trailer core.Dict) (*core.IndirectObject, error) {
	if len(entries) == 0 {
		return nil, errors.New("no xref entries")
	}
	nums := make([]int, 0, len(entries))
	for num := range entries {
		if num <= 0 {
			return nil, errors.Errorf("invalid object number %d in xref", num)
		}
		nums = append(nums, num)
	}
	sort.Ints(nums)
	size := nums[len(nums)-1] + 1

	var best *core.IndirectObject
	bestSize := 0
	for _, layout := range []*xrefLayout{denseLayout(entries, size), indexLayout(entries, nums)} {
		for _, predict := range []int{0, 1, 2} {
			obj, err := xrefObject(layout, trailer, size, predict)
			if err != nil {
				return nil, err
			}
			if n := len(obj.AppendTo(nil, 0)); best == nil || n < bestSize {
				best, bestSize = obj, n
			}
		}
	}
	return best, nil
}

// xrefWidths computes the field widths for the rows of nums. The type
// field is omitted when every row is in use and the caller needs no free
// rows.
func xrefWidths(entries map[int]core.XRefEntry, nums []int, needFree bool) [3]int {
	var w [3]int
	max1, max2 := 0, 0
	typed := needFree
	for _, num := range nums {
		e := entries[num]
		switch e.Type {
		case core.XRefInUse:
			max1 = max(max1, e.Offset)
			max2 = max(max2, e.Generation)
		case core.XRefCompressed:
			typed = true
			max1 = max(max1, e.StreamNum)
			max2 = max(max2, e.Index)
		default:
			typed = true
		}
	}
	if typed {
		w[0] = 1
	}
	w[1] = core.ByteWidth(max1)
	if max2 > 0 {
		w[2] = core.ByteWidth(max2)
	}
	return w
}

func appendXRefRow(rows []byte, w [3]int, e core.XRefEntry) []byte {
	var typ, f1, f2 int
	switch e.Type {
	case core.XRefInUse:
		typ, f1, f2 = 1, e.Offset, e.Generation
	case core.XRefCompressed:
		typ, f1, f2 = 2, e.StreamNum, e.Index
	}
	rows = core.AppendBigEndian(rows, typ, w[0])
	rows = core.AppendBigEndian(rows, f1, w[1])
	return core.AppendBigEndian(rows, f2, w[2])
}

func denseLayout(entries map[int]core.XRefEntry, size int) *xrefLayout {
	all := make([]int, 0, size)
	for num := 0; num < size; num++ {
		all = append(all, num)
	}
	l := &xrefLayout{widths: xrefWidths(entries, all, true)}
	for _, num := range all {
		l.rows = appendXRefRow(l.rows, l.widths, entries[num])
	}
	return l
}

func indexLayout(entries map[int]core.XRefEntry, nums []int) *xrefLayout {
	l := &xrefLayout{widths: xrefWidths(entries, nums, false)}
	for i := 0; i < len(nums); {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		l.index = append(l.index, core.Int(nums[i]), core.Int(j-i))
		for ; i < j; i++ {
			l.rows = appendXRefRow(l.rows, l.widths, entries[nums[i]])
		}
	}
	return l
}

// xrefObject encodes the rows of layout: predict 0 stores them as is,
// 1 compresses them and 2 compresses them after the PNG Up predictor.
func xrefObject(l *xrefLayout, trailer core.Dict, size, predict int) (*core.IndirectObject, error) {
	d := trailer.Clone()
	d.Set("Type", core.Name("XRef"))
	d.Set("Size", core.Int(size))
	d.Set("W", core.Array{core.Int(l.widths[0]), core.Int(l.widths[1]), core.Int(l.widths[2])})
	if l.index != nil {
		d.Set("Index", l.index)
	}
	stream := l.rows
	switch predict {
	case 1:
		compressed, err := filters.FlateEncode(l.rows)
		if err != nil {
			return nil, errors.Wrap(err, "compress xref stream")
		}
		d.Set("Filter", core.Name("FlateDecode"))
		stream = compressed
	case 2:
		columns := l.widths[0] + l.widths[1] + l.widths[2]
		compressed, err := filters.FlateEncodeUp(l.rows, columns)
		if err != nil {
			return nil, errors.Wrap(err, "compress xref stream")
		}
		d.Set("Filter", core.Name("FlateDecode"))
		d.Set("DecodeParms", core.Dict{"Predictor": core.Int(12), "Columns": core.Int(columns)})
		stream = compressed
	}
	obj := core.NewDictObject(d, nil)
	obj.SetStream(stream)
	return obj, nil
}
