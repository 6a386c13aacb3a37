package reader

import (
	"bytes"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/logging"
)

// Options controls how objects are loaded.
type Options struct {
	// IgnoreGenerationNumbers treats every object as generation 0.
	IgnoreGenerationNumbers bool

	// RemoveGenerationalObjs drops objects with a nonzero generation
	// number instead of failing. Only consulted when generation numbers
	// are not ignored.
	RemoveGenerationalObjs bool
}

// DefaultOptions returns the options used by the optimizer.
func DefaultOptions() Options {
	return Options{IgnoreGenerationNumbers: true}
}

var errGeneration = errors.Wrap(core.ErrFormatUnsupported, "nonzero generation number")

// File is a PDF file mapped into memory.
type File struct {
	f *os.File
	m mmap.MMap

	// Data is the file content. It is only valid until Close.
	Data []byte
}

// Open maps filename read-only.
func Open(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat pdf")
	}
	file := &File{f: f}
	if info.Size() == 0 {
		// mmap refuses empty files.
		return file, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "map %s", filename)
	}
	file.m = m
	file.Data = m
	return file, nil
}

// Close unmaps and closes the file.
func (f *File) Close() error {
	var err error
	if f.m != nil {
		err = f.m.Unmap()
		f.m = nil
		f.Data = nil
	}
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadFile loads the document stored in filename.
func ReadFile(filename string, opts Options) (*core.Document, error) {
	f, err := Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f.Data, opts)
}

var headerRE = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// ParseVersion returns the version named by the %PDF- header, which must
// start within the first 1024 bytes.
func ParseVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := headerRE.FindSubmatch(head)
	if m == nil {
		return "", errors.Wrap(core.ErrParse, "PDF header not found")
	}
	return string(m[1]), nil
}

// Load builds a document from the bytes of a PDF file. The xref is read
// from startxref (classical table or xref stream, following /Prev); if
// that fails, or any object is not where the xref says, the whole file
// is scanned for object definitions instead. The returned document does
// not reference data.
func Load(data []byte, opts Options) (*core.Document, error) {
	version, err := ParseVersion(data)
	if err != nil {
		return nil, err
	}

	l := newLoader(data, opts, version)
	table, err := readXRefChain(data)
	if err == nil {
		err = l.loadTable(table, true)
	}
	if errors.Is(err, core.ErrEncrypted) || errors.Is(err, errGeneration) {
		return nil, err
	}
	if err != nil {
		logging.Logger().Warn("falling back to object scan", "err", err)
		l = newLoader(data, opts, version)
		if table, err = scanObjects(data); err != nil {
			return nil, err
		}
		if err := l.loadTable(table, false); err != nil {
			return nil, err
		}
	}
	l.finish(table.Trailer)
	return l.doc, nil
}

type loader struct {
	data []byte
	opts Options
	doc  *core.Document
}

func newLoader(data []byte, opts Options, version string) *loader {
	doc := core.NewDocument(version)
	doc.FileSize = len(data)
	return &loader{data: data, opts: opts, doc: doc}
}

// loadTable loads every object listed in table. Objects with an indirect
// /Length are loaded in a second pass, once the objects holding the
// lengths are known. In strict mode the first bad object is an error;
// otherwise bad objects are logged and dropped, and objects found only
// inside object streams are added to the table.
func (l *loader) loadTable(table *core.XRefTable, strict bool) error {
	var deferred []int
	for _, num := range sortedNumbers(table) {
		e := table.Entries[num]
		if num == 0 || e.Type != core.XRefInUse {
			continue
		}
		if ok, err := l.acceptGeneration(num, e.Generation); err != nil {
			return err
		} else if !ok {
			continue
		}
		err := l.loadObject(num, e, nil)
		if errors.Is(err, core.ErrIndirectLength) {
			deferred = append(deferred, num)
			continue
		}
		if err := l.check(num, err, strict); err != nil {
			return err
		}
	}
	for _, num := range deferred {
		if err := l.check(num, l.loadObject(num, table.Entries[num], l.lengthOf), strict); err != nil {
			return err
		}
	}

	if !strict {
		l.addObjectStreamEntries(table)
	}
	streams := map[int]*core.ObjectStream{}
	for _, num := range sortedNumbers(table) {
		e := table.Entries[num]
		if num == 0 || e.Type != core.XRefCompressed {
			continue
		}
		s, ok := streams[e.StreamNum]
		if !ok {
			var err error
			s, err = l.objectStream(e.StreamNum)
			if err := l.check(num, err, strict); err != nil {
				return err
			}
			streams[e.StreamNum] = s
		}
		if s == nil {
			continue
		}
		head, err := s.Head(e.Index, num)
		if err := l.check(num, err, strict); err != nil {
			return err
		}
		if err == nil {
			l.doc.Objects[num] = core.NewObject(head, nil)
		}
	}
	return nil
}

// check turns a per-object load error into a loader error in strict mode
// and into a warning otherwise.
func (l *loader) check(num int, err error, strict bool) error {
	if err == nil {
		return nil
	}
	if strict {
		return errors.Wrapf(err, "object %d", num)
	}
	logging.Logger().Warn("dropping unparsable object", "obj", num, "err", err)
	return nil
}

func (l *loader) acceptGeneration(num, gen int) (bool, error) {
	if gen == 0 || l.opts.IgnoreGenerationNumbers {
		return true, nil
	}
	if l.opts.RemoveGenerationalObjs {
		logging.Logger().Warn("removing object with nonzero generation", "obj", num, "gen", gen)
		return false, nil
	}
	return false, errors.Wrapf(errGeneration, "object %d has generation %d", num, gen)
}

func (l *loader) loadObject(num int, e core.XRefEntry, lengthOf core.LengthFunc) error {
	if e.Offset < 0 || e.Offset >= len(l.data) {
		return errors.Wrapf(core.ErrXref, "offset %d out of range", e.Offset)
	}
	def, err := core.ParseIndirectObject(l.data, e.Offset, lengthOf)
	if err != nil {
		return err
	}
	if def.Number != num {
		return errors.Wrapf(core.ErrXref, "found object %d at offset %d", def.Number, e.Offset)
	}
	l.doc.Objects[num] = def.Object
	return nil
}

// lengthOf resolves an indirect /Length from the objects loaded so far.
// Only one level of indirection is followed.
func (l *loader) lengthOf(ref core.IndirectRef) (int, bool) {
	obj := l.doc.Objects[ref.Number]
	if obj == nil || obj.HasStream() {
		return 0, false
	}
	v, err := core.ParseSimpleValue(obj.Head())
	if err != nil {
		return 0, false
	}
	n, ok := v.(core.Int)
	return int(n), ok && n >= 0
}

func (l *loader) objectStream(num int) (*core.ObjectStream, error) {
	obj := l.doc.Objects[num]
	if obj == nil {
		return nil, errors.Wrapf(core.ErrXrefStream, "object stream %d not found", num)
	}
	return core.NewObjectStream(obj)
}

// addObjectStreamEntries lists the contents of every loaded object stream
// as compressed entries, unless the object is defined elsewhere.
func (l *loader) addObjectStreamEntries(table *core.XRefTable) {
	for _, num := range l.doc.Numbers() {
		obj := l.doc.Objects[num]
		if typ, _ := obj.Get("Type").(core.Name); typ != "ObjStm" || !obj.HasStream() {
			continue
		}
		s, err := core.NewObjectStream(obj)
		if err != nil {
			logging.Logger().Warn("skipping unreadable object stream", "obj", num, "err", err)
			continue
		}
		for i, inner := range s.Numbers {
			if _, ok := table.Entries[inner]; !ok {
				table.Entries[inner] = core.XRefEntry{Type: core.XRefCompressed, StreamNum: num, Index: i}
			}
		}
	}
}

// trailerKeys are the trailer entries describing the file layout rather
// than the document. They are regenerated on output.
var trailerKeys = []string{"Prev", "XRefStm", "Type", "W", "Index", "Length", "Filter", "DecodeParms"}

// finish installs the trailer and drops the structural objects: xref
// streams, object streams and the linearization dictionary.
func (l *loader) finish(trailer core.Dict) {
	t := core.Dict{}
	for k, v := range trailer {
		t[k] = v
	}
	for _, k := range trailerKeys {
		delete(t, k)
	}
	l.doc.Trailer = core.NewObject(core.SerializeDict(t), nil)

	delete(l.doc.Objects, 0)
	for _, num := range l.doc.Numbers() {
		obj := l.doc.Objects[num]
		if !obj.IsDict() {
			continue
		}
		typ, _ := obj.Get("Type").(core.Name)
		switch {
		case obj.HasStream() && (typ == "XRef" || typ == "ObjStm"):
			delete(l.doc.Objects, num)
		case !obj.HasStream() && obj.Get("Linearized") != nil:
			logging.Logger().Debug("dropping linearization dictionary", "obj", num)
			delete(l.doc.Objects, num)
		}
	}

	if root, ok := l.doc.Root(); ok {
		if v, ok := root.GetName("Version"); ok && headerRE.MatchString("%PDF-"+string(v)) {
			l.doc.Version = core.MaxVersion(l.doc.Version, string(v))
		}
	}
}

func sortedNumbers(table *core.XRefTable) []int {
	nums := make([]int, 0, len(table.Entries))
	for num := range table.Entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// readXRefChain reads the xref section named by startxref and every
// section reachable through /Prev. Entries of newer sections win.
func readXRefChain(data []byte) (*core.XRefTable, error) {
	offset, err := core.FindStartXRef(data)
	if err != nil {
		return nil, err
	}
	var merged *core.XRefTable
	seen := map[int]bool{}
	for {
		if seen[offset] {
			logging.Logger().Warn("xref /Prev chain loops", "offset", offset)
			break
		}
		seen[offset] = true
		table, err := readXRefSection(data, offset)
		if err != nil {
			return nil, err
		}
		if table.Trailer.Has("Encrypt") {
			return nil, errors.Wrap(core.ErrEncrypted, "trailer has /Encrypt")
		}
		if merged == nil {
			merged = table
		} else {
			merged.Merge(table)
			for k, v := range table.Trailer {
				if !merged.Trailer.Has(k) {
					merged.Trailer[k] = v
				}
			}
		}
		prev, ok := table.Prev()
		if !ok {
			break
		}
		offset = prev
	}
	return merged, nil
}

// readXRefSection reads a classical xref section (with its /XRefStm
// companion, if any) or an xref stream at offset.
func readXRefSection(data []byte, offset int) (*core.XRefTable, error) {
	if offset < 0 || offset >= len(data) {
		return nil, errors.Wrapf(core.ErrXref, "xref offset %d out of range", offset)
	}
	pos := offset
	for pos < len(data) && core.IsWhitespace(data[pos]) {
		pos++
	}
	if !bytes.HasPrefix(data[pos:], []byte("xref")) {
		return readXRefStream(data, pos)
	}
	table, err := core.ParseXRefTable(data, pos)
	if err != nil {
		return nil, err
	}
	if off, ok := table.Trailer.GetInt("XRefStm"); ok {
		stm, err := readXRefStream(data, int(off))
		if err != nil {
			logging.Logger().Warn("ignoring unreadable /XRefStm", "offset", int(off), "err", err)
			return table, nil
		}
		for num, e := range stm.Entries {
			if old, ok := table.Entries[num]; !ok || old.Type == core.XRefFree {
				table.Entries[num] = e
			}
		}
	}
	return table, nil
}

func readXRefStream(data []byte, offset int) (*core.XRefTable, error) {
	if offset < 0 || offset >= len(data) {
		return nil, errors.Wrapf(core.ErrXrefStream, "xref stream offset %d out of range", offset)
	}
	def, err := core.ParseIndirectObject(data, offset, core.ScanLengthFunc(data))
	if err != nil {
		return nil, errors.Wrapf(core.ErrXrefStream, "no xref stream at %d: %v", offset, err)
	}
	return core.ParseXRefStream(def.Object)
}

var (
	objDefRE  = regexp.MustCompile(`(?:^|[\r\n])[ \t\f\x00]*(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)
	trailerRE = regexp.MustCompile(`[\r\n][ \t\f\x00]*trailer\b`)
)

// scanObjects builds an xref table by searching data for object
// definitions at the start of a line. Later definitions of an object
// replace earlier ones. The trailer is the last parsable "trailer"
// dictionary, or the head of the last xref stream if there is none.
func scanObjects(data []byte) (*core.XRefTable, error) {
	table := core.NewXRefTable()
	var offsets []int
	for _, m := range objDefRE.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil || num == 0 {
			continue
		}
		table.Entries[num] = core.XRefEntry{Type: core.XRefInUse, Offset: m[2], Generation: gen}
		offsets = append(offsets, m[2])
	}

	var trailer core.Dict
	trailers := trailerRE.FindAllIndex(data, -1)
	for i := len(trailers) - 1; i >= 0 && trailer == nil; i-- {
		pos := trailers[i][1] - len("trailer")
		if t, _, err := core.ParseTrailer(data, pos); err == nil {
			trailer = t
		}
	}
	if trailer == nil {
		lengthOf := core.ScanLengthFunc(data)
		for i := len(offsets) - 1; i >= 0 && trailer == nil; i-- {
			def, err := core.ParseIndirectObject(data, offsets[i], lengthOf)
			if err != nil || !def.Object.HasStream() {
				continue
			}
			if typ, _ := def.Object.Get("Type").(core.Name); typ == "XRef" {
				trailer = def.Object.Dict()
			}
		}
	}
	if trailer == nil {
		return nil, errors.Wrap(core.ErrXref, "no trailer found")
	}
	table.Trailer = trailer
	if trailer.Has("Encrypt") {
		return nil, errors.Wrap(core.ErrEncrypted, "trailer has /Encrypt")
	}
	return table, nil
}
