package pdfsizeopt

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/juju/errgo"
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/eqclass"
	"github.com/tsawler/pdfsizeopt/external"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/multivalent"
	"github.com/tsawler/pdfsizeopt/pages"
	"github.com/tsawler/pdfsizeopt/reader"
	"github.com/tsawler/pdfsizeopt/writer"
)

// Tools are the external programs the optimizer may run. A nil entry
// disables the steps that need it.
type Tools struct {
	FontConverter external.FontConverter
	Recompressors []external.ImageRecompressor
	JBIG2         external.JBIG2Encoder
	Multivalent   external.Runner
}

// DefaultTools returns the programs found on $PATH under their usual
// names: gs, sam2p, pngout, jbig2 and java with Multivalent.jar.
func DefaultTools() Tools {
	return Tools{
		FontConverter: external.Ghostscript{},
		Recompressors: []external.ImageRecompressor{external.Sam2p{}, external.PNGOut{}},
		JBIG2:         external.JBIG2{},
		Multivalent:   external.Multivalent{},
	}
}

// Optimizer provides a fluent interface for optimizing a PDF. Each
// configuration method returns a new Optimizer, so a configured Optimizer
// can be reused and shared between goroutines.
type Optimizer struct {
	// Source; exactly one is set
	filename string
	data     []byte
	doc      *core.Document

	ctx     context.Context
	options Options
	tools   Tools
}

// Open returns an Optimizer for the PDF file filename.
//
// Example:
//
//	_, warnings, err := pdfsizeopt.Open("in.pdf").WriteFile("out.pdf")
func Open(filename string) *Optimizer {
	return &Optimizer{filename: filename, options: DefaultOptions(), tools: DefaultTools()}
}

// FromBytes returns an Optimizer for the PDF file content data.
func FromBytes(data []byte) *Optimizer {
	return &Optimizer{data: data, options: DefaultOptions(), tools: DefaultTools()}
}

// FromDocument returns an Optimizer for an already loaded document. The
// document is not modified.
func FromDocument(doc *core.Document) *Optimizer {
	return &Optimizer{doc: doc, options: DefaultOptions(), tools: DefaultTools()}
}

// Must is a helper that wraps a call to a terminal method and panics if
// the error is non-nil.
//
// Example:
//
//	data := pdfsizeopt.Must(pdfsizeopt.Open("in.pdf").Bytes())
func Must[T any](val T, _ []Warning, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

func (o *Optimizer) clone() *Optimizer {
	c := *o
	c.tools.Recompressors = append([]external.ImageRecompressor(nil), o.tools.Recompressors...)
	return &c
}

func (o *Optimizer) with(set func(*Options)) *Optimizer {
	c := o.clone()
	set(&c.options)
	return c
}

// ============================================================================
// Configuration Methods (return new Optimizer instance)
// ============================================================================

// WithOptions replaces all options.
func (o *Optimizer) WithOptions(opts Options) *Optimizer {
	return o.with(func(p *Options) { *p = opts })
}

// WithTools replaces the external programs.
//
// Example:
//
//	// Native steps only.
//	data, _, err := pdfsizeopt.Open("in.pdf").WithTools(pdfsizeopt.Tools{}).Bytes()
func (o *Optimizer) WithTools(tools Tools) *Optimizer {
	c := o.clone()
	c.tools = tools
	return c
}

// Context sets the context that bounds the external programs.
func (o *Optimizer) Context(ctx context.Context) *Optimizer {
	c := o.clone()
	c.ctx = ctx
	return c
}

// TempDir sets the directory for temporary files.
func (o *Optimizer) TempDir(dir string) *Optimizer {
	return o.with(func(p *Options) { p.TempDir = dir })
}

// XrefStream selects a cross-reference stream for the output.
func (o *Optimizer) XrefStream(on bool) *Optimizer {
	return o.with(func(p *Options) { p.XrefStream = on })
}

// ObjectStreams selects object streams for the output.
func (o *Optimizer) ObjectStreams(on bool) *Optimizer {
	return o.with(func(p *Options) { p.ObjectStreams = on })
}

// IgnoreGenerationNumbers treats every reference as generation 0.
func (o *Optimizer) IgnoreGenerationNumbers(on bool) *Optimizer {
	return o.with(func(p *Options) { p.IgnoreGenerationNumbers = on })
}

// RemoveGenerationalObjs drops objects with a nonzero generation.
func (o *Optimizer) RemoveGenerationalObjs(on bool) *Optimizer {
	return o.with(func(p *Options) { p.RemoveGenerationalObjs = on })
}

// UnifyPages allows equivalent pages to be merged.
func (o *Optimizer) UnifyPages(on bool) *Optimizer {
	return o.with(func(p *Options) { p.UnifyPages = on })
}

// OptimizeObjHeads canonicalizes object heads.
func (o *Optimizer) OptimizeObjHeads(on bool) *Optimizer {
	return o.with(func(p *Options) { p.OptimizeObjHeads = on })
}

// OptimizeObjs merges equivalent objects and drops unused ones.
func (o *Optimizer) OptimizeObjs(on bool) *Optimizer {
	return o.with(func(p *Options) { p.OptimizeObjs = on })
}

// DecompressFlate undoes FlateDecode on every stream.
func (o *Optimizer) DecompressFlate(on bool) *Optimizer {
	return o.with(func(p *Options) { p.DecompressFlate = on })
}

// DecompressMostStreams undoes every filter except image codecs.
func (o *Optimizer) DecompressMostStreams(on bool) *Optimizer {
	return o.with(func(p *Options) { p.DecompressMostStreams = on })
}

// CompressUncompressedStreams Flate-compresses streams without a filter.
func (o *Optimizer) CompressUncompressedStreams(on bool) *Optimizer {
	return o.with(func(p *Options) { p.CompressUncompressedStreams = on })
}

// ConvertType1Fonts converts Type1 font programs to Type1C.
func (o *Optimizer) ConvertType1Fonts(on bool) *Optimizer {
	return o.with(func(p *Options) { p.ConvertType1Fonts = on })
}

// FixFontNames renames Type1C programs after their object numbers.
func (o *Optimizer) FixFontNames(on bool) *Optimizer {
	return o.with(func(p *Options) { p.FixFontNames = on })
}

// OptimizeImages recompresses images losslessly.
func (o *Optimizer) OptimizeImages(on bool) *Optimizer {
	return o.with(func(p *Options) { p.OptimizeImages = on })
}

// UsePNGOut lets the image step run pngout.
func (o *Optimizer) UsePNGOut(on bool) *Optimizer {
	return o.with(func(p *Options) { p.UsePNGOut = on })
}

// UseJBIG2 lets the image step try JBIG2 for bilevel images.
func (o *Optimizer) UseJBIG2(on bool) *Optimizer {
	return o.with(func(p *Options) { p.UseJBIG2 = on })
}

// UseMultivalent runs Multivalent on the output.
func (o *Optimizer) UseMultivalent(on bool) *Optimizer {
	return o.with(func(p *Options) { p.UseMultivalent = on })
}

// ============================================================================
// Terminal Methods
// ============================================================================

// Document runs every enabled step but the final serialization and
// returns the optimized document.
func (o *Optimizer) Document() (*core.Document, []Warning, error) {
	r, err := o.start()
	if err != nil {
		return nil, nil, err
	}
	defer r.close()
	if err := r.optimize(); err != nil {
		return nil, r.warnings, err
	}
	return r.doc, r.warnings, nil
}

// Bytes runs the whole pipeline and returns the output file.
//
// Example:
//
//	data, warnings, err := pdfsizeopt.Open("in.pdf").UseJBIG2(false).Bytes()
//	if err != nil {
//	    // handle error
//	}
//	if len(warnings) > 0 {
//	    log.Println(pdfsizeopt.FormatWarnings(warnings))
//	}
func (o *Optimizer) Bytes() ([]byte, []Warning, error) {
	r, err := o.start()
	if err != nil {
		return nil, nil, err
	}
	defer r.close()
	if err := r.optimize(); err != nil {
		return nil, r.warnings, err
	}
	data, err := r.serialize()
	if err != nil {
		return nil, r.warnings, err
	}
	return data, r.warnings, nil
}

// WriteOutput writes the output file to w.
func (o *Optimizer) WriteOutput(w io.Writer) (int64, []Warning, error) {
	data, warnings, err := o.Bytes()
	if err != nil {
		return 0, warnings, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), warnings, errors.Wrap(err, "write PDF")
	}
	return int64(n), warnings, nil
}

// WriteFile writes the output file to filename. Nothing is created if the
// input cannot be optimized.
func (o *Optimizer) WriteFile(filename string) (int64, []Warning, error) {
	data, warnings, err := o.Bytes()
	if err != nil {
		return 0, warnings, err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return 0, warnings, errors.Wrap(err, "write output file")
	}
	logging.Logger().Info("saved PDF", "file", filename, "bytes", len(data))
	return int64(len(data)), warnings, nil
}

// run is the state of one pipeline run.
type run struct {
	ctx      context.Context
	opts     Options
	tools    Tools
	doc      *core.Document
	ws       *external.Workspace
	warnings []Warning

	// broken holds the tools that are missing; they are not tried again.
	broken map[string]bool
}

func (o *Optimizer) start() (*run, error) {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		ctx:    ctx,
		opts:   o.options,
		tools:  o.tools,
		ws:     external.NewWorkspace(o.options.TempDir),
		broken: map[string]bool{},
	}
	ropts := reader.Options{
		IgnoreGenerationNumbers: o.options.IgnoreGenerationNumbers,
		RemoveGenerationalObjs:  o.options.RemoveGenerationalObjs,
	}
	var err error
	switch {
	case o.doc != nil:
		r.doc = cloneDocument(o.doc)
	case o.data != nil:
		r.doc, err = reader.Load(o.data, ropts)
	case o.filename != "":
		r.doc, err = reader.ReadFile(o.filename, ropts)
	default:
		err = errors.New("no input specified")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load PDF")
	}
	logging.Logger().Info("loaded PDF", "version", r.doc.Version, "objects", len(r.doc.Objects), "bytes", r.doc.FileSize)
	return r, nil
}

func (r *run) close() {
	if err := r.ws.Cleanup(); err != nil {
		logging.Logger().Warn("cannot remove temporary files", "err", err)
	}
}

func cloneDocument(doc *core.Document) *core.Document {
	c := core.NewDocument(doc.Version)
	c.FileSize = doc.FileSize
	for num, obj := range doc.Objects {
		c.Objects[num] = obj.Clone()
	}
	if doc.Trailer != nil {
		c.Trailer = doc.Trailer.Clone()
	}
	return c
}

// optimize runs the steps on r.doc in place.
func (r *run) optimize() error {
	if n := core.FixAllBadNumbers(r.doc); n > 0 {
		logging.Logger().Info("fixed bad numbers", "objects", n)
	}
	if n, err := pages.CheckCount(r.doc); err != nil {
		r.warn("pages", 0, err)
	} else {
		logging.Logger().Debug("page tree", "pages", n)
	}
	if r.opts.ConvertType1Fonts && r.tools.FontConverter != nil {
		r.convertType1Fonts()
	}
	if r.opts.FixFontNames {
		r.fixFontNames()
	}
	if r.opts.OptimizeImages {
		r.optimizeImages()
	}
	r.optimizeStreams()
	if r.opts.OptimizeObjHeads {
		r.optimizeObjHeads()
	}
	if r.opts.OptimizeObjs {
		if err := r.optimizeObjs(); err != nil {
			return err
		}
	}
	return r.ctx.Err()
}

func (r *run) optimizeObjs() error {
	opts := eqclass.Options{RemoveUnused: true, Renumber: true, PinPages: !r.opts.UnifyPages}
	if !r.opts.UnifyPages {
		// Leaves without /Type/Page are pinned through the page tree.
		if nums, err := pages.Numbers(r.doc); err == nil {
			opts.Pinned = nums
		}
	}
	before := len(r.doc.Objects)
	res, err := eqclass.FindEqclasses(r.doc, opts)
	if err != nil {
		return errors.Wrap(err, "unify objects")
	}
	r.doc = res.Document
	logging.Logger().Info("unified objects", "before", before, "after", len(r.doc.Objects),
		"unused", res.Unused)
	return nil
}

func (r *run) serialize() ([]byte, error) {
	var buf bytes.Buffer
	wopts := writer.Options{XrefStream: r.opts.XrefStream, ObjectStreams: r.opts.ObjectStreams}
	if _, err := writer.WriteBest(&buf, r.doc, wopts); err != nil {
		return nil, errors.Wrap(err, "serialize PDF")
	}
	data := buf.Bytes()
	if r.opts.UseMultivalent && r.tools.Multivalent != nil {
		data = r.multivalent(data)
	}
	return data, nil
}

// multivalent returns the Multivalent-compressed form of data if it is
// smaller.
func (r *run) multivalent(data []byte) []byte {
	out, err := r.tools.Multivalent.Run(r.ctx, r.ws, data)
	if err != nil {
		r.toolError("multivalent", "multivalent", 0, err)
		return data
	}
	fixed, err := multivalent.Fix(out, multivalent.Options{InlineCompressed: !r.opts.ObjectStreams})
	if err != nil {
		r.warn("multivalent", 0, err)
		return data
	}
	if len(fixed) >= len(data) {
		logging.Logger().Info("Multivalent did not shrink", "bytes", len(fixed), "kept", len(data))
		return data
	}
	logging.Logger().Info("Multivalent shrank", "bytes", len(fixed), "was", len(data))
	return fixed
}

// usable reports whether the named tool may be run.
func (r *run) usable(name string) bool {
	return !r.broken[name]
}

// toolError records a failed tool run. A missing tool is reported once
// and not run again.
func (r *run) toolError(step, name string, obj int, err error) {
	if errgo.Cause(err) == external.ErrToolMissing {
		if !r.broken[name] {
			r.broken[name] = true
			r.warn(step, 0, err)
		}
		return
	}
	r.warn(step, obj, err)
}
