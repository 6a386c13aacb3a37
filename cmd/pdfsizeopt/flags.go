package main

import (
	"github.com/spf13/pflag"

	"github.com/tsawler/pdfsizeopt"
)

// boolValue is a flag taking yes, no, on, off, true, false, 1 or 0. A bare
// --flag means yes.
type boolValue struct {
	p *bool
}

var _ pflag.Value = boolValue{}

func (b boolValue) String() string {
	if b.p != nil && *b.p {
		return "yes"
	}
	return "no"
}

func (b boolValue) Set(s string) error {
	v, err := pdfsizeopt.ParseBool(s)
	if err != nil {
		return err
	}
	*b.p = v
	return nil
}

func (b boolValue) Type() string { return "yes|no" }

// optionFlag binds a yes/no option to a flag.
type optionFlag struct {
	name  string
	p     func(*pdfsizeopt.Options) *bool
	usage string
}

var optionFlags = []optionFlag{
	{"do-generate-xref-stream", func(o *pdfsizeopt.Options) *bool { return &o.XrefStream }, "write a cross-reference stream"},
	{"do-generate-object-stream", func(o *pdfsizeopt.Options) *bool { return &o.ObjectStreams }, "pack objects into an object stream; needs an xref stream"},
	{"do-ignore-generation-numbers", func(o *pdfsizeopt.Options) *bool { return &o.IgnoreGenerationNumbers }, "treat every reference as generation 0"},
	{"do-remove-generational-objs", func(o *pdfsizeopt.Options) *bool { return &o.RemoveGenerationalObjs }, "drop objects with a nonzero generation"},
	{"do-unify-pages", func(o *pdfsizeopt.Options) *bool { return &o.UnifyPages }, "allow equivalent pages to be merged"},
	{"do-optimize-obj-heads", func(o *pdfsizeopt.Options) *bool { return &o.OptimizeObjHeads }, "canonicalize object dictionaries"},
	{"do-optimize-objs", func(o *pdfsizeopt.Options) *bool { return &o.OptimizeObjs }, "merge equivalent objects and drop unused ones"},
	{"do-decompress-flate", func(o *pdfsizeopt.Options) *bool { return &o.DecompressFlate }, "undo FlateDecode (debugging)"},
	{"do-decompress-most-streams", func(o *pdfsizeopt.Options) *bool { return &o.DecompressMostStreams }, "undo all but image filters (debugging)"},
	{"do-compress-uncompressed-streams", func(o *pdfsizeopt.Options) *bool { return &o.CompressUncompressedStreams }, "Flate-compress streams without a filter"},
	{"do-convert-type1-fonts", func(o *pdfsizeopt.Options) *bool { return &o.ConvertType1Fonts }, "convert Type1 fonts to Type1C with Ghostscript"},
	{"do-unify-fonts", func(o *pdfsizeopt.Options) *bool { return &o.FixFontNames }, "rename Type1C fonts after their object numbers"},
	{"do-optimize-images", func(o *pdfsizeopt.Options) *bool { return &o.OptimizeImages }, "recompress images losslessly"},
	{"use-pngout", func(o *pdfsizeopt.Options) *bool { return &o.UsePNGOut }, "run pngout on images"},
	{"use-jbig2", func(o *pdfsizeopt.Options) *bool { return &o.UseJBIG2 }, "encode bilevel images with jbig2"},
	{"use-multivalent", func(o *pdfsizeopt.Options) *bool { return &o.UseMultivalent }, "run Multivalent on the output"},
}

// addOptionFlags registers optionFlags on fs, with defaults from opts.
func addOptionFlags(fs *pflag.FlagSet, opts *pdfsizeopt.Options) {
	for _, f := range optionFlags {
		fs.VarPF(boolValue{f.p(opts)}, f.name, "", f.usage).NoOptDefVal = "yes"
	}
}
