package external

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/juju/errgo"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/font"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/reader"
)

// Type1Font is a Type1 font program to convert.
type Type1Font struct {
	Num      int    // object number of the font descriptor
	FontName string // name the program defines
	Program  []byte // decoded /FontFile stream
}

// FontConverter replaces Type1 font programs with Type1C equivalents. The
// result maps the descriptor numbers of fonts to their new /FontFile3
// objects; fonts that could not be converted are missing.
type FontConverter interface {
	ConvertType1(ctx context.Context, ws *Workspace, fonts []Type1Font) (map[int]*core.IndirectObject, error)
}

// Ghostscript converts fonts with the pdfwrite device of Ghostscript.
// Each font is loaded, renamed after its descriptor number and has all of
// its glyphs shown on a page, so that pdfwrite embeds the complete font
// as CFF.
type Ghostscript struct {
	Tool Tool
}

const type1Procset = `%!PS-Adobe-3.0
% Type1 to Type1C converter
/LoadFont { % <newname> <origname> <file> LoadFont -
  count 1 sub /Depth exch def
  run
  count Depth sub { pop } repeat
  findfont dup length dict copy
  dup /FID undef
  dup /UniqueID undef
  dup /XUID undef
  dup /FontName 3 index put
  definefont pop
} bind def
/ShowFont { % <name> ShowFont -
  findfont dup 12 scalefont setfont
  36 36 moveto
  /CharStrings get { pop glyphshow } forall
  showpage
} bind def
`

// script returns the PostScript program converting fonts whose programs
// were written to files.
func (g Ghostscript) script(fonts []Type1Font, files []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(type1Procset)
	for i, f := range fonts {
		name := font.ObjFontName(f.Num)
		fmt.Fprintf(&buf, "/%s %s %s LoadFont\n",
			name, core.Name(f.FontName), core.EscapeString([]byte(files[i])))
		fmt.Fprintf(&buf, "/%s ShowFont\n", name)
	}
	buf.WriteString("(Type1CConverter: all OK\\n) print flush\n%%EOF\n")
	return buf.Bytes()
}

// ConvertType1 runs Ghostscript on fonts and reads the Type1C programs
// back from the PDF it writes. Fonts are matched by the Obj name.
func (g Ghostscript) ConvertType1(ctx context.Context, ws *Workspace, fonts []Type1Font) (map[int]*core.IndirectObject, error) {
	if len(fonts) == 0 {
		return map[int]*core.IndirectObject{}, nil
	}
	fonts = append([]Type1Font(nil), fonts...)
	sort.Slice(fonts, func(i, j int) bool { return fonts[i].Num < fonts[j].Num })
	files := make([]string, len(fonts))
	size := 0
	for i, f := range fonts {
		p, err := ws.WriteFile(fmt.Sprintf("type1cconv-%d.pfa", f.Num), f.Program)
		if err != nil {
			return nil, err
		}
		files[i] = p
		size += len(f.Program)
	}
	psFile, err := ws.WriteFile("type1cconv.tmp.ps", g.script(fonts, files))
	if err != nil {
		return nil, err
	}
	pdfFile := ws.Path("type1cconv.tmp.pdf")

	tool := g.Tool.orDefault("gs")
	logging.Logger().Info("converting Type1 fonts", "fonts", len(fonts), "bytes", size)
	if _, err := tool.Run(ctx, "-q", "-dNOPAUSE", "-dBATCH", "-dNOSAFER",
		"-sDEVICE=pdfwrite", "-dPDFSETTINGS=/printer", "-dSubsetFonts=false",
		"-dColorConversionStrategy=/LeaveColorUnchanged",
		"-sOutputFile="+pdfFile, "-f", psFile); err != nil {
		return nil, errgo.NoteMask(err, "Type1CConverter", errgo.Any)
	}
	data, err := ws.ReadFile(pdfFile)
	if err != nil {
		return nil, err
	}
	out, err := ParseConvertedFonts(data)
	if err != nil {
		return nil, err
	}
	for _, p := range append(files, psFile, pdfFile) {
		ws.Remove(p)
	}
	return out, nil
}

// ParseConvertedFonts returns the Type1C font programs of a PDF written by
// the converter, keyed by the object number in their font names.
func ParseConvertedFonts(data []byte) (map[int]*core.IndirectObject, error) {
	doc, err := reader.Load(data, reader.DefaultOptions())
	if err != nil {
		return nil, errgo.WithCausef(err, ErrToolFailed, "cannot load converted fonts")
	}
	out := map[int]*core.IndirectObject{}
	for _, f := range font.Files(doc) {
		num, ok := font.ObjNumFromFontName(f.FontName)
		if !ok {
			return nil, errgo.WithCausef(nil, ErrToolFailed, "unexpected font name %q in converter output", f.FontName)
		}
		if _, dup := out[num]; dup {
			return nil, errgo.WithCausef(nil, ErrToolFailed, "duplicate font for object %d in converter output", num)
		}
		if f.Subtype != "Type1C" {
			logging.Logger().Warn("font not converted to Type1C", "obj", num, "subtype", f.Subtype)
			continue
		}
		out[num] = doc.Objects[f.Program].Clone()
	}
	return out, nil
}
