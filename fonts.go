package pdfsizeopt

import (
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/external"
	"github.com/tsawler/pdfsizeopt/font"
	"github.com/tsawler/pdfsizeopt/logging"
)

var errGlyphsLost = errors.New("converted font lost glyphs")

// convertType1Fonts replaces Type1 font programs by the Type1C programs
// of the font converter. A conversion is kept if it has every glyph of
// the original and the descriptor and program get smaller.
func (r *run) convertType1Fonts() {
	const step = "fonts"
	var type1 []font.File
	var fonts []external.Type1Font
	decoded := map[int][]byte{}
	for _, f := range font.Files(r.doc) {
		if f.Key != "FontFile" || f.Subtype != "Type1" {
			continue
		}
		type1 = append(type1, f)
		if _, ok := decoded[f.Program]; ok {
			continue
		}
		data, err := r.doc.Objects[f.Program].DecodedStream()
		if err != nil {
			r.warn(step, f.Program, err)
			continue
		}
		decoded[f.Program] = data
		fonts = append(fonts, external.Type1Font{Num: f.Descriptor, FontName: f.FontName, Program: data})
	}
	if len(fonts) == 0 {
		return
	}
	logging.Logger().Info("converting Type1 fonts", "count", len(fonts))
	converted, err := r.tools.FontConverter.ConvertType1(r.ctx, r.ws, fonts)
	if err != nil {
		r.toolError(step, "ghostscript", 0, err)
		return
	}

	replaced := map[int]bool{}
	kept := 0
	for _, f := range type1 {
		desc := r.doc.Objects[f.Descriptor]
		if replaced[f.Program] {
			// Another descriptor shares the program, already converted.
			r.doc.Objects[f.Descriptor] = fontFile3Descriptor(desc, f.Program)
			continue
		}
		cff, ok := converted[f.Descriptor]
		if !ok {
			continue
		}
		if err := checkGlyphs(r.doc.Objects[f.Program], decoded[f.Program], cff); err != nil {
			r.warn(step, f.Descriptor, err)
			continue
		}
		newDesc := fontFile3Descriptor(desc, f.Program)
		oldSize := desc.Size() + r.doc.Objects[f.Program].Size()
		newSize := newDesc.Size() + cff.Size()
		if newSize >= oldSize {
			logging.Logger().Debug("Type1C font not smaller", "obj", f.Descriptor, "bytes", newSize, "was", oldSize)
			continue
		}
		r.doc.Objects[f.Descriptor] = newDesc
		r.doc.Objects[f.Program] = cff
		replaced[f.Program] = true
		kept++
	}
	logging.Logger().Info("converted Type1 fonts", "converted", len(converted), "kept", kept)
}

// fontFile3Descriptor returns a copy of desc pointing to program with
// /FontFile3 instead of /FontFile.
func fontFile3Descriptor(desc *core.IndirectObject, program int) *core.IndirectObject {
	c := desc.Clone()
	c.Set("FontFile", nil)
	c.Set("FontFile3", core.IndirectRef{Number: program})
	return c
}

// checkGlyphs makes sure the CFF program in cff defines every glyph of
// the Type1 program data, held in the font file object orig.
func checkGlyphs(orig *core.IndirectObject, data []byte, cff *core.IndirectObject) error {
	length1, _ := orig.Dict().GetInt("Length1")
	length2, _ := orig.Dict().GetInt("Length2")
	info, err := font.InspectType1(data, int(length1), int(length2))
	if err != nil {
		return err
	}
	cffData, err := cff.DecodedStream()
	if err != nil {
		return err
	}
	names, err := font.CFFGlyphNames(cffData)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(names))
	for _, name := range names {
		have[name] = true
	}
	for _, name := range info.GlyphNames {
		if !have[name] {
			return errors.Wrapf(errGlyphsLost, "missing /%s", name)
		}
	}
	return nil
}

// fixFontNames renames every Type1C program after its object number and
// updates /FontName of the descriptors and /BaseFont of the fonts, which
// makes the names short and unique within the document.
func (r *run) fixFontNames() {
	const step = "fontnames"
	fontsOf := map[int][]int{} // descriptor -> fonts
	for _, num := range r.doc.Numbers() {
		obj := r.doc.Objects[num]
		if obj.HasStream() {
			continue
		}
		if ref, ok := obj.Get("FontDescriptor").(core.IndirectRef); ok {
			fontsOf[ref.Number] = append(fontsOf[ref.Number], num)
		}
	}

	renamed := 0
	for _, f := range font.Files(r.doc) {
		if f.Subtype != "Type1C" {
			continue
		}
		name := font.ObjFontName(f.Program)
		prog := r.doc.Objects[f.Program].Clone()
		changed, err := font.FixFontNameInType1C(prog, name)
		if err != nil {
			r.warn(step, f.Program, err)
			continue
		}
		if changed {
			r.doc.Objects[f.Program] = prog
			renamed++
		}
		r.doc.Objects[f.Descriptor].Set("FontName", core.Name(name))
		for _, num := range fontsOf[f.Descriptor] {
			if r.doc.Objects[num].Get("BaseFont") != nil {
				r.doc.Objects[num].Set("BaseFont", core.Name(name))
			}
		}
	}
	logging.Logger().Info("fixed font names", "renamed", renamed)
}
