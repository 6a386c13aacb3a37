package pdfsizeopt

import (
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/internal/filters"
	"github.com/tsawler/pdfsizeopt/logging"
)

var errImageData = errors.New("image data shorter than its dimensions")

// image is a decoded image XObject.
type image struct {
	num      int
	obj      *core.IndirectObject
	width    int
	height   int
	bpc      int
	colors   int
	rowBytes int
	samples  []byte

	// kind is the PNG color type the samples map to, -1 if none.
	kind    int
	palette []byte
	// convertible images may get a new colorspace and depth.
	convertible bool
}

// candidate is a recompressed version of an image.
type candidate struct {
	method string
	obj    *core.IndirectObject
}

// optimizeImages recompresses every image that can be decoded and keeps
// the smallest version. Images compressed with DCT, JPX or JBIG2 are left
// alone.
func (r *run) optimizeImages() {
	for _, num := range r.doc.Numbers() {
		obj := r.doc.Objects[num]
		if !obj.IsImage() {
			continue
		}
		if err := r.optimizeImage(num, obj); err != nil {
			r.warn("images", num, err)
		}
		if r.ctx.Err() != nil {
			return
		}
	}
}

func (r *run) optimizeImage(num int, obj *core.IndirectObject) error {
	img, err := r.decodeImage(num, obj)
	if err != nil || img == nil {
		return err
	}
	cands, err := nativeCandidates(img)
	if err != nil {
		return err
	}
	cands = append(cands, r.toolCandidates(img)...)

	best := candidate{method: "original", obj: obj}
	for _, c := range cands {
		logging.Logger().Debug("image candidate", "obj", num, "method", c.method, "bytes", c.obj.Size())
		if c.obj.Size() < best.obj.Size() {
			best = c
		}
	}
	if best.obj != obj {
		logging.Logger().Info("optimized image", "obj", num, "method", best.method,
			"bytes", best.obj.Size(), "was", obj.Size())
		r.doc.Objects[num] = best.obj
	}
	return nil
}

// decodeImage returns nil for images that cannot be recompressed
// losslessly.
func (r *run) decodeImage(num int, obj *core.IndirectObject) (*image, error) {
	d := obj.Dict()
	names, _, err := core.Filters(d)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		switch name {
		case "DCTDecode", "JPXDecode", "JBIG2Decode":
			return nil, nil
		}
	}
	img := &image{num: num, obj: obj, kind: -1}
	w, _ := d.GetInt("Width")
	h, _ := d.GetInt("Height")
	bpc, _ := d.GetInt("BitsPerComponent")
	img.width, img.height, img.bpc = int(w), int(h), int(bpc)
	mask, _ := d.GetBool("ImageMask")
	if mask {
		img.bpc, img.colors = 1, 1
	} else {
		img.colors, img.kind, img.palette = r.colorSpace(d.Get("ColorSpace"))
		img.convertible = img.kind >= 0 && d.Get("Decode") == nil
	}
	if img.width <= 0 || img.height <= 0 || img.colors == 0 {
		return nil, nil
	}
	switch img.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, nil
	}
	if img.kind == pngRGB && img.bpc < 8 {
		img.kind = -1
	}
	if img.kind == pngPalette && img.bpc > 8 {
		img.kind = -1
	}

	samples, err := obj.DecodedStream()
	if errors.Is(err, core.ErrFormatUnsupported) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	img.rowBytes = (img.width*img.colors*img.bpc + 7) / 8
	if len(samples) < img.rowBytes*img.height {
		return nil, errors.Wrapf(errImageData, "%d bytes for %dx%d", len(samples), img.width, img.height)
	}
	img.samples = samples[:img.rowBytes*img.height]
	return img, nil
}

// colorSpace returns the number of color components of cs, the PNG color
// type its samples can be written as (-1 if none) and the RGB palette of
// an indexed space. Zero components means the space is not understood.
func (r *run) colorSpace(cs core.Object) (int, int, []byte) {
	switch v := r.doc.Resolve(cs).(type) {
	case core.Name:
		switch v {
		case "DeviceGray", "G":
			return 1, pngGray, nil
		case "DeviceRGB", "RGB":
			return 3, pngRGB, nil
		case "DeviceCMYK", "CMYK":
			return 4, -1, nil
		}
	case core.Array:
		family, _ := v.GetName(0)
		switch family {
		case "CalGray", "Separation":
			return 1, -1, nil
		case "CalRGB", "Lab":
			return 3, -1, nil
		case "ICCBased":
			if d, ok := r.doc.ResolveDict(v.Get(1)); ok {
				if n, ok := d.GetInt("N"); ok && n > 0 {
					return int(n), -1, nil
				}
			}
		case "DeviceN":
			if names, ok := r.doc.Resolve(v.Get(1)).(core.Array); ok && names.Len() > 0 {
				return names.Len(), -1, nil
			}
		case "Indexed", "I":
			base, _ := r.doc.Resolve(v.Get(1)).(core.Name)
			hival, ok := v.GetInt(2)
			if !ok {
				return 0, -1, nil
			}
			if base != "DeviceRGB" && base != "RGB" {
				return 1, -1, nil
			}
			palette := r.lookup(v.Get(3))
			if n := 3 * (int(hival) + 1); len(palette) >= n && n <= 3*256 {
				return 1, pngPalette, palette[:n]
			}
			return 1, -1, nil
		}
	}
	return 0, -1, nil
}

func (r *run) lookup(obj core.Object) []byte {
	if ref, ok := obj.(core.IndirectRef); ok {
		if target := r.doc.Get(ref.Number); target != nil && target.HasStream() {
			data, err := target.DecodedStream()
			if err != nil {
				return nil
			}
			return data
		}
	}
	s, _ := r.doc.Resolve(obj).(core.String)
	return []byte(s)
}

// nativeCandidates compresses the samples with Flate, with and without
// the PNG Up predictor.
func nativeCandidates(img *image) ([]candidate, error) {
	plain, err := filters.FlateEncode(img.samples)
	if err != nil {
		return nil, err
	}
	c1 := img.obj.Clone()
	c1.Set("Filter", core.Name("FlateDecode"))
	c1.Set("DecodeParms", nil)
	c1.SetStream(plain)

	up, err := filters.FlateEncodeUp(img.samples, img.rowBytes)
	if err != nil {
		return nil, err
	}
	c2 := img.obj.Clone()
	c2.Set("Filter", core.Name("FlateDecode"))
	c2.Set("DecodeParms", core.Dict{
		"Predictor":        core.Int(filters.PredictorPNGUp),
		"Colors":           core.Int(img.colors),
		"BitsPerComponent": core.Int(img.bpc),
		"Columns":          core.Int(img.width),
	})
	c2.SetStream(up)
	return []candidate{{"flate", c1}, {"flate-up", c2}}, nil
}

// toolCandidates runs the PNG recompressors and the JBIG2 encoder. Tool
// failures are recorded as warnings.
func (r *run) toolCandidates(img *image) []candidate {
	var cands []candidate
	if img.kind >= 0 {
		png, err := encodePNG(&pngImage{
			width: img.width, height: img.height, depth: img.bpc,
			colorType: img.kind, palette: img.palette,
		}, img.samples, img.rowBytes)
		if err != nil {
			r.warn("images", img.num, err)
			return nil
		}
		for _, rec := range r.tools.Recompressors {
			if (rec.Name() == "pngout" && !r.opts.UsePNGOut) || !r.usable(rec.Name()) {
				continue
			}
			out, err := rec.Recompress(r.ctx, r.ws, png)
			if err != nil {
				r.toolError("images", rec.Name(), img.num, err)
				continue
			}
			c, err := pngCandidate(img, out)
			if err != nil {
				r.warn("images", img.num, errors.Wrap(err, rec.Name()))
				continue
			}
			if c != nil {
				cands = append(cands, candidate{rec.Name(), c})
			}
		}
	}
	if c := r.jbig2Candidate(img); c != nil {
		cands = append(cands, candidate{"jbig2", c})
	}
	return cands
}

// pngCandidate turns the PNG written by a tool into a Flate stream with
// /Predictor 15. Only convertible images may change their colorspace or
// depth; nil means the result cannot be used.
func pngCandidate(img *image, data []byte) (*core.IndirectObject, error) {
	p, err := parsePNG(data)
	if err != nil {
		return nil, err
	}
	if p.width != img.width || p.height != img.height {
		return nil, errors.Wrapf(errPNG, "size %dx%d, want %dx%d", p.width, p.height, img.width, img.height)
	}
	same := p.colorType == img.kind && p.depth == img.bpc &&
		(p.colorType != pngPalette || string(p.palette) == string(img.palette))
	if !same && !img.convertible {
		return nil, nil
	}
	c := img.obj.Clone()
	if !same {
		switch p.colorType {
		case pngGray:
			c.Set("ColorSpace", core.Name("DeviceGray"))
		case pngRGB:
			c.Set("ColorSpace", core.Name("DeviceRGB"))
		case pngPalette:
			c.Set("ColorSpace", core.Array{
				core.Name("Indexed"), core.Name("DeviceRGB"),
				core.Int(len(p.palette)/3 - 1), core.String(p.palette),
			})
		}
		c.Set("BitsPerComponent", core.Int(p.depth))
	}
	c.Set("Filter", core.Name("FlateDecode"))
	c.Set("DecodeParms", core.Dict{
		"Predictor":        core.Int(15),
		"Colors":           core.Int(p.colors()),
		"BitsPerComponent": core.Int(p.depth),
		"Columns":          core.Int(p.width),
	})
	c.SetStream(p.idat)
	return c, nil
}

// jbig2Candidate encodes a bilevel image with /JBIG2Decode.
func (r *run) jbig2Candidate(img *image) *core.IndirectObject {
	if !r.opts.UseJBIG2 || r.tools.JBIG2 == nil || !r.usable("jbig2") || img.bpc != 1 || img.colors != 1 {
		return nil
	}
	png, err := encodePNG(&pngImage{width: img.width, height: img.height, depth: 1, colorType: pngGray},
		img.samples, img.rowBytes)
	if err != nil {
		r.warn("images", img.num, err)
		return nil
	}
	out, err := r.tools.JBIG2.Encode(r.ctx, r.ws, png)
	if err != nil {
		r.toolError("images", "jbig2", img.num, err)
		return nil
	}
	c := img.obj.Clone()
	c.Set("Filter", core.Name("JBIG2Decode"))
	c.Set("DecodeParms", nil)
	c.SetStream(out)
	return c
}
