package pdfsizeopt

import (
	"bytes"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/logging"
)

// imageFilters cannot be undone without loss or are not decodable.
var imageFilters = map[string]bool{
	"DCTDecode":      true,
	"JPXDecode":      true,
	"JBIG2Decode":    true,
	"CCITTFaxDecode": true,
	"Crypt":          true,
}

// optimizeStreams recompresses non-image streams. With one of the
// decompress options it removes filters instead.
func (r *run) optimizeStreams() {
	changed := 0
	for _, num := range r.doc.Numbers() {
		obj := r.doc.Objects[num]
		if !obj.HasStream() || obj.Dict() == nil {
			continue
		}
		names, _, err := core.Filters(obj.Dict())
		if err != nil {
			r.warn("streams", num, err)
			continue
		}
		var out *core.IndirectObject
		if r.opts.DecompressFlate || r.opts.DecompressMostStreams {
			out, err = r.decompressStream(obj, names)
		} else {
			out, err = r.compressStream(obj, names)
		}
		if err != nil {
			r.warn("streams", num, err)
			continue
		}
		if out != nil {
			r.doc.Objects[num] = out
			changed++
		}
	}
	logging.Logger().Info("optimized streams", "changed", changed)
}

// decompressStream returns obj without filters, or nil if its filters
// are not to be removed.
func (r *run) decompressStream(obj *core.IndirectObject, names []string) (*core.IndirectObject, error) {
	if len(names) == 0 {
		return nil, nil
	}
	for _, name := range names {
		if imageFilters[name] || r.opts.DecompressFlate && !r.opts.DecompressMostStreams && name != "FlateDecode" {
			return nil, nil
		}
	}
	data, err := obj.DecodedStream()
	if err != nil {
		return nil, err
	}
	c := obj.Clone()
	c.Set("Filter", nil)
	c.Set("DecodeParms", nil)
	c.SetStream(data)
	return c, nil
}

// compressStream Flate-compresses obj if it has no filter, or replaces
// LZW and the text filters by Flate. nil means keep obj.
func (r *run) compressStream(obj *core.IndirectObject, names []string) (*core.IndirectObject, error) {
	if len(names) == 0 {
		if !r.opts.CompressUncompressedStreams {
			return nil, nil
		}
		return smaller(obj, obj.Stream)
	}
	recode := false
	for _, name := range names {
		switch name {
		case "LZWDecode", "ASCIIHexDecode", "ASCII85Decode", "RunLengthDecode":
			recode = true
		case "FlateDecode":
		default:
			return nil, nil
		}
	}
	if !recode {
		return nil, nil
	}
	data, err := obj.DecodedStream()
	if err != nil {
		return nil, err
	}
	return smaller(obj, data)
}

// smaller stores data in a copy of obj with SetStreamAndCompress and
// returns the copy if it is smaller than obj.
func smaller(obj *core.IndirectObject, data []byte) (*core.IndirectObject, error) {
	c := obj.Clone()
	if err := c.SetStreamAndCompress(data); err != nil {
		return nil, err
	}
	if c.Size() >= obj.Size() {
		return nil, nil
	}
	return c, nil
}

// optimizeObjHeads rewrites every object head and the trailer in the
// canonical form of core.CompressValue.
func (r *run) optimizeObjHeads() {
	changed := 0
	for _, num := range r.doc.Numbers() {
		if r.compressHead(num, r.doc.Objects[num]) {
			changed++
		}
	}
	if r.doc.Trailer != nil {
		r.compressHead(0, r.doc.Trailer)
	}
	logging.Logger().Info("optimized object heads", "changed", changed)
}

func (r *run) compressHead(num int, obj *core.IndirectObject) bool {
	head := obj.Head()
	out, err := core.CompressValue(head, nil)
	if err != nil {
		r.warn("heads", num, err)
		return false
	}
	if bytes.Equal(out, head) {
		return false
	}
	obj.SetHead(out)
	return true
}
