package font

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
)

// ObjFontName returns the font name given to the font program in object
// num, e.g. "Obj0000000042". Names derived from object numbers are unique
// within a document and sort in object order.
func ObjFontName(num int) string {
	return fmt.Sprintf("Obj%010d", num)
}

// FixFontNameInType1C renames the CFF program in the stream of obj, a
// /Subtype/Type1C font file, and stores it Flate-compressed. It reports
// whether the stream changed.
func FixFontNameInType1C(obj *core.IndirectObject, name string) (bool, error) {
	if subtype, _ := obj.Get("Subtype").(core.Name); subtype != "Type1C" {
		return false, errors.Wrapf(core.ErrFormatUnsupported, "font program subtype %q", subtype)
	}
	data, err := obj.DecodedStream()
	if err != nil {
		return false, errors.Wrap(err, "decode font program")
	}
	h, err := parseCFFHeader(data, false)
	if err != nil {
		return false, err
	}
	if h.FontName == name {
		return false, nil
	}
	fixed, err := FixFontNameInCFF(data, name)
	if err != nil {
		return false, err
	}
	if err := obj.SetStreamAndCompress(fixed); err != nil {
		return false, err
	}
	return true, nil
}

// Type1CFontName returns the font name stored in a Type1C font file
// object.
func Type1CFontName(obj *core.IndirectObject) (string, error) {
	data, err := obj.DecodedStream()
	if err != nil {
		return "", errors.Wrap(err, "decode font program")
	}
	h, err := parseCFFHeader(data, false)
	if err != nil {
		return "", err
	}
	return h.FontName, nil
}
