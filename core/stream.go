package core

import (
	"fmt"

	"github.com/tsawler/pdfsizeopt/internal/filters"
)

// filterAbbreviations maps the short filter names allowed in inline images
// (and written by some producers in object heads) to their full names.
var filterAbbreviations = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

// FilterName returns the full name of a stream filter, expanding
// abbreviations.
func FilterName(name string) string {
	if full, ok := filterAbbreviations[name]; ok {
		return full
	}
	return name
}

// expandFilterAbbreviations rewrites abbreviated /Filter names in a stream
// head to their full names.
func expandFilterAbbreviations(o *IndirectObject) {
	switch f := o.Get("Filter").(type) {
	case Name:
		if full := FilterName(string(f)); full != string(f) {
			o.Set("Filter", Name(full))
		}
	case Array, Raw:
		arr, ok := o.Dict().GetArray("Filter")
		if !ok {
			return
		}
		changed := false
		out := make(Array, len(arr))
		for i, v := range arr {
			out[i] = v
			if n, ok := v.(Name); ok {
				if full := FilterName(string(n)); full != string(n) {
					out[i] = Name(full)
					changed = true
				}
			}
		}
		if changed {
			o.Set("Filter", out)
		}
	}
}

// Filters returns the filter names and decode parameters of a stream
// head, expanded to one parameter dict (possibly nil) per filter.
func Filters(head Dict) ([]string, []Dict, error) {
	var names []string
	switch f := head.Get("Filter").(type) {
	case nil, Null:
		return nil, nil, nil
	case Name:
		names = []string{FilterName(string(f))}
	default:
		arr, ok := head.GetArray("Filter")
		if !ok {
			return nil, nil, fmt.Errorf("invalid Filter type: %v", f.Type())
		}
		for i, obj := range arr {
			name, ok := obj.(Name)
			if !ok {
				return nil, nil, fmt.Errorf("filter %d is not a name: %v", i, obj)
			}
			names = append(names, FilterName(string(name)))
		}
	}

	params := make([]Dict, len(names))
	if d, ok := head.GetDict("DecodeParms"); ok {
		params[0] = d
	} else if arr, ok := head.GetArray("DecodeParms"); ok {
		for i := 0; i < len(arr) && i < len(params); i++ {
			switch p := arr[i].(type) {
			case Dict:
				params[i] = p
			case Raw:
				params[i], _ = ParseDict(p)
			}
		}
	}
	return names, params, nil
}

// DecodeStream applies the filter chain declared in head to data. Image
// filters (DCT, JPX, JBIG2) cannot be undone and are reported as
// ErrFormatUnsupported.
func DecodeStream(head Dict, data []byte) ([]byte, error) {
	names, params, err := Filters(head)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		data, err = decodeWithFilter(data, name, dictToParams(params[i]))
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s) failed: %w", i, name, err)
		}
	}
	return data, nil
}

// decodeWithFilter applies a single decompression filter to data.
func decodeWithFilter(data []byte, filterName string, params filters.Params) ([]byte, error) {
	switch filterName {
	case "FlateDecode":
		return filters.FlateDecode(data, params)
	case "LZWDecode":
		return filters.LZWDecode(data, params)
	case "ASCIIHexDecode":
		return filters.ASCIIHexDecode(data)
	case "ASCII85Decode":
		return filters.ASCII85Decode(data)
	case "RunLengthDecode":
		return filters.RunLengthDecode(data)
	case "CCITTFaxDecode":
		return filters.CCITTFaxDecode(data, params)
	case "DCTDecode", "JPXDecode", "JBIG2Decode", "Crypt":
		return nil, fmt.Errorf("%w: filter %s", ErrFormatUnsupported, filterName)
	}
	return nil, fmt.Errorf("%w: unknown filter %s", ErrFormatUnsupported, filterName)
}

// dictToParams converts decode parameters to filters.Params, translating
// PDF values to Go primitives.
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, len(dict))
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
