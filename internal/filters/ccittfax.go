package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// faxParams are the /DecodeParms entries of CCITTFaxDecode with their
// defaults applied.
type faxParams struct {
	k         int
	columns   int
	rows      int
	blackIs1  bool
	byteAlign bool
}

func parseFaxParams(params Params) (faxParams, error) {
	p := faxParams{
		k:         getIntParam(params, "K", 0),
		columns:   getIntParam(params, "Columns", 1728),
		rows:      getIntParam(params, "Rows", 0),
		blackIs1:  getBoolParam(params, "BlackIs1", false),
		byteAlign: getBoolParam(params, "EncodedByteAlign", false),
	}
	if p.columns <= 0 || p.rows < 0 {
		return p, fmt.Errorf("CCITTFaxDecode: bad size %dx%d", p.columns, p.rows)
	}
	// Mixed one and two dimensional Group 3 is not decodable here.
	if p.k > 0 {
		return p, fmt.Errorf("CCITTFaxDecode: K=%d not supported", p.k)
	}
	return p, nil
}

// CCITTFaxDecode decodes Group 3 (K=0) or Group 4 (K<0) fax data into
// 1 bit per pixel rows padded to a byte, the layout of an uncompressed
// /BitsPerComponent 1 image. With /BlackIs1 false, 1 bits are white.
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	p, err := parseFaxParams(params)
	if err != nil {
		return nil, err
	}
	sf := ccitt.Group3
	if p.k < 0 {
		sf = ccitt.Group4
	}
	height := p.rows
	if height == 0 {
		height = ccitt.AutoDetectHeight
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, p.columns, height,
		&ccitt.Options{Align: p.byteAlign, Invert: p.blackIs1})
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("CCITTFaxDecode: %w", err)
	}
	if p.rows > 0 {
		if want := p.rows * ((p.columns + 7) / 8); len(out) < want {
			return nil, fmt.Errorf("CCITTFaxDecode: got %d bytes, want %d", len(out), want)
		}
	}
	return out, nil
}

// getBoolParam returns the boolean params[key], or def if it is missing
// or not a boolean.
func getBoolParam(params Params, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
