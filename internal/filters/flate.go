package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"fmt"
	"io"
)

// Params represents decode parameters from PDF stream dictionaries.
// Common parameters include Predictor, Columns, Colors, and BitsPerComponent.
type Params map[string]interface{}

// Predictor values of /DecodeParms.
const (
	PredictorNone  = 1
	PredictorTIFF  = 2
	PredictorPNG   = 10
	PredictorPNGUp = 12
)

// FlateDecode decompresses Flate (zlib/deflate) compressed data, then
// undoes the TIFF or PNG predictor named in params, if any.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	decompressed, err := zlibDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	predictor := getIntParam(params, "Predictor", PredictorNone)
	if predictor == PredictorNone {
		return decompressed, nil
	}
	decompressed, err = applyPredictor(decompressed, predictor, params)
	if err != nil {
		return nil, fmt.Errorf("predictor failed: %w", err)
	}
	return decompressed, nil
}

// FlateEncode compresses data with zlib at the best compression level.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FlateEncodeUp splits data into rows of columns bytes, prefixes every row
// with the PNG Up filter type and compresses the result. The matching
// decode parameters are <</Predictor 12/Columns columns>>. The length of
// data must be a multiple of columns.
func FlateEncodeUp(data []byte, columns int) ([]byte, error) {
	if columns <= 0 || len(data)%columns != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), columns)
	}
	rows := len(data) / columns
	filtered := make([]byte, 0, rows*(columns+1))
	for row := 0; row < rows; row++ {
		cur := data[row*columns : (row+1)*columns]
		filtered = append(filtered, 2)
		if row == 0 {
			filtered = append(filtered, cur...)
			continue
		}
		prev := data[(row-1)*columns : row*columns]
		for i := range cur {
			filtered = append(filtered, cur[i]-prev[i])
		}
	}
	return FlateEncode(filtered)
}

// zlibDecompress decompresses zlib-compressed data. The trailing Adler-32
// checksum is neither required nor verified, so streams truncated after
// the last deflate block still decode.
func zlibDecompress(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("zlib header truncated")
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 || (uint(cmf)<<8|uint(flg))%31 != 0 {
		return nil, fmt.Errorf("invalid zlib header %02x%02x", cmf, flg)
	}
	if flg&0x20 != 0 {
		return nil, fmt.Errorf("zlib preset dictionary not supported")
	}

	reader := flate.NewReader(bytes.NewReader(data[2:]))
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// applyPredictor undoes predictor 2 (TIFF) or 10-15 (PNG, per-row filter
// type byte).
func applyPredictor(data []byte, predictor int, params Params) ([]byte, error) {
	switch {
	case predictor == PredictorTIFF:
		return applyTIFFPredictor2(data, params)
	case predictor >= PredictorPNG && predictor <= 15:
		return applyPNGPredictor(data, params)
	}
	return nil, fmt.Errorf("unsupported predictor: %d", predictor)
}

// applyTIFFPredictor2 predicts each sample from the sample to its left.
func applyTIFFPredictor2(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)

	if bpc != 8 {
		return nil, fmt.Errorf("TIFF Predictor 2 only supports 8 bits per component, got %d", bpc)
	}

	rowSize := columns * colors
	if rowSize <= 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), rowSize)
	}

	result := make([]byte, len(data))
	for row := 0; row < len(data)/rowSize; row++ {
		rowStart := row * rowSize
		for col := 0; col < rowSize; col++ {
			idx := rowStart + col
			if col < colors {
				result[idx] = data[idx]
			} else {
				result[idx] = data[idx] + result[idx-colors]
			}
		}
	}
	return result, nil
}

// applyPNGPredictor undoes PNG filtering. Each row starts with a filter
// type byte (0-4). Sample widths below 8 bits are handled at byte
// granularity, with a filter distance of one byte.
func applyPNGPredictor(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)

	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("PNG predictor does not support %d bits per component", bpc)
	}

	bytesPerPixel := (colors*bpc + 7) / 8
	rowLength := (columns*colors*bpc + 7) / 8
	rowSize := rowLength + 1

	if rowLength <= 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), rowSize)
	}

	numRows := len(data) / rowSize
	result := make([]byte, numRows*rowLength)
	prev := make([]byte, rowLength)
	for row := 0; row < numRows; row++ {
		in := data[row*rowSize : (row+1)*rowSize]
		out := result[row*rowLength : (row+1)*rowLength]
		if err := decodePNGRow(out, in[1:], prev, in[0], bytesPerPixel); err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", row, err)
		}
		prev = out
	}
	return result, nil
}

// decodePNGRow reverses one filtered row into out, given the previous
// decoded row (all zeros for the first row).
func decodePNGRow(out, in, prev []byte, filter byte, bpp int) error {
	for i := range in {
		var left, upLeft byte
		if i >= bpp {
			left = out[i-bpp]
			upLeft = prev[i-bpp]
		}
		up := prev[i]

		var predicted byte
		switch filter {
		case 0:
		case 1:
			predicted = left
		case 2:
			predicted = up
		case 3:
			predicted = byte((int(left) + int(up)) / 2)
		case 4:
			predicted = paethPredictor(left, up, upLeft)
		default:
			return fmt.Errorf("unknown PNG predictor: %d", filter)
		}
		out[i] = in[i] + predicted
	}
	return nil
}

// paethPredictor implements the Paeth predictor algorithm from the PNG specification.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

// getIntParam extracts an integer parameter from Params, returning defaultValue
// if the parameter is missing or cannot be converted to an integer.
func getIntParam(params Params, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
