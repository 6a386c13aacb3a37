package filters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// LZWDecode decompresses LZW data. EarlyChange defaults to 1, as in PDF.
// A TIFF or PNG predictor is undone after decompression.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	rc := lzw.NewReader(bytes.NewReader(data), getIntParam(params, "EarlyChange", 1) == 1)
	defer rc.Close()

	decoded, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("lzw decompression failed: %w", err)
	}
	if predictor := getIntParam(params, "Predictor", PredictorNone); predictor != PredictorNone {
		return applyPredictor(decoded, predictor, params)
	}
	return decoded, nil
}

// LZWEncode compresses data with LZW using EarlyChange 1.
func LZWEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	wc := lzw.NewWriter(&buf, true)
	if _, err := wc.Write(data); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
