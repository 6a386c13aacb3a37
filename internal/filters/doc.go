// Package filters implements the PDF stream filters needed to read and
// recompress streams.
//
// Decoding covers FlateDecode and LZWDecode (both with TIFF and PNG
// predictors), ASCIIHexDecode, ASCII85Decode, RunLengthDecode and
// CCITTFaxDecode:
//
//	decoded, err := filters.FlateDecode(data, filters.Params{
//	    "Predictor": 12,
//	    "Columns":   4,
//	})
//
// Encoding covers Flate, optionally with the PNG Up predictor applied to
// fixed-width rows (the layout of cross-reference stream data), and LZW:
//
//	compressed, err := filters.FlateEncodeUp(rows, 4)
package filters
