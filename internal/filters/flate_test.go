package filters

import (
	"bytes"
	"compress/zlib"
	"testing"
)

// zlibCompress compresses data for testing
func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	png3 := Params{"Predictor": 10, "Columns": 3, "Colors": 1, "BitsPerComponent": 8}

	tests := []struct {
		name   string
		input  []byte
		params Params
		want   []byte
	}{
		{"no params", []byte("Hello, World!"), nil, []byte("Hello, World!")},
		{"predictor 1", []byte("abc"), Params{"Predictor": 1}, []byte("abc")},
		{"png none", []byte{0, 1, 2, 3, 0, 4, 5, 6}, png3, []byte{1, 2, 3, 4, 5, 6}},
		{"png sub", []byte{1, 10, 10, 10}, png3, []byte{10, 20, 30}},
		{"png up", []byte{0, 10, 20, 30, 2, 5, 5, 5}, png3, []byte{10, 20, 30, 15, 25, 35}},
		// Row 2: 5+(0+10)/2, 5+(10+20)/2, 5+(20+30)/2 with left taken from the decoded row.
		{"png average", []byte{0, 10, 20, 30, 3, 5, 5, 5}, png3, []byte{10, 20, 30, 10, 20, 30}},
		{"png paeth", []byte{0, 10, 20, 30, 4, 0, 0, 0}, png3, []byte{10, 20, 30, 10, 20, 30}},
		{"png up first row", []byte{2, 7, 8, 9}, png3, []byte{7, 8, 9}},
		{"tiff", []byte{10, 10, 10, 10}, Params{"Predictor": 2, "Columns": 4}, []byte{10, 20, 30, 40}},
		{"png 1 bit", []byte{0, 0xA0, 2, 0x0F}, Params{"Predictor": 12, "Columns": 4, "BitsPerComponent": 1}, []byte{0xA0, 0xAF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlateDecode(zlibCompress(tt.input), tt.params)
			if err != nil {
				t.Fatalf("FlateDecode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("FlateDecode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlateDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		params Params
	}{
		{"invalid zlib", []byte{0x00, 0x01, 0x02, 0x03}, nil},
		{"unsupported predictor", zlibCompress([]byte("test")), Params{"Predictor": 99}},
		{"unsupported bpc", zlibCompress([]byte{0, 1, 2, 3}), Params{"Predictor": 10, "Columns": 3, "BitsPerComponent": 3}},
		{"wrong row size", zlibCompress([]byte{0, 1, 2}), Params{"Predictor": 10, "Columns": 3}},
		{"unknown row filter", zlibCompress([]byte{9, 1, 2, 3}), Params{"Predictor": 10, "Columns": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FlateDecode(tt.input, tt.params); err == nil {
				t.Error("FlateDecode() expected error")
			}
		})
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("stream data "), 50)
	enc, err := FlateEncode(data)
	if err != nil {
		t.Fatalf("FlateEncode() error = %v", err)
	}
	if len(enc) >= len(data) {
		t.Errorf("FlateEncode() length = %d, want less than %d", len(enc), len(data))
	}
	got, err := FlateDecode(enc, nil)
	if err != nil {
		t.Fatalf("FlateDecode() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("FlateDecode(FlateEncode(data)) != data")
	}
}

func TestFlateEncodeUp(t *testing.T) {
	// Xref stream rows: type, 2-byte offset, 1-byte generation.
	data := []byte{
		0, 0, 0, 255,
		1, 0, 15, 0,
		1, 0, 80, 0,
		1, 1, 4, 0,
	}
	enc, err := FlateEncodeUp(data, 4)
	if err != nil {
		t.Fatalf("FlateEncodeUp() error = %v", err)
	}
	got, err := FlateDecode(enc, Params{"Predictor": PredictorPNGUp, "Columns": 4})
	if err != nil {
		t.Fatalf("FlateDecode() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip = %v, want %v", got, data)
	}

	if _, err := FlateEncodeUp([]byte{1, 2, 3}, 2); err == nil {
		t.Error("FlateEncodeUp() with partial row expected error")
	}
}

func TestPaethPredictor(t *testing.T) {
	tests := []struct {
		name     string
		a, b, c  byte
		expected byte
	}{
		{"left closest", 10, 20, 15, 15},
		{"up closest", 20, 10, 15, 15},
		{"upper-left closest", 15, 20, 10, 20},
		{"all zero", 0, 0, 0, 0},
		{"all same", 10, 10, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := paethPredictor(tt.a, tt.b, tt.c)
			if result != tt.expected {
				t.Errorf("paethPredictor(%d, %d, %d) = %d, want %d",
					tt.a, tt.b, tt.c, result, tt.expected)
			}
		})
	}
}

func TestGetIntParam(t *testing.T) {
	params := Params{
		"Columns": int(100),
		"Colors":  int64(3),
		"Bad":     "x",
	}

	tests := []struct {
		params Params
		key    string
		def    int
		want   int
	}{
		{params, "Columns", 1, 100},
		{params, "Colors", 1, 3},
		{params, "Missing", 42, 42},
		{params, "Bad", 7, 7},
		{nil, "Any", 99, 99},
	}
	for _, tt := range tests {
		if got := getIntParam(tt.params, tt.key, tt.def); got != tt.want {
			t.Errorf("getIntParam(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestZlibDecompressPermissive(t *testing.T) {
	data := bytes.Repeat([]byte("Hello, World!"), 42)
	compressed := zlibCompress(data)

	for cut := 0; cut <= 4; cut++ {
		got, err := zlibDecompress(compressed[:len(compressed)-cut])
		if err != nil {
			t.Fatalf("zlibDecompress() without %d trailing bytes error = %v", cut, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("zlibDecompress() without %d trailing bytes = %q", cut, got)
		}
	}
	if _, err := zlibDecompress(compressed[:len(compressed)/2]); err == nil {
		t.Error("zlibDecompress() of half a stream expected error")
	}
	if _, err := zlibDecompress([]byte{0x78}); err == nil {
		t.Error("zlibDecompress() of a bare header byte expected error")
	}
}
