package pdfsizeopt

import (
	"strings"

	"github.com/pkg/errors"
)

// Options holds the switches of the optimizer pipeline.
type Options struct {
	// Output form
	XrefStream    bool // write a cross-reference stream instead of a table
	ObjectStreams bool // pack non-stream objects into object streams; needs XrefStream

	// Loading
	IgnoreGenerationNumbers bool // treat every reference as generation 0
	RemoveGenerationalObjs  bool // drop objects with a nonzero generation

	// Object graph
	UnifyPages       bool // allow merging of equivalent page objects
	OptimizeObjHeads bool // canonicalize every object head
	OptimizeObjs     bool // merge equivalent objects, drop unused ones, renumber

	// Streams. The decompress switches are for debugging and win over
	// compression.
	DecompressFlate             bool // undo FlateDecode
	DecompressMostStreams       bool // undo every filter but the image codecs
	CompressUncompressedStreams bool // Flate-compress streams without a filter

	// Fonts
	ConvertType1Fonts bool // convert Type1 programs to Type1C with Ghostscript
	FixFontNames      bool // rename Type1C programs after their object numbers

	// Images
	OptimizeImages bool
	UsePNGOut      bool
	UseJBIG2       bool

	// UseMultivalent runs Multivalent on the output and keeps its result
	// if it is smaller.
	UseMultivalent bool

	// TempDir holds temporary files for the external tools. Empty means
	// the system default.
	TempDir string
}

// DefaultOptions returns the options of a normal optimizer run.
func DefaultOptions() Options {
	return Options{
		XrefStream:                  true,
		ObjectStreams:               true,
		IgnoreGenerationNumbers:     true,
		RemoveGenerationalObjs:      true,
		UnifyPages:                  true,
		OptimizeObjHeads:            true,
		OptimizeObjs:                true,
		CompressUncompressedStreams: true,
		ConvertType1Fonts:           true,
		FixFontNames:                true,
		OptimizeImages:              true,
		UsePNGOut:                   true,
		UseJBIG2:                    true,
	}
}

var boolValues = map[string]bool{
	"yes": true, "no": false,
	"true": true, "false": false,
	"on": true, "off": false,
	"1": true, "0": false,
}

// ParseBool parses a flag value: yes, no, true, false, on, off, 1 or 0 in
// any case.
func ParseBool(s string) (bool, error) {
	v, ok := boolValues[strings.ToLower(s)]
	if !ok {
		return false, errors.Errorf("invalid boolean value %q, want yes or no", s)
	}
	return v, nil
}
