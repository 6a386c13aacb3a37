package font

import (
	"regexp"
	"strconv"

	"github.com/tsawler/pdfsizeopt/core"
)

// File is an embedded font program and the descriptor that refers to it.
type File struct {
	Descriptor int    // object number of the font descriptor
	Key        string // FontFile, FontFile2 or FontFile3
	Program    int    // object number of the font program
	Subtype    string // Type1, Type1C, TrueType, CIDFontType0C, ...
	FontName   string
}

var fileKeys = []string{"FontFile", "FontFile2", "FontFile3"}

// Files returns the embedded font programs of doc in descriptor order.
// Descriptors are recognized by /FontName, /Flags and a /FontFile* key;
// /Type/FontDescriptor is missing in some files. A program without
// /Subtype is Type1 behind /FontFile and TrueType behind /FontFile2.
func Files(doc *core.Document) []File {
	var files []File
	for _, num := range doc.Numbers() {
		obj := doc.Objects[num]
		if obj.HasStream() || obj.Get("Flags") == nil {
			continue
		}
		name, ok := obj.Get("FontName").(core.Name)
		if !ok {
			continue
		}
		for _, key := range fileKeys {
			ref, ok := obj.Get(key).(core.IndirectRef)
			if !ok {
				continue
			}
			program := doc.Objects[ref.Number]
			if program == nil || !program.HasStream() {
				break
			}
			subtype, _ := program.Get("Subtype").(core.Name)
			if subtype == "" {
				switch key {
				case "FontFile":
					subtype = "Type1"
				case "FontFile2":
					subtype = "TrueType"
				}
			}
			files = append(files, File{
				Descriptor: num,
				Key:        key,
				Program:    ref.Number,
				Subtype:    string(subtype),
				FontName:   string(name),
			})
			break
		}
	}
	return files
}

var objFontNameRE = regexp.MustCompile(`^(?:[A-Z]{6}\+)?Obj(\d+)$`)

// ObjNumFromFontName returns the object number encoded in a name made by
// ObjFontName. A six letter subset prefix such as "ABCDEF+" is accepted.
func ObjNumFromFontName(name string) (int, bool) {
	m := objFontNameRE.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}
