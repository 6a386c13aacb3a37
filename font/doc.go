// Package font reads and rewrites embedded font programs.
//
// # CFF
//
// Type1C font files hold a CFF (Compact Font Format) program. The codec
// covers what renaming and inspecting a font needs: DICT data
// ([ParseCFFDict], [SerializeCFFDict]), INDEX structures
// ([ParseCFFIndex], [SerializeCFFIndexHeader]) and the fixed front of the
// program ([ParseCFFHeader]).
//
// [FixFontNameInCFF] replaces the font name. The Top DICT holds absolute
// offsets of data behind it, so a longer or shorter name moves them, and
// the moved offsets may need longer encodings in turn; the rewrite repeats
// until the layout is stable:
//
//	fixed, err := font.FixFontNameInCFF(program, font.ObjFontName(42))
//
// [CFFGlyphNames] lists glyph names through the charset.
//
// # Type1
//
// [InspectType1] reads the font name and the /CharStrings glyph names of a
// Type1 program, decrypting its eexec section.
package font
