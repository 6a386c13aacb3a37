// Package multivalent repairs PDF files recompressed by Multivalent.
//
// Multivalent renames keys of image dictionaries (/Subtype/ImagE, /FilteR,
// /DecodeParmS) so that its own image recompression leaves them alone, and
// it adds /Compress and a fresh /ID to the trailer. [Fix] undoes both and
// recomputes the offsets in the cross-reference stream, or, with
// Options.InlineCompressed, moves every object out of its object stream
// and writes a classical xref.
package multivalent
