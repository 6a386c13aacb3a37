// Package reader loads a PDF file into a [core.Document].
//
// [Open] maps a file into memory and [Load] builds the object table from
// its bytes:
//
//	doc, err := reader.ReadFile("in.pdf", reader.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The cross-reference data named by startxref is read first, either a
// classical table or an xref stream, following /Prev so that newer
// sections override older ones. If that fails, or an object is not found
// where the xref says, the loader scans the whole file for "N G obj"
// definitions and keeps the last trailer it can parse. Objects inside
// object streams are unpacked; the object streams, xref streams and the
// linearization dictionary themselves are dropped.
//
// Streams whose /Length is an indirect reference are loaded in a second
// pass once every other object is known. Documents with /Encrypt are
// refused with [core.ErrEncrypted].
package reader
