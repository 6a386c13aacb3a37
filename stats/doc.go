// Package stats attributes every byte of a PDF file to what it is used
// for: header, xref, trailer, images, fonts, content streams, other
// streams, other objects, whitespace and the footer.
//
// [Compute] walks the file once with [core.ScanSequential] and never
// builds an object table, so it also works on files whose xref is broken.
// The buckets always add up to the file size.
package stats
