// Package core provides the low-level PDF primitives the optimizer is
// built on: tokenizing, value parsing, canonical serialization, indirect
// object definitions and cross-reference structures.
//
// # Values
//
// Parsed values satisfy the [Object] interface: [Null], [Bool], [Int],
// [Real], [String], [Name], [Array], [Dict] and [IndirectRef]. [Raw] holds
// a value that was kept as canonical bytes because it was not worth
// parsing, such as a nested dictionary nobody has looked into yet.
//
// # Canonical form
//
// Object heads are stored canonicalized: whitespace is minimized, numbers
// are normalized, names and strings use their shortest escaping and
// comments are dropped. [CompressValue] produces this form and is
// idempotent, so two objects with equal values have equal heads. This is
// what makes byte comparison usable for duplicate detection.
//
// # Objects and documents
//
// An [IndirectObject] is a canonical head plus optional stream bytes. The
// head is parsed lazily into a [Dict] on first access and re-serialized
// when a key changes. A [Document] maps object numbers to objects and
// carries the trailer and the header version.
//
// # Cross-references
//
// [ParseXRefTable] reads classical xref sections with their trailer,
// [ParseXRefStream] reads cross-reference streams and [ObjectStream]
// exposes the objects packed into a /Type /ObjStm stream.
// [ScanSequential] walks a file item by item without using the xref at
// all.
//
// # Streams
//
// [DecodeStream] undoes the filter chain of a stream. Image codecs
// (DCTDecode, JPXDecode, JBIG2Decode, CCITTFaxDecode) are reported as
// [ErrFormatUnsupported]; callers keep such streams as they are.
package core
