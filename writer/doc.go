// Package writer serializes a document into a PDF file.
//
// Objects are emitted in ascending object number order, each as
// "N 0 obj", its canonical head, an optional stream and "endobj". The
// cross-reference section is either a classical xref table with a trailer
// or a cross-reference stream, optionally with the streamless objects
// packed into an object stream:
//
//	data, err := writer.Serialize(doc, writer.Options{XrefStream: true, ObjectStreams: true})
//
// [WriteBest] tries the requested layout and the simpler ones on small
// documents and keeps the shortest output.
package writer
