// Package resolver inlines indirect references into PDF values.
//
// Every "n g R" in a value is replaced by the head of object n, resolved
// recursively:
//
//	r := resolver.New(doc, resolver.WithInlineStreams())
//	value, changed, err := r.ResolveBytes([]byte("[/Indexed/DeviceRGB 255 7 0 R]"))
//
// A reference to a stream object fails with core.ErrUnexpectedStream
// unless WithInlineStreams is given, in which case it becomes a string
// holding the decoded stream. A reference cycle fails with
// core.ErrReferenceRecursive. A reference to a missing object becomes
// null with a warning, or fails with core.ErrReferenceTargetMissing under
// WithStrictTargets.
//
// Strings are hex-encoded while references are matched, so reference-like
// text inside a string is never replaced. The result is in canonical form.
package resolver
