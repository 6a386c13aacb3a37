package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers test for them with errors.Is; the concrete errors
// returned by this module wrap one of these.
var (
	// ErrParse reports a malformed token, an unclosed construct or a bad escape.
	ErrParse = errors.New("pdf parse error")

	// ErrTokenTruncated reports that the input ended inside a value that could
	// otherwise have been parsed.
	ErrTokenTruncated = errors.New("pdf token truncated")

	// ErrXref reports a malformed classical cross-reference table.
	ErrXref = errors.New("malformed xref table")

	// ErrXrefStream reports a malformed cross-reference stream.
	ErrXrefStream = errors.New("malformed xref stream")

	// ErrEncrypted is returned for documents with an /Encrypt entry.
	ErrEncrypted = errors.New("encrypted pdf is not supported")

	// ErrReferenceTargetMissing reports a reference to an object that is not
	// in the object table.
	ErrReferenceTargetMissing = errors.New("reference target missing")

	// ErrReferenceRecursive reports a cycle met while inlining references.
	ErrReferenceRecursive = errors.New("recursive reference")

	// ErrUnexpectedStream reports a stream object where only a value is
	// accepted.
	ErrUnexpectedStream = errors.New("unexpected stream")

	// ErrFormatUnsupported reports valid input this module does not handle.
	// The affected optimization is skipped.
	ErrFormatUnsupported = errors.New("format unsupported")

	// ErrOptimize reports an optimization whose output is not smaller than
	// its input. The caller keeps the original.
	ErrOptimize = errors.New("optimization did not shrink")
)

// ParseError describes a lexing or parsing failure at a byte offset.
type ParseError struct {
	Offset    int
	Reason    string
	Truncated bool
}

func (e *ParseError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("pdf token truncated at %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("pdf parse error at %d: %s", e.Offset, e.Reason)
}

// Is matches ErrParse for every ParseError and ErrTokenTruncated for
// truncated ones.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse || (e.Truncated && target == ErrTokenTruncated)
}

func parseErrorf(offset int, format string, args ...interface{}) error {
	return &ParseError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

func truncatedf(offset int, format string, args ...interface{}) error {
	return &ParseError{Offset: offset, Reason: fmt.Sprintf(format, args...), Truncated: true}
}
