package resolver

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/logging"
)

// ObjectSource gives the resolver access to the object table.
// *core.Document implements it.
type ObjectSource interface {
	Get(num int) *core.IndirectObject
}

// Resolver inlines indirect references into values.
type Resolver struct {
	objects       ObjectSource
	inlineStreams bool
	strict        bool
	maxDepth      int

	path  map[int]bool // Cycle detection
	depth int
}

// Option configures the resolver
type Option func(*Resolver)

// WithInlineStreams lets references to stream objects be replaced by a
// string holding the decoded stream. Without it such references fail
// with core.ErrUnexpectedStream.
func WithInlineStreams() Option {
	return func(r *Resolver) {
		r.inlineStreams = true
	}
}

// WithStrictTargets makes a reference to a missing object an error
// (core.ErrReferenceTargetMissing) instead of null with a warning.
func WithStrictTargets() Option {
	return func(r *Resolver) {
		r.strict = true
	}
}

// WithMaxDepth sets the maximum nesting of references (default: 100)
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

// New creates a resolver over objects.
func New(objects ObjectSource, opts ...Option) *Resolver {
	r := &Resolver{
		objects:  objects,
		maxDepth: 100,
		path:     make(map[int]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveBytes replaces every "n g R" in the PDF value data by the value
// of object n, recursively. changed reports whether any reference was
// replaced; if not, data is returned as is. Otherwise the result is in
// canonical form.
func (r *Resolver) ResolveBytes(data []byte) (resolved []byte, changed bool, err error) {
	// Hex strings keep "n g R" inside strings from looking like a
	// reference.
	hex, err := core.CompressValue(data, &core.CompressOptions{StringsAsHex: true})
	if err != nil {
		return nil, false, err
	}
	if !bytes.Contains(hex, []byte("R")) {
		return data, false, nil
	}

	r.path = make(map[int]bool)
	r.depth = 0
	out, changed, err := r.substitute(hex)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return data, false, nil
	}
	resolved, err = core.CompressValue(out, nil)
	if err != nil {
		return nil, false, err
	}
	return resolved, true, nil
}

// Resolve is ResolveBytes for a parsed value. Scalars pass through.
func (r *Resolver) Resolve(obj core.Object) (core.Object, bool, error) {
	switch obj.(type) {
	case nil, core.Null, core.Bool, core.Int, core.Real, core.String, core.Name:
		return obj, false, nil
	}
	resolved, changed, err := r.ResolveBytes([]byte(obj.String()))
	if err != nil || !changed {
		return obj, false, err
	}
	v, err := core.ParseValueRecursive(resolved)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// substitute walks the tokens of canonical value bytes and splices in the
// targets of references. The output is space-separated and needs
// recanonicalizing.
func (r *Resolver) substitute(data []byte) ([]byte, bool, error) {
	var toks []core.Token
	l := core.NewLexer(data)
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, false, err
		}
		if tok.Type == core.TokenEOF {
			break
		}
		toks = append(toks, tok)
	}

	var out []byte
	changed := false
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if i+2 < len(toks) && toks[i+2].Type == core.TokenIndirectRef &&
			tok.Type == core.TokenInteger && toks[i+1].Type == core.TokenInteger {
			num, err := refNumber(tok, toks[i+1])
			if err != nil {
				return nil, false, err
			}
			value, err := r.target(num)
			if err != nil {
				return nil, false, err
			}
			out = append(append(out, value...), ' ')
			changed = true
			i += 2
			continue
		}
		if tok.Type == core.TokenIndirectRef {
			return nil, false, errors.Wrapf(core.ErrParse, "R without object number at %d", tok.Pos)
		}
		out = append(append(out, data[tok.Pos:tok.End]...), ' ')
	}
	return out, changed, nil
}

func refNumber(num, gen core.Token) (int, error) {
	n, err := strconv.Atoi(string(num.Value))
	if err != nil || n < 0 {
		return 0, errors.Wrapf(core.ErrParse, "bad object number %s in reference", num.Value)
	}
	if g, err := strconv.Atoi(string(gen.Value)); err != nil || g < 0 {
		return 0, errors.Wrapf(core.ErrParse, "bad generation %s in reference", gen.Value)
	}
	return n, nil
}

// target returns the bytes that replace a reference to object num.
// Object 0 heads the free list, so a reference to it is null.
func (r *Resolver) target(num int) ([]byte, error) {
	if num == 0 {
		return []byte("null"), nil
	}
	obj := r.objects.Get(num)
	if obj == nil {
		if r.strict {
			return nil, errors.Wrapf(core.ErrReferenceTargetMissing, "object %d", num)
		}
		logging.Logger().Warn("unresolvable reference replaced by null", "obj", num)
		return []byte("null"), nil
	}
	if obj.HasStream() {
		if !r.inlineStreams {
			return nil, errors.Wrapf(core.ErrUnexpectedStream, "object %d", num)
		}
		data, err := obj.DecodedStream()
		if err != nil {
			return nil, errors.Wrapf(err, "decode stream of object %d", num)
		}
		return core.HexString(data), nil
	}

	if r.path[num] {
		return nil, errors.Wrapf(core.ErrReferenceRecursive, "object %d", num)
	}
	if r.depth >= r.maxDepth {
		return nil, errors.Wrapf(core.ErrReferenceRecursive, "maximum depth (%d) exceeded at object %d", r.maxDepth, num)
	}
	r.path[num] = true
	r.depth++
	defer func() {
		delete(r.path, num)
		r.depth--
	}()

	head, err := core.CompressValue(obj.Head(), &core.CompressOptions{StringsAsHex: true})
	if err != nil {
		return nil, errors.Wrapf(err, "object %d", num)
	}
	out, _, err := r.substitute(head)
	return out, err
}
