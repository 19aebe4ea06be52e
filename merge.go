// SPDX-License-Identifier: Apache-2.0

// Package deepmerge combines two trees of maps, slices and scalar values into a new tree.
//
// Mappings are merged key by key, slices are combined by an [ArrayMergeFunc] (concatenation
// by default), and every other value is atomic: the source value replaces the target value.
// Neither input is modified. It works with any serialization format (YAML, JSON, TOML, etc.)
// that unmarshals to map[string]any, [yaml.MapSlice] or []any.
package deepmerge

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors.
var (
	// ErrInvalidArgument indicates a function received an argument of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMarshal indicates a marshaling or unmarshaling operation failed.
	ErrMarshal = errors.New("marshal error")
	// ErrInvalidOptions indicates invalid merge options were provided.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrInvalidTag indicates a dm struct tag could not be parsed.
	ErrInvalidTag = errors.New("invalid tag")
)

// MarshalError is returned when unmarshaling or marshaling a document fails.
type MarshalError struct {
	// Err is the underlying error returned by a marshaling function.
	Err error
	// DocIndex tells which document the error occurred in, or -1 for the merged result.
	DocIndex int
}

func (e *MarshalError) Error() string {
	if e.DocIndex < 0 {
		return fmt.Sprintf("cannot marshal merged document: %v", e.Err)
	}
	return fmt.Sprintf("cannot unmarshal document at position %d: %v", e.DocIndex, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

func (e *MarshalError) Is(target error) bool {
	return target == ErrMarshal
}

// MergeFunc merges source into target and returns the combined value.
// Implementations must not modify either argument.
type MergeFunc func(target, source any, opts *Options) any

// ArrayMergeFunc combines two sequences into a new sequence.
// Implementations should pass copied elements through [Options.CloneValue].
type ArrayMergeFunc func(target, source []any, opts *Options) []any

// Options configures merge behavior.
//
// The zero value is valid and provides the defaults:
//   - values are shared with the inputs rather than cloned
//   - [IsMergeable] decides which values are merged structurally
//   - [ConcatArrays] combines sequences
//   - no per-key custom merge
type Options struct {
	// Clone makes every mergeable value copied from either input into the result a deep copy.
	// Atomic values are always copied as-is.
	Clone bool

	// IsMergeable reports whether a value is merged structurally.
	// Values it rejects are atomic and replaced wholesale. Defaults to [IsMergeable].
	// Values that are neither mappings nor sequences are atomic whatever it reports.
	IsMergeable func(value any) bool

	// ArrayMerge combines two sequences. Defaults to [ConcatArrays].
	ArrayMerge ArrayMergeFunc

	// CustomMerge returns the merge function for a mapping key, or nil to use the
	// default recursive merge. It is consulted only when the target already holds the
	// key and the source value is mergeable.
	CustomMerge func(key any) MergeFunc
}

// finalize returns a copy of o with defaults filled in.
func (o Options) finalize() *Options {
	if o.IsMergeable == nil {
		o.IsMergeable = IsMergeable
	}
	if o.ArrayMerge == nil {
		o.ArrayMerge = ConcatArrays
	}
	return &o
}

func (o *Options) mergeable(value any) bool {
	if o.IsMergeable == nil {
		return IsMergeable(value)
	}
	return o.IsMergeable(value)
}

// structural reports whether value is a mapping or sequence the predicate accepts.
func (o *Options) structural(value any) bool {
	return (isMapping(value) || isSequence(value)) && o.mergeable(value)
}

// CloneValue returns value itself unless o.Clone is set and value is mergeable,
// in which case it returns a deep copy built by merging value into an empty
// mapping or sequence of the same shape.
func (o *Options) CloneValue(value any) any {
	if !o.Clone || !o.structural(value) {
		return value
	}
	return o.merge(emptyLike(value), value)
}

// Merge merges source into target using o. Custom [MergeFunc] and [ArrayMergeFunc]
// implementations use it to recurse with the options they were given.
func (o *Options) Merge(target, source any) any {
	return o.merge(target, source)
}

// Merger performs merges with a fixed set of options.
//
// A Merger holds no per-merge state and is safe for concurrent use.
type Merger struct {
	opts *Options
}

// NewMerger creates a new [Merger] with the given options.
func NewMerger(opts Options) *Merger {
	return &Merger{opts: opts.finalize()}
}

// Options returns the merge options configured for this [Merger], with defaults filled in.
func (m *Merger) Options() Options {
	return *m.opts
}

// Merge merges source into target. See [Merger.Merge] for details.
func Merge(target, source any, opts Options) any {
	return NewMerger(opts).Merge(target, source)
}

// All merges every tree in trees from left to right. See [Merger.All] for details.
func All(trees any, opts Options) (any, error) {
	return NewMerger(opts).All(trees)
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
// See [Merger.MergeMarshal] for details.
func MergeMarshal(
	opts Options,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	docs ...[]byte,
) ([]byte, error) {
	return NewMerger(opts).MergeMarshal(unmarshal, marshal, docs...)
}

// Merge merges source into target and returns a new tree.
//
// If exactly one of target and source is a sequence, source wins outright.
// Two sequences are combined with the configured [ArrayMergeFunc].
// A source that is not a mapping (a scalar, nil, or an atomic type) replaces target.
// Otherwise both are treated as mappings and merged key by key: keys only in target
// are kept, keys only in source are added, and keys in both are merged recursively
// when the source value is mergeable or replaced by the source value when it is not.
// A source mapping the predicate rejects, such as an element, is laid over target
// in that way without recursing into it.
//
// Example:
//
//	base := map[string]any{"server": map[string]any{"port": 80}, "tags": []any{"a"}}
//	overlay := map[string]any{"server": map[string]any{"tls": true}, "tags": []any{"b"}}
//	result := deepmerge.Merge(base, overlay, deepmerge.Options{})
//	// Result: {"server": {"port": 80, "tls": true}, "tags": ["a", "b"]}
func (m *Merger) Merge(target, source any) any {
	return m.opts.merge(target, source)
}

// All merges trees left to right, starting from an empty mapping, so later trees
// take precedence. trees must be a slice or array of any element type; any other
// value yields an error matching [ErrInvalidArgument]. An empty slice yields an
// empty map[string]any.
func (m *Merger) All(trees any) (any, error) {
	seq, ok := asSequence(trees)
	if !ok {
		return nil, fmt.Errorf("%w: expected a slice of trees, got %T", ErrInvalidArgument, trees)
	}
	return m.fold(seq), nil
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
//
// Documents are unmarshaled, merged left-to-right as with [Merger.All], then marshaled back to bytes.
// Works with any serialization format (YAML, JSON, TOML, etc.) via custom marshal functions.
//
// Returns an empty byte slice if docs is empty. Returns a [*MarshalError] if unmarshaling
// or marshaling fails.
//
// Example:
//
//	import "github.com/goccy/go-yaml"
//
//	base := []byte("server:\n  port: 80")
//	overlay := []byte("server:\n  tls: true")
//	result, _ := MergeMarshal(Options{}, yaml.Unmarshal, yaml.Marshal, base, overlay)
func (m *Merger) MergeMarshal(
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	docs ...[]byte,
) ([]byte, error) {
	if len(docs) == 0 {
		return []byte{}, nil
	}

	parsed := make([]any, len(docs))
	for i, doc := range docs {
		var current any
		if err := unmarshal(doc, &current); err != nil {
			return nil, &MarshalError{
				Err:      err,
				DocIndex: i,
			}
		}
		parsed[i] = current
	}

	out, err := marshal(m.fold(parsed))
	if err != nil {
		return nil, &MarshalError{Err: err, DocIndex: -1}
	}
	return out, nil
}

func (m *Merger) fold(trees []any) any {
	var result any = map[string]any{}
	for _, tree := range trees {
		result = m.opts.merge(result, tree)
	}
	return result
}

// merge is the dispatcher shared by every entry point.
func (o *Options) merge(target, source any) any {
	targetSeq, targetIsSeq := asSequence(target)
	sourceSeq, sourceIsSeq := asSequence(source)

	switch {
	case targetIsSeq != sourceIsSeq:
		return o.CloneValue(source)
	case sourceIsSeq:
		arrayMerge := o.ArrayMerge
		if arrayMerge == nil {
			arrayMerge = ConcatArrays
		}
		return arrayMerge(targetSeq, sourceSeq, o)
	case !isMapping(source):
		return o.CloneValue(source)
	default:
		// Mappings the predicate rejects still land here: target entries are
		// kept and the source's entries are copied over them without recursion.
		return o.mergeObject(target, source)
	}
}

func (o *Options) mergeObject(target, source any) any {
	result := newMappingBuilder(resultKind(target, source))

	if o.structural(target) {
		for _, e := range entries(target) {
			result.set(e.key, o.CloneValue(e.value))
		}
	}

	for _, e := range entries(source) {
		targetValue, owned := lookup(target, e.key)
		if !owned && isInherited(target, e.key) {
			continue
		}

		if owned && o.mergeable(e.value) {
			result.set(e.key, o.mergeFunc(e.key)(targetValue, e.value, o))
		} else {
			result.set(e.key, o.CloneValue(e.value))
		}
	}

	return result.build()
}

func (o *Options) mergeFunc(key any) MergeFunc {
	if o.CustomMerge != nil {
		if fn := o.CustomMerge(key); fn != nil {
			return fn
		}
	}
	return dispatch
}

func dispatch(target, source any, opts *Options) any {
	return opts.merge(target, source)
}
