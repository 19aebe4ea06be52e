// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"fmt"
	"reflect"
	"strings"
)

// TagKind identifies which dm struct tag directive had an error.
type TagKind int

const (
	// UnknownTag indicates an unknown or unsupported dm tag directive.
	UnknownTag TagKind = iota
	// PrimaryTag indicates an error with dm:"primary" directive.
	PrimaryTag
	// ArrayTag indicates an error with dm:"array=..." directive.
	ArrayTag
	// ReplaceTag indicates an error with dm:"replace" directive.
	ReplaceTag
	// FieldTag indicates an error with dm:"field=..." directive.
	FieldTag
)

func (k TagKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown"
	case PrimaryTag:
		return "primary"
	case ArrayTag:
		return "array"
	case ReplaceTag:
		return "replace"
	case FieldTag:
		return "field"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// InvalidTagError is returned when a dm struct tag contains an invalid directive or value.
type InvalidTagError struct {
	// Kind indicates which dm tag directive had the error.
	Kind TagKind
	// FieldName is the struct field name where the error occurred.
	FieldName string
	// Value is the invalid value (e.g., the invalid array mode string).
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidTagError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: invalid %s tag: %s (value: %q)",
			e.FieldName, e.Kind.String(), e.Message, e.Value)
	}
	return fmt.Sprintf("field %s: invalid %s tag: %s",
		e.FieldName, e.Kind.String(), e.Message)
}

func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// TypedMerger is a merger whose per-key behavior comes from the dm struct tags
// of T.
//
// It embeds a [Merger] and inherits all its methods. The type parameter T describes
// the shape of the documents being merged; its tags become the [Options.CustomMerge]
// of the embedded Merger. Tags apply to the field they are declared on, wherever that
// field appears in the tree.
//
// Struct tag format:
//   - dm:"array=concat|union|replace|index" - sets how this field's sequences combine
//   - dm:"replace" - the source value replaces this field wholesale
//   - dm:"primary" - marks a field as part of the composite primary key of its struct;
//     sequences of that struct match items by it
//   - dm:"field=name" - overrides field name detection (for non-standard serialization)
//
// Multiple directives can be combined: dm:"field=hosts,array=union"
//
// Field names are automatically detected from yaml, json, and toml struct tags.
//
// Example:
//
//	type Config struct {
//		Backends []Backend `yaml:"backends"`
//		Tags     []string  `yaml:"tags" dm:"array=union"`
//		Labels   []string  `yaml:"labels" dm:"replace"`
//	}
//
//	type Backend struct {
//		Region string `yaml:"region" dm:"primary"`
//		Name   string `yaml:"name" dm:"primary"` // composite key with Region
//		URL    string `yaml:"url"`
//	}
//
//	merger, _ := NewTypedMerger[Config](Options{})
//	result, _ := merger.MergeMarshal(yaml.Unmarshal, yaml.Marshal, doc1, doc2)
type TypedMerger[T any] struct {
	*Merger
}

// NewTypedMerger creates a new [TypedMerger] with metadata extracted from type T's struct tags.
//
// The Options provide default behavior for fields without specific tags. Because T's tags
// define the custom merge, opts must not set CustomMerge.
//
// Returns an error if the options are invalid or if struct tags contain invalid directives.
func NewTypedMerger[T any](opts Options) (*TypedMerger[T], error) {
	if opts.CustomMerge != nil {
		return nil, fmt.Errorf("%w: CustomMerge is derived from struct tags", ErrInvalidOptions)
	}

	metadata, err := buildMetadata(reflect.TypeOf((*T)(nil)).Elem(), make(map[reflect.Type]*fieldMetadata))
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		opts.CustomMerge = metadata.customMerge
	}

	return &TypedMerger[T]{Merger: NewMerger(opts)}, nil
}

// fieldMetadata describes how one field, and the values nested below it, merge.
type fieldMetadata struct {
	primary    bool
	replace    bool
	arrayMerge ArrayMergeFunc
	// children holds struct fields by serialized name.
	children map[string]*fieldMetadata
	// elem describes the values of a map-typed field.
	elem *fieldMetadata
	// items describes the struct elements of a sequence-typed field.
	items *fieldMetadata
	// primaryKeys lists the primary fields of the struct this describes.
	primaryKeys []string
}

func (m *fieldMetadata) lookup(key any) *fieldMetadata {
	if m == nil {
		return nil
	}
	if name, ok := key.(string); ok {
		if child, ok := m.children[name]; ok {
			return child
		}
	}
	return m.elem
}

func (m *fieldMetadata) customMerge(key any) MergeFunc {
	return m.lookup(key).mergeFunc()
}

// mergeFunc merges a value described by m, scoping custom merge lookups below it to m.
// A nil m merges with no custom dispatch at all.
func (m *fieldMetadata) mergeFunc() MergeFunc {
	return func(target, source any, opts *Options) any {
		scoped := *opts
		if m == nil {
			scoped.CustomMerge = nil
			return scoped.merge(target, source)
		}
		scoped.CustomMerge = m.customMerge

		if m.replace {
			return scoped.CloneValue(source)
		}
		if arrayMerge := m.sequenceMerge(); arrayMerge != nil {
			targetSeq, targetIsSeq := asSequence(target)
			sourceSeq, sourceIsSeq := asSequence(source)
			if targetIsSeq && sourceIsSeq {
				return arrayMerge(targetSeq, sourceSeq, &scoped)
			}
		}
		return scoped.merge(target, source)
	}
}

// sequenceMerge returns the array strategy chosen by tags: an explicit array=
// directive, or primary key matching for sequences of structs with primary fields.
// Primary keys are read here rather than while building so recursive types see
// every primary field of their element struct.
func (m *fieldMetadata) sequenceMerge() ArrayMergeFunc {
	if m.arrayMerge != nil {
		return m.arrayMerge
	}
	if m.items != nil && len(m.items.primaryKeys) > 0 {
		return byCompositeKey(m.items.primaryKeys)
	}
	return nil
}

// buildMetadata recursively builds a metadata tree from a type's struct tags.
// Types with nothing to describe yield nil.
func buildMetadata(t reflect.Type, seen map[reflect.Type]*fieldMetadata) (*fieldMetadata, error) {
	// Unwrap pointer and slice types to get to the underlying type
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return buildStructMetadata(t, seen)
	case reflect.Map:
		elem, err := buildMetadata(t.Elem(), seen)
		if err != nil || elem == nil {
			return nil, err
		}
		return &fieldMetadata{elem: elem}, nil
	default:
		return nil, nil
	}
}

func buildStructMetadata(t reflect.Type, seen map[reflect.Type]*fieldMetadata) (*fieldMetadata, error) {
	if meta, ok := seen[t]; ok {
		return meta, nil
	}

	root := &fieldMetadata{
		children: make(map[string]*fieldMetadata),
	}
	seen[t] = root

	// Process each field in the struct
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		// Get the serialized field name
		fieldName, err := getFieldName(field)
		if err != nil {
			return nil, err
		}

		meta := &fieldMetadata{}

		if dmTag := field.Tag.Get("dm"); dmTag != "" {
			if err := parseDMTag(dmTag, field.Name, meta); err != nil {
				return nil, err
			}
		}

		// Validate that primary key fields are comparable types
		if meta.primary && !field.Type.Comparable() {
			return nil, &InvalidTagError{
				Kind:      PrimaryTag,
				FieldName: field.Name,
				Message:   fmt.Sprintf("primary key field must be comparable type, got %s", field.Type.String()),
			}
		}

		// Recursively process nested types
		nested, err := buildMetadata(field.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if nested != nil {
			meta.children = nested.children
			meta.elem = nested.elem
			if isSequenceType(field.Type) {
				meta.items = nested
			}
		}

		if meta.primary {
			root.primaryKeys = append(root.primaryKeys, fieldName)
		}
		root.children[fieldName] = meta
	}

	return root, nil
}

func isSequenceType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}

// getFieldName extracts the serialized field name from struct tags.
// Priority: dm:field override > yaml > json > toml > struct field name.
func getFieldName(field reflect.StructField) (string, error) {
	// Check dm tag for explicit field name override
	if dmTag := field.Tag.Get("dm"); dmTag != "" {
		fieldName, err := extractFieldDirective(dmTag, field.Name)
		if err != nil {
			return "", err
		}
		if fieldName != "" {
			return fieldName, nil
		}
	}

	// Check common serialization tags
	for _, tagName := range []string{"yaml", "json", "toml"} {
		if tag := field.Tag.Get(tagName); tag != "" && tag != "-" {
			// Handle "name,omitempty,inline" format - take first part
			name, _, _ := strings.Cut(tag, ",")
			if name != "" {
				return name, nil
			}
		}
	}

	// Fall back to struct field name
	return field.Name, nil
}

// extractFieldDirective extracts the field=name directive from a dm tag.
// Returns the field name and any validation error.
func extractFieldDirective(dmTag, goName string) (string, error) {
	for _, part := range strings.Split(dmTag, ",") {
		part = strings.TrimSpace(part)
		if fieldName, ok := strings.CutPrefix(part, "field="); ok {
			if fieldName == "" {
				return "", &InvalidTagError{
					Kind:      FieldTag,
					FieldName: goName,
					Value:     part,
					Message:   "field name cannot be empty",
				}
			}
			return fieldName, nil
		}
	}
	return "", nil
}

// parseDMTag parses the dm struct tag and populates the fieldMetadata.
func parseDMTag(tag, goName string, meta *fieldMetadata) error {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)

		switch {
		case part == "primary":
			meta.primary = true
		case part == "replace":
			meta.replace = true
		case strings.HasPrefix(part, "array="):
			arrayMerge, err := parseArrayMode(strings.TrimPrefix(part, "array="), goName)
			if err != nil {
				return err
			}
			meta.arrayMerge = arrayMerge
		case strings.HasPrefix(part, "field="):
			// field= is handled separately in getFieldName
		default:
			return &InvalidTagError{
				Kind:      UnknownTag,
				FieldName: goName,
				Value:     part,
				Message:   "unknown dm tag directive",
			}
		}
	}

	if meta.replace && meta.arrayMerge != nil {
		return &InvalidTagError{
			Kind:      ReplaceTag,
			FieldName: goName,
			Message:   "replace cannot be combined with array",
		}
	}
	return nil
}

// parseArrayMode converts an array= directive value to an ArrayMergeFunc.
func parseArrayMode(s, fieldName string) (ArrayMergeFunc, error) {
	if fn := ArrayMergeByName(s); fn != nil {
		return fn, nil
	}
	return nil, &InvalidTagError{
		Kind:      ArrayTag,
		FieldName: fieldName,
		Value:     s,
		Message:   "valid: concat, union, replace, index",
	}
}

// ArrayMergeByName returns the array strategy registered under name:
// "concat" ([ConcatArrays]), "union" ([UnionArrays]), "replace" ([ReplaceArrays])
// or "index" ([IndexArrays]). It returns nil for any other name.
func ArrayMergeByName(name string) ArrayMergeFunc {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "concat":
		return ConcatArrays
	case "union":
		return UnionArrays
	case "replace":
		return ReplaceArrays
	case "index":
		return IndexArrays
	default:
		return nil
	}
}
