// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"fmt"
	"slices"
	"strings"
)

// ConcatArrays is the default [ArrayMergeFunc]. It appends source elements after
// target elements, passing each through [Options.CloneValue]. Elements are never
// deduplicated or merged positionally.
func ConcatArrays(target, source []any, opts *Options) []any {
	result := make([]any, 0, len(target)+len(source))
	for _, item := range target {
		result = append(result, opts.CloneValue(item))
	}
	for _, item := range source {
		result = append(result, opts.CloneValue(item))
	}
	return result
}

// ReplaceArrays is an [ArrayMergeFunc] that discards the target sequence and
// returns the source elements.
func ReplaceArrays(_, source []any, opts *Options) []any {
	result := make([]any, len(source))
	for i, item := range source {
		result[i] = opts.CloneValue(item)
	}
	return result
}

// UnionArrays is an [ArrayMergeFunc] that concatenates both sequences and removes
// duplicate values.
// For scalar values (strings, numbers, bools), uses exact equality.
// For maps and slices, no deduplication is performed (they're always considered unique)
// because they're not comparable in Go.
func UnionArrays(target, source []any, opts *Options) []any {
	result := make([]any, 0, len(target)+len(source))
	seen := make(map[any]struct{}, len(target)+len(source))

	add := func(item any) {
		if isSequence(item) || isMapping(item) || !isComparable(item) {
			result = append(result, opts.CloneValue(item))
			return
		}
		if _, exists := seen[item]; !exists {
			seen[item] = struct{}{}
			result = append(result, opts.CloneValue(item))
		}
	}

	for _, item := range target {
		add(item)
	}
	for _, item := range source {
		add(item)
	}

	return result
}

// IndexArrays is an [ArrayMergeFunc] that overlays source onto target position by
// position. Where both sequences have an element and the source element is
// mergeable, the two are merged; otherwise the source element wins. Elements past
// the end of the shorter sequence are kept.
func IndexArrays(target, source []any, opts *Options) []any {
	result := make([]any, max(len(target), len(source)))
	for i := range result {
		switch {
		case i >= len(source):
			result[i] = opts.CloneValue(target[i])
		case i < len(target) && opts.mergeable(source[i]):
			result[i] = opts.merge(target[i], source[i])
		default:
			result[i] = opts.CloneValue(source[i])
		}
	}
	return result
}

// ByKey returns an [ArrayMergeFunc] that matches mapping elements by primary key.
//
// The first name in names that appears in any source element is the primary key.
// Elements with equal primary key values are deep merged into the position of the
// first occurrence, so duplicates already present in target are consolidated too.
// Elements without the key, with a nil value, or with a non-comparable value are
// appended. If no source element carries any of the names, the sequences are
// concatenated as with [ConcatArrays].
//
// Example: ["name", "id"] tries "name" first, then "id".
func ByKey(names ...string) ArrayMergeFunc {
	names = slices.Clone(names)
	return func(target, source []any, opts *Options) []any {
		// Try to find primary key by checking source items until we find one.
		// This handles cases where the first item might not have a primary key
		// but subsequent items do.
		primaryKey := ""
		for _, item := range source {
			if primaryKey = findPrimaryKey(item, names); primaryKey != "" {
				break
			}
		}
		if primaryKey == "" {
			return ConcatArrays(target, source, opts)
		}

		return mergeKeyed(target, source, opts, func(item any) (any, bool) {
			return primaryKeyValue(item, primaryKey)
		})
	}
}

// byCompositeKey matches mapping elements on the combined values of every name.
// Elements missing any of the names are appended.
func byCompositeKey(names []string) ArrayMergeFunc {
	names = slices.Clone(names)
	slices.Sort(names)
	return func(target, source []any, opts *Options) []any {
		return mergeKeyed(target, source, opts, func(item any) (any, bool) {
			parts := make([]string, len(names))
			for i, name := range names {
				value, ok := primaryKeyValue(item, name)
				if !ok {
					return nil, false
				}
				parts[i] = fmt.Sprintf("%T:%v", value, value)
			}
			return strings.Join(parts, "\x00"), true
		})
	}
}

func mergeKeyed(target, source []any, opts *Options, identify func(any) (any, bool)) []any {
	result := make([]any, 0, len(target)+len(source))
	// index maps primary keys to positions in result.
	index := make(map[any]int, len(target))

	add := func(item any) {
		key, ok := identify(item)
		if !ok {
			result = append(result, opts.CloneValue(item))
			return
		}
		if i, exists := index[key]; exists {
			result[i] = opts.merge(result[i], item)
			return
		}
		index[key] = len(result)
		result = append(result, opts.CloneValue(item))
	}

	for _, item := range target {
		add(item)
	}
	for _, item := range source {
		add(item)
	}

	return result
}

// findPrimaryKey returns the first name in names that item holds.
// Returns empty string if item is not a mapping or holds none of them.
func findPrimaryKey(item any, names []string) string {
	if !isMapping(item) {
		return ""
	}
	for _, name := range names {
		if _, exists := lookup(item, name); exists {
			return name
		}
	}
	return ""
}

// primaryKeyValue returns the value of the primary key field.
// Reports false if:
//   - item is not a mapping
//   - the key doesn't exist in the mapping
//   - the key exists but has an explicit nil/null value (treated same as missing)
//   - the value is not comparable
func primaryKeyValue(item any, name string) (any, bool) {
	if !isMapping(item) {
		return nil, false
	}
	value, ok := lookup(item, name)
	if !ok || value == nil || !isComparable(value) {
		return nil, false
	}
	return value, true
}
