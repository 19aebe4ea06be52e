// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/goccy/go-yaml"
)

// inheritedKeys are property names every object inherits in prototype-based object
// models. A source key from this set is dropped unless the target mapping owns it,
// so documents produced for or by such runtimes cannot smuggle them into the result.
var inheritedKeys = map[string]struct{}{
	"__proto__":            {},
	"constructor":          {},
	"prototype":            {},
	"hasOwnProperty":       {},
	"isPrototypeOf":        {},
	"propertyIsEnumerable": {},
	"toLocaleString":       {},
	"toString":             {},
	"valueOf":              {},
	"__defineGetter__":     {},
	"__defineSetter__":     {},
	"__lookupGetter__":     {},
	"__lookupSetter__":     {},
}

// isInherited reports whether key would resolve on target through inheritance
// rather than as one of its own entries. Only mappings inherit anything.
func isInherited(target, key any) bool {
	name, ok := key.(string)
	if !ok || !isMapping(target) {
		return false
	}
	_, inherited := inheritedKeys[name]
	return inherited
}

type entry struct {
	key   any
	value any
}

// mappingKind selects the concrete type a merged mapping is built as.
type mappingKind int

const (
	stringKeyed mappingKind = iota
	anyKeyed
	ordered
)

// asSequence returns value as []any if it is a slice or array.
// Byte slices and arrays are atomic.
func asSequence(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []any:
		return v, true
	case []byte, yaml.MapSlice:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if !sequenceType(rv.Type()) {
		return nil, false
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq, true
}

func isSequence(value any) bool {
	switch value.(type) {
	case nil, []byte, yaml.MapSlice:
		return false
	case []any:
		return true
	}
	return sequenceType(reflect.TypeOf(value))
}

// sequenceType reports whether t is a slice or array of anything but bytes.
func sequenceType(t reflect.Type) bool {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	return t.Elem().Kind() != reflect.Uint8
}

func isMapping(value any) bool {
	switch value.(type) {
	case nil:
		return false
	case map[string]any, yaml.MapSlice:
		return true
	}
	return reflect.TypeOf(value).Kind() == reflect.Map
}

// entries returns the key/value pairs of a mapping in enumeration order:
// slice order for [yaml.MapSlice], sorted key order for Go maps.
// Non-mappings have no entries.
func entries(value any) []entry {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		result := make([]entry, len(keys))
		for i, k := range keys {
			result[i] = entry{key: k, value: v[k]}
		}
		return result
	case yaml.MapSlice:
		result := make([]entry, len(v))
		for i, item := range v {
			result[i] = entry{key: item.Key, value: item.Value}
		}
		return result
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return nil
	}
	result := make([]entry, 0, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		result = append(result, entry{key: it.Key().Interface(), value: it.Value().Interface()})
	}
	slices.SortFunc(result, func(a, b entry) int {
		return compareKeys(a.key, b.key)
	})
	return result
}

func compareKeys(a, b any) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return cmp.Compare(as, bs)
	}
	if c := cmp.Compare(fmt.Sprint(a), fmt.Sprint(b)); c != 0 {
		return c
	}
	// 1 and "1" print alike.
	return cmp.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

// lookup returns the value target holds for key. It never panics: non-mappings,
// mismatched key types and non-comparable keys are reported as not found.
func lookup(target, key any) (any, bool) {
	if !isComparable(key) {
		return nil, false
	}

	switch t := target.(type) {
	case nil:
		return nil, false
	case map[string]any:
		name, ok := key.(string)
		if !ok {
			return nil, false
		}
		v, ok := t[name]
		return v, ok
	case yaml.MapSlice:
		for _, item := range t {
			if item.Key == key {
				return item.Value, true
			}
		}
		return nil, false
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Map || key == nil {
		return nil, false
	}
	kv := reflect.ValueOf(key)
	if !kv.Type().AssignableTo(rv.Type().Key()) {
		return nil, false
	}
	v := rv.MapIndex(kv)
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

// isComparable checks if a value is comparable (can be used as map key).
// Maps and slices are not comparable in Go.
func isComparable(value any) bool {
	if value == nil {
		return true
	}
	return reflect.TypeOf(value).Comparable()
}

func stringKeys(value any) bool {
	switch value.(type) {
	case map[string]any:
		return true
	case yaml.MapSlice:
		return false
	}
	if !isMapping(value) {
		return true
	}
	return reflect.TypeOf(value).Key().Kind() == reflect.String
}

func resultKind(target, source any) mappingKind {
	_, targetOrdered := target.(yaml.MapSlice)
	_, sourceOrdered := source.(yaml.MapSlice)
	switch {
	case targetOrdered || sourceOrdered:
		return ordered
	case stringKeys(target) && stringKeys(source):
		return stringKeyed
	default:
		return anyKeyed
	}
}

// emptyLike returns an empty sequence or mapping of the same shape as value.
func emptyLike(value any) any {
	if isSequence(value) {
		return []any{}
	}
	switch resultKind(value, nil) {
	case ordered:
		return yaml.MapSlice{}
	case anyKeyed:
		return map[any]any{}
	default:
		return map[string]any{}
	}
}

// mappingBuilder accumulates entries in insertion order. Setting an existing key
// replaces its value in place.
type mappingBuilder struct {
	kind   mappingKind
	keys   []any
	values []any
	index  map[any]int
}

func newMappingBuilder(kind mappingKind) *mappingBuilder {
	return &mappingBuilder{kind: kind, index: make(map[any]int)}
}

func (b *mappingBuilder) set(key, value any) {
	if isComparable(key) {
		if i, exists := b.index[key]; exists {
			b.values[i] = value
			return
		}
		b.index[key] = len(b.keys)
	}
	b.keys = append(b.keys, key)
	b.values = append(b.values, value)
}

func (b *mappingBuilder) build() any {
	switch b.kind {
	case ordered:
		result := make(yaml.MapSlice, len(b.keys))
		for i, k := range b.keys {
			result[i] = yaml.MapItem{Key: k, Value: b.values[i]}
		}
		return result
	case anyKeyed:
		result := make(map[any]any, len(b.keys))
		for i, k := range b.keys {
			result[k] = b.values[i]
		}
		return result
	default:
		result := make(map[string]any, len(b.keys))
		for i, k := range b.keys {
			result[reflect.ValueOf(k).String()] = b.values[i]
		}
		return result
	}
}
