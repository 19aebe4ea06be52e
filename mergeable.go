// SPDX-License-Identifier: Apache-2.0

package deepmerge

import (
	"regexp"
	"time"
)

// ElementKey is the mapping key under which [ElementMarker] flags a framework element.
const ElementKey = "$$typeof"

// Marker tags a mapping as an opaque value rather than mergeable data.
type Marker string

// ElementMarker marks a mapping as a rendered framework element, such as a UI
// component description. Mappings holding it under [ElementKey] are atomic.
const ElementMarker Marker = "deepmerge.element"

// IsMergeable is the default mergeability predicate.
//
// It reports true for sequences and mappings, and false for nil, scalars, byte
// slices, [time.Time] and [regexp.Regexp] values (and pointers to them), and
// mappings marked with [ElementMarker]. Values it rejects are copied into the
// merged result wholesale.
func IsMergeable(value any) bool {
	switch value.(type) {
	case nil:
		return false
	case time.Time, *time.Time, regexp.Regexp, *regexp.Regexp:
		return false
	}
	if isSequence(value) {
		return true
	}
	return isMapping(value) && !isElement(value)
}

func isElement(value any) bool {
	marker, ok := lookup(value, ElementKey)
	return ok && marker == ElementMarker
}
