// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// VarFloat64 is a Variable[float64], used for coordinates that might not be known yet.
type VarFloat64 = Variable[float64]

// Variable holds a value and tracks whether it has been set. The zero value is unset.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable returns a Variable that is set to value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value and marks the Variable as unset.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value returns the stored value. For an unset Variable this is the zero value of T.
func (v Variable[T]) Value() T {
	return v.value
}

// ValueOr returns the stored value or def if the Variable is unset.
func (v Variable[T]) ValueOr(def T) T {
	if !v.isset {
		return def
	}
	return v.value
}

// Set stores val and marks the Variable as set.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// IsSet reports whether a value has been stored.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

func (v Variable[T]) String() string {
	if !v.isset {
		return "unknown"
	}
	return fmt.Sprint(v.value)
}
