package tessera

import (
	"reflect"
	"unsafe"

	"github.com/tessera-ecs/tessera/mosaic"
)

// fieldTypeMatches is the single choke point where a requested static type
// is checked against what the term actually matched. Typed access never
// trusts the caller: a mismatch reads as absent instead of aliasing memory
// as the wrong type.
func fieldTypeMatches[T any](f mosaic.Field) bool {
	ti := f.Type()
	return ti != nil && ti.Type == reflect.TypeFor[T]()
}

// FieldSlice returns the field's full column as a typed slice. It returns
// nil when the field is shared, row-addressed or absent, or when T does
// not match the matched term; use FieldAt for those.
func FieldSlice[T any](it *Iter, index int) []T {
	f := it.Field(index)

	if !f.IsSelf() || !fieldTypeMatches[T](f) {
		return nil
	}

	count := it.Count()
	if count == 0 {
		return nil
	}

	return unsafe.Slice((*T)(f.Ptr(0)), count)
}

// FieldShared returns the single value of a shared field (fixed source, up
// traversal or singleton), nil when the field is not shared or T does not
// match.
func FieldShared[T any](it *Iter, index int) *T {
	f := it.Field(index)

	if !f.IsShared() || !fieldTypeMatches[T](f) {
		return nil
	}

	return (*T)(f.Ptr(0))
}

// FieldAt returns the field value for one row, resolving self, shared and
// row-addressed storage alike. Nil when absent for the row or on a type
// mismatch, so Or-chains can branch on the concrete type.
func FieldAt[T any](it *Iter, index int, row int) *T {
	f := it.Field(index)

	if !fieldTypeMatches[T](f) {
		return nil
	}

	ptr := f.Ptr(row)
	if ptr == nil {
		return nil
	}

	return (*T)(ptr)
}
