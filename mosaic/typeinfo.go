package mosaic

import (
	"reflect"
)

// TypeInfo is the per-store registration record of a component type.
type TypeInfo struct {
	// Id is the component id assigned by the registry.
	Id Entity

	// Name is the display name used in diagnostics.
	Name string

	// Type is the Go type behind the component, nil for ids registered
	// without data (tags created from plain entities).
	Type reflect.Type

	// Size in bytes; zero makes the component a tag with no column.
	Size uintptr

	Hooks Hooks

	// Inheritable components get implicit self|up(IsA) traversal in terms.
	Inheritable bool

	// Sparse components keep their id in the table type but store values
	// in a per-component side table, addressed per row instead of through
	// a dense column.
	Sparse bool

	// DontFragment components never contribute their id to a table type;
	// adding or removing one cannot fragment archetypes.
	DontFragment bool

	// hasPointers decides between the bitwise and the reflect based copy
	// path when no copy hook is registered.
	hasPointers bool

	sparse *sparseStore
}

// IsTag reports whether the component carries no data.
func (ti *TypeInfo) IsTag() bool {
	return ti.Size == 0
}

// rowAddressed reports whether values live outside the table columns.
func (ti *TypeInfo) rowAddressed() bool {
	return ti.Sparse || ti.DontFragment
}

func (ti *TypeInfo) String() string {
	return ti.Name
}

func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Chan, reflect.Func, reflect.Interface:
		return true

	case reflect.Array:
		return t.Len() > 0 && typeHasPointers(t.Elem())

	case reflect.Struct:
		for idx := range t.NumField() {
			if typeHasPointers(t.Field(idx).Type) {
				return true
			}
		}

		return false

	default:
		return false
	}
}
