package mosaic

import (
	"fmt"
	"unsafe"
)

// Hooks holds the optional lifecycle callbacks of a component type. Every
// hook operates on raw column slots; the typed wrappers live in the root
// package. A nil hook means the store takes the trivial path instead
// (zero-init, memcopy), so plain data types pay nothing.
type Hooks struct {
	// Ctor initializes a freshly allocated slot.
	Ctor func(dst unsafe.Pointer)

	// Dtor tears down a slot before the memory is reused or released.
	Dtor func(dst unsafe.Pointer)

	// Copy assigns src over an already constructed dst.
	Copy func(dst, src unsafe.Pointer)

	// CopyCtor constructs dst as a copy of src.
	CopyCtor func(dst, src unsafe.Pointer)

	// MoveDtor moves src into the constructed dst, then destroys src.
	MoveDtor func(dst, src unsafe.Pointer)

	// CtorMoveDtor constructs dst, moves src into it, then destroys src.
	CtorMoveDtor func(dst, src unsafe.Pointer)
}

func (h *Hooks) isZero() bool {
	return h.Ctor == nil && h.Dtor == nil && h.Copy == nil &&
		h.CopyCtor == nil && h.MoveDtor == nil && h.CtorMoveDtor == nil
}

// mustSupportCopy panics if the type registered a destructor but no way to
// duplicate values. Such types would otherwise be copied bitwise, silently
// aliasing whatever the destructor later releases.
func (ti *TypeInfo) mustSupportCopy(op string) {
	if ti.Hooks.Dtor != nil && ti.Hooks.Copy == nil && ti.Hooks.CopyCtor == nil {
		panic(fmt.Sprintf("component %s has a dtor but no copy hook, required by %s", ti.Name, op))
	}
}
