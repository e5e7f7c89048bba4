package mosaic

import (
	"reflect"
	"unsafe"
)

// Column is the contiguous storage of one component id within one table.
// Values are stored back to back in a reflect allocated slice so the GC
// keeps seeing interior pointers, while hot paths address rows through an
// unsafe base pointer plus stride.
type Column struct {
	Type *TypeInfo

	slice  reflect.Value
	memory unsafe.Pointer

	len, cap int
	itemSize uintptr
}

func newColumn(ti *TypeInfo) *Column {
	slice := reflect.MakeSlice(reflect.SliceOf(ti.Type), 0, 0)

	return &Column{
		Type:     ti,
		slice:    slice,
		itemSize: ti.Size,
	}
}

func (c *Column) Len() int {
	return c.len
}

func (c *Column) ptrTo(row Row) unsafe.Pointer {
	if int(row) >= c.len {
		panic("column row out of bounds")
	}

	return unsafe.Add(c.memory, uintptr(row)*c.itemSize)
}

func (c *Column) valueAt(row Row) reflect.Value {
	if int(row) >= c.len {
		panic("column row out of bounds")
	}

	return c.slice.Index(int(row))
}

func (c *Column) ensureSpace() {
	if c.len < c.cap {
		return
	}

	newCap := max(8, c.cap*2)

	grown := reflect.MakeSlice(c.slice.Type(), c.len, newCap)
	reflect.Copy(grown, c.slice.Slice(0, c.len))

	c.slice = grown
	c.cap = newCap
	c.memory = grown.UnsafePointer()
}

// appendDefault grows the column by one default constructed slot and
// returns its row.
func (c *Column) appendDefault() Row {
	row := c.appendDefaultRaw()

	if ctor := c.Type.Hooks.Ctor; ctor != nil {
		ctor(c.ptrTo(row))
	}

	return row
}

// appendMovedFrom grows the column by one slot and relocates the value at
// src[srcRow] into it. The source slot is left in a moved-out state and must
// be discarded without running its destructor.
func (c *Column) appendMovedFrom(src *Column, srcRow Row) Row {
	row := c.appendDefaultRaw()

	hooks := &c.Type.Hooks
	switch {
	case hooks.CtorMoveDtor != nil:
		hooks.CtorMoveDtor(c.ptrTo(row), src.ptrTo(srcRow))

	case hooks.MoveDtor != nil:
		hooks.MoveDtor(c.ptrTo(row), src.ptrTo(srcRow))

	default:
		c.valueAt(row).Set(src.valueAt(srcRow))
	}

	return row
}

// appendDefaultRaw grows by one zeroed slot without invoking the ctor; the
// caller promises to construct the slot itself.
func (c *Column) appendDefaultRaw() Row {
	c.ensureSpace()

	row := Row(c.len)
	c.len += 1
	c.slice = c.slice.Slice3(0, c.len, c.cap)

	return row
}

// set assigns the given value over the constructed slot at row, running the
// copy hook when one is registered. Types that only registered a copy
// constructor get the slot torn down and copy-constructed in place.
func (c *Column) set(row Row, value reflect.Value) {
	hooks := &c.Type.Hooks

	switch {
	case hooks.Copy != nil:
		// the value is addressable in the caller
		hooks.Copy(c.ptrTo(row), value.Addr().UnsafePointer())

	case hooks.CopyCtor != nil:
		if dtor := hooks.Dtor; dtor != nil {
			dtor(c.ptrTo(row))
		}

		hooks.CopyCtor(c.ptrTo(row), value.Addr().UnsafePointer())

	default:
		c.Type.mustSupportCopy("set")
		c.valueAt(row).Set(value)
	}
}

// swapRemove removes the row by moving the last row into its place. When
// destruct is set the removed value is torn down first; a migrated (moved
// out) value is dropped without its destructor instead.
func (c *Column) swapRemove(row Row, destruct bool) {
	if destruct {
		if dtor := c.Type.Hooks.Dtor; dtor != nil {
			dtor(c.ptrTo(row))
		}
	}

	last := Row(c.len - 1)

	if row != last {
		if move := c.Type.Hooks.MoveDtor; move != nil {
			move(c.ptrTo(row), c.ptrTo(last))
		} else {
			c.valueAt(row).Set(c.valueAt(last))
		}
	}

	// drop the tail reference so the GC can collect what it pointed at
	if c.Type.hasPointers {
		c.valueAt(last).SetZero()
	}

	c.len -= 1
	c.slice = c.slice.Slice3(0, c.len, c.cap)
}

// destructAll tears down every remaining value. Used when a table dies with
// the store.
func (c *Column) destructAll() {
	if dtor := c.Type.Hooks.Dtor; dtor != nil {
		for row := range c.len {
			dtor(c.ptrTo(Row(row)))
		}
	}

	c.len = 0
	c.slice = c.slice.Slice3(0, 0, c.cap)
}
