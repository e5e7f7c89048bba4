package mosaic

import (
	"reflect"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// sparseStore keeps the values of one sparse or don't-fragment component in
// a side column keyed by entity, so adding or removing the component never
// moves entities between tables (sparse) or never touches column memory
// (don't-fragment).
type sparseStore struct {
	column   *Column
	rows     *intmap.Map[uint64, uint32]
	entities []Entity

	// sparse components are not part of any table type, so their access
	// lock lives on the component record.
	lock readWriteCounter
}

func newSparseStore(ti *TypeInfo) *sparseStore {
	return &sparseStore{
		column: newColumn(ti),
		rows:   intmap.New[uint64, uint32](8),
	}
}

func (s *sparseStore) has(e Entity) bool {
	_, ok := s.rows.Get(uint64(e.StripGeneration()))
	return ok
}

// ensure returns the value slot of the entity, creating and default
// constructing it on first use. The second result reports creation.
func (s *sparseStore) ensure(e Entity) (Row, bool) {
	key := uint64(e.StripGeneration())

	if row, ok := s.rows.Get(key); ok {
		return Row(row), false
	}

	row := s.column.appendDefault()
	s.rows.Put(key, uint32(row))
	s.entities = append(s.entities, e)

	return row, true
}

func (s *sparseStore) ptrOf(e Entity) (unsafe.Pointer, bool) {
	row, ok := s.rows.Get(uint64(e.StripGeneration()))
	if !ok {
		return nil, false
	}

	return s.column.ptrTo(Row(row)), true
}

func (s *sparseStore) valueOf(e Entity) (reflect.Value, bool) {
	row, ok := s.rows.Get(uint64(e.StripGeneration()))
	if !ok {
		return reflect.Value{}, false
	}

	return s.column.valueAt(Row(row)), true
}

func (s *sparseStore) remove(e Entity) bool {
	key := uint64(e.StripGeneration())

	row, ok := s.rows.Get(key)
	if !ok {
		return false
	}

	last := Row(len(s.entities) - 1)

	s.column.swapRemove(Row(row), true)
	s.rows.Del(key)

	if Row(row) != last {
		moved := s.entities[last]
		s.entities[row] = moved
		s.rows.Put(uint64(moved.StripGeneration()), row)
	}

	s.entities = s.entities[:last]

	return true
}
