package mosaic

import "fmt"

type entityRecord struct {
	table      *Table
	row        Row
	generation uint16
	alive      bool
}

// entityIndex maps the index part of an entity id to its live record. Slots
// of destructed entities go onto a free list and come back with a bumped
// generation, so stale handles never match the new occupant.
type entityIndex struct {
	records []entityRecord
	free    []uint32

	// floor is the first slot handed out to plain entities. Slots below it
	// are reserved for component and builtin ids, which must stay stable
	// across stores.
	floor uint32
}

func (idx *entityIndex) alloc() Entity {
	if n := len(idx.free); n > 0 {
		slot := idx.free[n-1]
		idx.free = idx.free[:n-1]

		rec := &idx.records[slot]
		rec.alive = true
		rec.table = nil
		rec.row = 0

		return Entity(slot).withGeneration(rec.generation)
	}

	for uint32(len(idx.records)) < idx.floor {
		idx.records = append(idx.records, entityRecord{})
	}

	slot := uint32(len(idx.records))
	idx.records = append(idx.records, entityRecord{alive: true})

	return Entity(slot)
}

func (idx *entityIndex) get(e Entity) *entityRecord {
	slot := e.Index()
	if int(slot) >= len(idx.records) {
		return nil
	}

	rec := &idx.records[slot]
	if !rec.alive || rec.generation != e.Generation() {
		return nil
	}

	return rec
}

// mustGet panics if the entity is not alive. Most store operations treat a
// dead handle as a caller error.
func (idx *entityIndex) mustGet(e Entity) *entityRecord {
	rec := idx.get(e)
	if rec == nil {
		panic(fmt.Sprintf("entity %s is not alive", e))
	}

	return rec
}

func (idx *entityIndex) isAlive(e Entity) bool {
	return idx.get(e) != nil
}

// currentOf resolves an index-only id (e.g. the target half of a pair) to
// the live handle including its generation.
func (idx *entityIndex) currentOf(e Entity) Entity {
	slot := e.Index()
	if int(slot) >= len(idx.records) {
		return 0
	}

	rec := &idx.records[slot]
	if !rec.alive {
		return 0
	}

	return Entity(slot).withGeneration(rec.generation)
}

func (idx *entityIndex) release(e Entity) {
	slot := e.Index()
	rec := &idx.records[slot]

	rec.alive = false
	rec.table = nil
	rec.generation += 1

	idx.free = append(idx.free, slot)
}

// ensure marks a slot as alive without going through alloc. Used for builtin
// ids that must exist with a fixed value in every store.
func (idx *entityIndex) ensure(e Entity) {
	slot := e.Index()
	for int(slot) >= len(idx.records) {
		idx.records = append(idx.records, entityRecord{})
	}

	idx.records[slot].alive = true
	idx.records[slot].generation = e.Generation()
}
