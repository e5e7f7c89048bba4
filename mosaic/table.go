package mosaic

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/kamstrup/intmap"
)

// Table owns the column storage of all entities sharing one exact id set.
// The id set is sorted; columns run parallel to it, with nil entries for
// tags and for ids whose data lives out of line (don't-fragment pairs).
type Table struct {
	Id uint64

	// ids is the sorted, generation-stripped component/pair/tag id set.
	ids []Entity

	columns []*Column
	infos   []*TypeInfo

	entities []Entity
	rows     *intmap.Map[uint64, uint32]

	// locks counts active iterations, atomically since batches may be held
	// by concurrent readers. A locked table rejects structural changes that
	// are not deferred.
	locks atomic.Int32

	// emptySince holds the sweep generation at which the table became
	// empty, zero while it holds entities.
	emptySince uint64
}

func newTable(id uint64, ids []Entity, infos []*TypeInfo) *Table {
	t := &Table{
		Id:      id,
		ids:     ids,
		infos:   infos,
		columns: make([]*Column, len(ids)),
		rows:    intmap.New[uint64, uint32](8),
	}

	for idx, info := range infos {
		if info != nil && !info.IsTag() && !info.rowAddressed() {
			t.columns[idx] = newColumn(info)
		}
	}

	return t
}

// Ids returns the table's id set. Callers must not modify it.
func (t *Table) Ids() []Entity {
	return t.ids
}

// Entities returns the dense entity array. Callers must not modify it.
func (t *Table) Entities() []Entity {
	return t.entities
}

func (t *Table) Len() int {
	return len(t.entities)
}

func (t *Table) String() string {
	var sb strings.Builder

	sb.WriteString("Table(")
	for idx, id := range t.ids {
		if idx > 0 {
			sb.WriteString(", ")
		}

		if info := t.infos[idx]; info != nil {
			sb.WriteString(info.Name)
		} else {
			sb.WriteString(id.String())
		}
	}
	sb.WriteString(")")

	return sb.String()
}

// indexOf returns the position of the id in the sorted id set, or -1.
func (t *Table) indexOf(id Entity) int {
	lo, hi := 0, len(t.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.ids[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo < len(t.ids) && t.ids[lo] == id {
		return lo
	}

	return -1
}

func (t *Table) contains(id Entity) bool {
	return t.indexOf(id) >= 0
}

// matchIndices appends the positions of all ids matching the possibly
// wildcard pattern to dst and returns it.
func (t *Table) matchIndices(pattern Entity, dst []int) []int {
	for idx, id := range t.ids {
		if matchesId(id, pattern) {
			dst = append(dst, idx)
		}
	}

	return dst
}

func (t *Table) columnOf(id Entity) *Column {
	idx := t.indexOf(id)
	if idx < 0 {
		return nil
	}

	return t.columns[idx]
}

func (t *Table) rowOf(e Entity) (Row, bool) {
	row, ok := t.rows.Get(uint64(e.StripGeneration()))
	return Row(row), ok
}

// appendRow adds the entity with default constructed values in every column
// and returns its row.
func (t *Table) appendRow(e Entity) Row {
	row := Row(len(t.entities))

	t.entities = append(t.entities, e)
	t.rows.Put(uint64(e.StripGeneration()), uint32(row))

	for _, column := range t.columns {
		if column != nil {
			column.appendDefault()
		}
	}

	t.emptySince = 0

	return row
}

// removeRow swap-removes the row. Columns listed in skipDestruct had their
// values moved out during a migration and are dropped without destructor.
// Returns the entity that was relocated into the vacated row, or 0.
func (t *Table) removeRow(row Row, skipDestruct func(idx int) bool) Entity {
	e := t.entities[row]
	last := Row(len(t.entities) - 1)

	for idx, column := range t.columns {
		if column == nil {
			continue
		}

		destruct := skipDestruct == nil || !skipDestruct(idx)
		column.swapRemove(row, destruct)
	}

	t.rows.Del(uint64(e.StripGeneration()))

	var moved Entity
	if row != last {
		moved = t.entities[last]
		t.entities[row] = moved
		t.rows.Put(uint64(moved.StripGeneration()), uint32(row))
	}

	t.entities = t.entities[:last]

	return moved
}

func (t *Table) assertUnlocked() {
	if t.locks.Load() > 0 {
		panic(fmt.Sprintf("structural change on locked %s outside a defer scope", t))
	}
}
