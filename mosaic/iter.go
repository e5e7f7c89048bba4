package mosaic

import (
	"fmt"
	"reflect"
	"slices"
	"unsafe"
)

type fieldLock uint8

const (
	lockNone fieldLock = iota
	lockRead
	lockWrite
)

// fieldState is the resolved access path of one field for the current
// batch: a table column for self matches, a single shared value for fixed
// or up-traversed sources, or a sparse side table for row-addressed
// components.
type fieldState struct {
	id     Entity
	ti     *TypeInfo
	source Entity

	column    *Column
	sharedPtr unsafe.Pointer
	sparse    *sparseStore

	lock      fieldLock
	lockTable *Table
}

// Iter is the cursor over one query execution. Created by Query.Iter,
// advanced with Next until it reports false, and finalized with Fini when
// abandoned early. While a batch is active its table is locked: structural
// changes against the store are deferred until the iterator moves on.
type Iter struct {
	query *Query
	store *Store

	matches []tableMatch
	pos     int
	cur     *tableMatch

	fields []fieldState

	live bool
	done bool
}

// Iter starts a new iteration. Cached queries walk their maintained table
// list; uncached queries re-scan the table set now.
func (q *Query) Iter() *Iter {
	var matches []tableMatch
	if q.cache != CacheAuto || !q.hasThis {
		matches = q.collectMatches()
	} else {
		// table events resort and compact the cached list in place, and a
		// deferred flush can fire one mid-iteration. The cursor walks its
		// own snapshot.
		matches = slices.Clone(q.matches)
	}

	return &Iter{
		query:   q,
		store:   q.store,
		matches: matches,
		pos:     -1,
		fields:  make([]fieldState, q.fieldCount),
	}
}

// Next advances to the next non-empty batch, releasing the locks of the
// previous one. Returns false once exhausted, at which point all iterator
// resources are released.
func (it *Iter) Next() bool {
	if it.done {
		return false
	}

	if it.cur != nil {
		it.releaseBatch()
	}

	for {
		it.pos += 1
		if it.pos >= len(it.matches) {
			it.live = false
			it.done = true
			return false
		}

		match := &it.matches[it.pos]
		if !match.singleton && match.table.Len() == 0 {
			continue
		}

		it.cur = match
		it.acquireBatch()

		return true
	}
}

// Fini releases all resources held by the iterator. Required when
// abandoning iteration before Next returned false; safe to call twice.
func (it *Iter) Fini() {
	if it.cur != nil {
		it.releaseBatch()
	}

	it.live = false
	it.done = true
}

// Rewind restarts an exhausted or finalized iterator. Rewinding an
// iterator that still holds a batch is a leak and aborts.
func (it *Iter) Rewind() {
	if it.live {
		panic("leak detected: iterator rewound while still holding a batch, call Fini first")
	}

	if it.query.cache != CacheAuto || !it.query.hasThis {
		it.matches = it.query.collectMatches()
	} else {
		it.matches = slices.Clone(it.query.matches)
	}

	it.pos = -1
	it.done = false
}

func (it *Iter) acquireBatch() {
	match := it.cur

	it.store.lockTable(match.table)
	it.live = true

	terms := it.query.terms

	for idx := range it.fields {
		it.fields[idx] = fieldState{}
	}

	for fieldIdx := range it.fields {
		// or-chain members share a field; the match records which member
		// filled it, and that member's access mode governs the lock
		term := &terms[match.terms[fieldIdx]]

		fs := &it.fields[fieldIdx]
		fs.id = match.ids[fieldIdx]
		fs.source = match.sources[fieldIdx]
		fs.ti = it.store.dataInfoFor(fs.id)

		trait := it.store.traitInfoFor(fs.id)
		rowAddressed := trait != nil && trait.Sparse

		hasData := false

		switch {
		case fs.ti == nil:
			// tags and negations carry no data

		case rowAddressed:
			fs.sparse = trait.sparse
			hasData = true

		case fs.source == 0:
			if colIdx := match.columns[fieldIdx]; colIdx >= 0 {
				if column := match.table.columns[colIdx]; column != nil {
					fs.column = column
					fs.lockTable = match.table
					hasData = true
				}
			}

		default:
			rec := it.store.index.get(fs.source)
			if rec != nil && rec.table != nil {
				if column := rec.table.columnOf(fs.id); column != nil {
					if row, ok := rec.table.rowOf(fs.source); ok {
						fs.sharedPtr = column.ptrTo(row)
						fs.lockTable = rec.table
						hasData = true
					}
				}
			}
		}

		if !hasData {
			continue
		}

		inout := term.effectiveInOut(fs.source != 0)
		if inout == InOutNone {
			continue
		}

		it.lockField(fs, inout)
	}
}

func (it *Iter) lockField(fs *fieldState, inout InOutKind) {
	writable := inout == InOut || inout == Out

	if fs.sparse != nil {
		// row-addressed components lock on the component record
		if writable {
			if !fs.sparse.lock.acquireWrite() {
				panic(fmt.Sprintf("write access to sparse %s conflicts with an existing read or write",
					it.store.DescribeId(fs.id)))
			}

			fs.lock = lockWrite
		} else {
			if !fs.sparse.lock.acquireRead() {
				panic(fmt.Sprintf("read access to sparse %s while a write is in progress",
					it.store.DescribeId(fs.id)))
			}

			fs.lock = lockRead
		}

		return
	}

	if writable {
		it.store.access.lockWrite(fs.id, fs.lockTable)
		fs.lock = lockWrite
	} else {
		it.store.access.lockRead(fs.id, fs.lockTable)
		fs.lock = lockRead
	}
}

func (it *Iter) releaseBatch() {
	for idx := range it.fields {
		fs := &it.fields[idx]

		switch {
		case fs.lock == lockNone:

		case fs.sparse != nil:
			if fs.lock == lockWrite {
				fs.sparse.lock.releaseWrite()
			} else {
				fs.sparse.lock.releaseRead()
			}

		case fs.lock == lockWrite:
			it.store.access.unlockWrite(fs.id, fs.lockTable)

		default:
			it.store.access.unlockRead(fs.id, fs.lockTable)
		}

		fs.lock = lockNone
	}

	it.store.unlockTable(it.cur.table)
	it.cur = nil
}

func (it *Iter) mustBatch() *tableMatch {
	if it.cur == nil {
		panic("iterator holds no batch, call Next first")
	}

	return it.cur
}

// Count returns the number of rows in the current batch. Singleton batches
// (all terms with fixed sources) report one row whose fields are all
// shared.
func (it *Iter) Count() int {
	match := it.mustBatch()
	if match.singleton {
		return 1
	}

	return match.table.Len()
}

// Entities returns the entity ids of the current batch.
func (it *Iter) Entities() []Entity {
	match := it.mustBatch()
	if match.singleton {
		return nil
	}

	return match.table.entities
}

// Entity returns the entity at the row of the current batch.
func (it *Iter) Entity(row int) Entity {
	entities := it.Entities()
	if row < 0 || row >= len(entities) {
		panic(fmt.Sprintf("row %d out of range for batch of %d", row, len(entities)))
	}

	return entities[row]
}

// Table returns the table backing the current batch, nil for singleton
// batches.
func (it *Iter) Table() *Table {
	match := it.mustBatch()
	if match.singleton {
		return nil
	}

	return match.table
}

// FieldId returns the concrete id the field matched, with `_` matches
// normalized to the wildcard form.
func (it *Iter) FieldId(index int) Entity {
	it.checkField(index)
	return it.fields[index].id
}

// Var resolves a query variable for the current batch, zero if unbound.
func (it *Iter) Var(name string) Entity {
	return it.mustBatch().vars[name]
}

func (it *Iter) checkField(index int) {
	it.mustBatch()

	if index < 0 || index >= len(it.fields) {
		panic(fmt.Sprintf("field %d out of range, query has %d fields", index, len(it.fields)))
	}
}

// Field returns the accessor of one field in the current batch.
func (it *Iter) Field(index int) Field {
	it.checkField(index)

	return Field{it: it, state: &it.fields[index]}
}

// Field gives access to one field's data for the current batch.
type Field struct {
	it    *Iter
	state *fieldState
}

// IsSet reports whether the field resolved to data. Optional terms that
// did not match and tag matches read as absent.
func (f Field) IsSet() bool {
	return f.state.column != nil || f.state.sharedPtr != nil || f.state.sparse != nil
}

// IsSelf reports whether the field is owned by the iterated table, one
// value per row.
func (f Field) IsSelf() bool {
	return f.state.column != nil
}

// IsShared reports whether the field holds a single value shared by every
// row, coming from a fixed or up-traversed source.
func (f Field) IsShared() bool {
	return f.state.sharedPtr != nil
}

// IsRowAddressed reports whether rows resolve through a per-component side
// table instead of a dense column.
func (f Field) IsRowAddressed() bool {
	return f.state.sparse != nil
}

func (f Field) Id() Entity {
	return f.state.id
}

// Source returns the entity providing a shared field's value, zero for
// self fields.
func (f Field) Source() Entity {
	return f.state.source
}

// Ptr returns the raw pointer to the field value at the row. Shared fields
// hold a single value: every row maps to it and callers must not index
// beyond it. Row-addressed fields may be absent for individual rows, in
// which case Ptr returns nil.
func (f Field) Ptr(row int) unsafe.Pointer {
	switch {
	case f.state.column != nil:
		return f.state.column.ptrTo(Row(row))

	case f.state.sharedPtr != nil:
		return f.state.sharedPtr

	case f.state.sparse != nil:
		ptr, _ := f.state.sparse.ptrOf(f.rowEntity(row))
		return ptr

	default:
		return nil
	}
}

// rowEntity is the entity whose sparse slot backs the row: the source for
// fields matched on an ancestor, the iterated entity otherwise.
func (f Field) rowEntity(row int) Entity {
	if f.state.source != 0 {
		return f.state.source
	}

	return f.it.Entity(row)
}

// Value is Ptr through reflection, used by the typed accessors at the API
// boundary. The second result is false for absent data.
func (f Field) Value(row int) (reflect.Value, bool) {
	switch {
	case f.state.column != nil:
		return f.state.column.valueAt(Row(row)), true

	case f.state.sharedPtr != nil:
		return reflect.NewAt(f.state.ti.Type, f.state.sharedPtr).Elem(), true

	case f.state.sparse != nil:
		return f.state.sparse.valueOf(f.rowEntity(row))

	default:
		return reflect.Value{}, false
	}
}

// Type returns the data type behind the field, nil for tags.
func (f Field) Type() *TypeInfo {
	return f.state.ti
}
