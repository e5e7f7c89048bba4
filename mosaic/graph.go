package mosaic

import (
	"hash/maphash"
	"slices"
	"unsafe"
)

// tableGraph owns all tables of a store, indexed by id-set hash, and
// memoizes the add/remove transitions between them.
type tableGraph struct {
	seed    maphash.Seed
	byHash  map[uint64][]*Table
	edges   map[tableEdge]*Table
	tables  []*Table
	nextId  uint64
	resolve func(ids []Entity) []*TypeInfo
}

type tableEdge struct {
	from   *Table
	id     Entity
	insert bool
}

func newTableGraph(resolve func(ids []Entity) []*TypeInfo) *tableGraph {
	return &tableGraph{
		seed:    maphash.MakeSeed(),
		byHash:  map[uint64][]*Table{},
		edges:   map[tableEdge]*Table{},
		resolve: resolve,
	}
}

func (g *tableGraph) hashIds(ids []Entity) uint64 {
	if len(ids) == 0 {
		return 0
	}

	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&ids[0])), len(ids)*8)
	return maphash.Bytes(g.seed, bytes)
}

// lookup finds or creates the table for the exact sorted id set. The second
// return value reports whether the table was created by this call.
func (g *tableGraph) lookup(ids []Entity) (*Table, bool) {
	hash := g.hashIds(ids)

	for _, table := range g.byHash[hash] {
		if slices.Equal(table.ids, ids) {
			return table, false
		}
	}

	table := newTable(g.nextId, slices.Clone(ids), g.resolve(ids))
	g.nextId += 1

	g.byHash[hash] = append(g.byHash[hash], table)
	g.tables = append(g.tables, table)

	return table, true
}

// nextWith returns the table reached from current by adding the id.
func (g *tableGraph) nextWith(current *Table, id Entity) (*Table, bool) {
	if current.contains(id) {
		return current, false
	}

	edge := tableEdge{from: current, id: id, insert: true}
	if next, ok := g.edges[edge]; ok {
		return next, false
	}

	ids := slices.Clone(current.ids)
	idx, _ := slices.BinarySearch(ids, id)
	ids = slices.Insert(ids, idx, id)

	next, created := g.lookup(ids)
	g.edges[edge] = next

	return next, created
}

// nextWithout returns the table reached from current by removing the id.
func (g *tableGraph) nextWithout(current *Table, id Entity) (*Table, bool) {
	edge := tableEdge{from: current, id: id, insert: false}
	if next, ok := g.edges[edge]; ok {
		return next, false
	}

	var ids []Entity
	for _, existing := range current.ids {
		if existing != id {
			ids = append(ids, existing)
		}
	}

	next, created := g.lookup(ids)
	g.edges[edge] = next

	return next, created
}

// drop removes a table and every edge touching it. The caller has already
// made sure the table is empty.
func (g *tableGraph) drop(table *Table) {
	hash := g.hashIds(table.ids)

	bucket := g.byHash[hash]
	if idx := slices.Index(bucket, table); idx >= 0 {
		g.byHash[hash] = slices.Delete(bucket, idx, idx+1)
	}

	if idx := slices.Index(g.tables, table); idx >= 0 {
		g.tables = slices.Delete(g.tables, idx, idx+1)
	}

	for edge, target := range g.edges {
		if edge.from == table || target == table {
			delete(g.edges, edge)
		}
	}
}
