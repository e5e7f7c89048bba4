package mosaic

import (
	"fmt"
	"slices"
	"weak"
)

// CacheKind selects how a query keeps track of matching tables.
type CacheKind uint8

const (
	// CacheDefault re-scans the table set at the start of every iteration.
	// Always correct, no bookkeeping, preferred for rarely run queries.
	CacheDefault CacheKind = iota

	// CacheAuto subscribes to table lifecycle events and incrementally
	// maintains the list of matching tables.
	CacheAuto
)

// QueryDesc is the descriptor handed to the query compiler: an ordered term
// list plus the cache mode.
type QueryDesc struct {
	Terms []Term
	Cache CacheKind
}

// Query is a compiled, reusable matcher. Terms are frozen at build time;
// the query can be iterated any number of times.
type Query struct {
	store *Store
	terms []Term
	cache CacheKind

	fieldCount int

	// hasThis is false when every term has a fixed or variable source; such
	// a query yields exactly one result independent of tables.
	hasThis bool

	cascadeTerm int
	cascadeDesc bool

	// matches is the incrementally maintained table list of cached queries.
	matches []tableMatch
}

// tableMatch is one result batch: a table (or a singleton pseudo-batch)
// plus per-field resolution metadata.
type tableMatch struct {
	table *Table

	// per field: the concrete id that matched (wildcards resolved, Any
	// normalized back to Wildcard), the column in the table (-1 when the
	// data does not come from this table's columns), the source entity
	// (zero when the field is owned by the iterated entity) and the index
	// of the term that filled the field. Or-chain members share a field,
	// so access modes must come from the member that actually matched.
	ids     []Entity
	columns []int
	sources []Entity
	terms   []int

	vars  map[string]Entity
	depth int

	singleton bool
}

// BuildQuery compiles a term list into a query. Malformed terms and ids
// unknown to the store fail the build.
func (s *Store) BuildQuery(desc QueryDesc) (*Query, error) {
	if len(desc.Terms) == 0 {
		return nil, fmt.Errorf("query needs at least one term")
	}

	q := &Query{
		store:       s,
		terms:       slices.Clone(desc.Terms),
		cache:       desc.Cache,
		cascadeTerm: -1,
	}

	for idx := range q.terms {
		term := &q.terms[idx]

		if err := term.finalize(s, idx); err != nil {
			return nil, err
		}

		if err := s.checkTermId(idx, term.Id); err != nil {
			return nil, err
		}

		if trait := s.traitInfoFor(term.Id); trait != nil && trait.DontFragment {
			return nil, fmt.Errorf("term %d: %s never joins a table type and cannot be matched by a query", idx, trait.Name)
		}

		if term.Src.isThis() {
			q.hasThis = true
		}

		if term.Src.Flags&TravCascade != 0 {
			if q.cascadeTerm >= 0 {
				return nil, fmt.Errorf("term %d: only one cascade term per query", idx)
			}

			q.cascadeTerm = idx
			q.cascadeDesc = term.Src.Flags&TravDesc != 0
		}
	}

	if q.terms[len(q.terms)-1].Oper == OpOr {
		return nil, fmt.Errorf("term %d: or-chain has no next term", len(q.terms)-1)
	}

	// or-chain members share one field
	field := 0
	for idx := range q.terms {
		if idx > 0 && q.terms[idx-1].Oper == OpOr {
			q.terms[idx].field = q.terms[idx-1].field
			continue
		}

		q.terms[idx].field = field
		field += 1
	}

	q.fieldCount = field

	if q.cache == CacheAuto {
		q.refill()
		s.registerQuery(q)
	}

	return q, nil
}

// MustBuildQuery is BuildQuery for queries known to be well formed.
func (s *Store) MustBuildQuery(desc QueryDesc) *Query {
	q, err := s.BuildQuery(desc)
	if err != nil {
		panic(err)
	}

	return q
}

func (s *Store) checkTermId(pos int, id Entity) error {
	check := func(half Entity) error {
		if half == Wildcard || half == Any || half < firstUserId {
			return nil
		}

		if s.TypeInfoOf(half) == nil && !s.index.isAlive(s.index.currentOf(half)) {
			return fmt.Errorf("term %d: id %s is not registered with this store", pos, s.DescribeId(half))
		}

		return nil
	}

	if id.IsPair() {
		if err := check(id.First()); err != nil {
			return err
		}

		return check(id.Second())
	}

	return check(id)
}

func (q *Query) FieldCount() int {
	return q.fieldCount
}

func (q *Query) Terms() []Term {
	return q.terms
}

// registerQuery subscribes a cached query to table lifecycle events through
// a weak pointer, so dropped queries unregister themselves.
func (s *Store) registerQuery(q *Query) {
	s.queries = append(s.queries, weak.Make(q))
}

func (s *Store) notifyQueries(kind TableEventKind, table *Table) {
	alive := s.queries[:0]

	for _, wq := range s.queries {
		q := wq.Value()
		if q == nil {
			continue
		}

		alive = append(alive, wq)
		q.onTableEvent(kind, table)
	}

	s.queries = alive
}

func (q *Query) onTableEvent(kind TableEventKind, table *Table) {
	switch kind {
	case TableCreated:
		if !q.hasThis {
			return
		}

		q.matches = append(q.matches, q.matchTable(table)...)
		q.sortMatches()

	case TableDeleted:
		q.matches = slices.DeleteFunc(q.matches, func(m tableMatch) bool {
			return m.table == table
		})
	}
}

// refill rebuilds the cached match list from scratch.
func (q *Query) refill() {
	q.matches = q.collectMatches()
}

func (q *Query) collectMatches() []tableMatch {
	if !q.hasThis {
		return q.matchSingleton()
	}

	var matches []tableMatch
	for _, table := range q.store.graph.tables {
		matches = append(matches, q.matchTable(table)...)
	}

	if q.cascadeTerm >= 0 {
		slices.SortStableFunc(matches, q.compareDepth)
	}

	return matches
}

func (q *Query) sortMatches() {
	if q.cascadeTerm >= 0 {
		slices.SortStableFunc(q.matches, q.compareDepth)
	}
}

func (q *Query) compareDepth(a, b tableMatch) int {
	if q.cascadeDesc {
		return b.depth - a.depth
	}

	return a.depth - b.depth
}

// matchSingleton evaluates a query whose terms all have fixed or variable
// sources. It yields at most one pseudo-batch.
func (q *Query) matchSingleton() []tableMatch {
	matches := q.matchTable(q.store.root)
	if len(matches) > 0 {
		matches = matches[:1]
		matches[0].singleton = true
	}

	return matches
}

// MatchesTable reports whether the table produces at least one result.
func (q *Query) MatchesTable(t *Table) bool {
	return len(q.matchTable(t)) > 0
}
