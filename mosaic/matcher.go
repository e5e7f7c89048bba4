package mosaic

import "slices"

// termCandidate is one way a single term can match against a table: the
// concrete id it resolved to, the column holding the data (-1 when the data
// is not in the iterated table) and the source entity for shared fields.
type termCandidate struct {
	id     Entity
	column int
	source Entity
	binds  []varBind
}

type varBind struct {
	name   string
	entity Entity
}

// matcher runs one table through the term list, backtracking over wildcard
// permutations and variable bindings.
type matcher struct {
	q     *Query
	table *Table

	ids     []Entity
	columns []int
	sources []Entity
	terms   []int
	vars    map[string]Entity

	scratch []int
}

// matchTable produces every result batch the table yields for this query:
// zero for non-matching tables, more than one when `*` wildcards expand to
// multiple instances.
func (q *Query) matchTable(t *Table) []tableMatch {
	m := matcher{
		q:       q,
		table:   t,
		ids:     make([]Entity, q.fieldCount),
		columns: make([]int, q.fieldCount),
		sources: make([]Entity, q.fieldCount),
		terms:   make([]int, q.fieldCount),
	}

	for idx := range m.columns {
		m.columns[idx] = -1
	}

	var out []tableMatch
	m.matchFrom(0, &out)

	return out
}

func (m *matcher) matchFrom(termIdx int, out *[]tableMatch) {
	if termIdx >= len(m.q.terms) {
		m.emit(out)
		return
	}

	term := &m.q.terms[termIdx]

	// an or-chain runs from the first OpOr term to the first non-OpOr term
	if term.Oper == OpOr {
		chainEnd := termIdx
		for m.q.terms[chainEnd].Oper == OpOr {
			chainEnd += 1
		}

		for memberIdx := termIdx; memberIdx <= chainEnd; memberIdx++ {
			if m.tryDataTerm(memberIdx, chainEnd+1, out) {
				return
			}
		}

		return
	}

	switch term.Oper {
	case OpAnd:
		m.tryDataTerm(termIdx, termIdx+1, out)

	case OpOptional:
		if m.tryDataTerm(termIdx, termIdx+1, out) {
			return
		}

		// absent data never excludes the result
		m.setField(term.field, termIdx, term.Id, -1, 0)
		m.matchFrom(termIdx+1, out)

	case OpNot:
		if len(m.candidatesFor(term)) > 0 {
			return
		}

		m.setField(term.field, termIdx, term.Id, -1, 0)
		m.matchFrom(termIdx+1, out)

	case OpAndFrom, OpOrFrom, OpNotFrom:
		if !m.matchTypeList(term) {
			return
		}

		m.setField(term.field, termIdx, term.Id, -1, 0)
		m.matchFrom(termIdx+1, out)
	}
}

// tryDataTerm resolves candidates for a data-bearing term and recurses into
// the rest of the term list for each of them. Reports whether at least one
// full match was attempted.
func (m *matcher) tryDataTerm(termIdx int, next int, out *[]tableMatch) bool {
	term := &m.q.terms[termIdx]

	candidates := m.candidatesFor(term)
	if len(candidates) == 0 {
		return false
	}

	for _, candidate := range candidates {
		saved := m.bindAll(candidate.binds)
		if saved == nil {
			continue
		}

		m.setField(term.field, termIdx, candidate.id, candidate.column, candidate.source)
		m.matchFrom(next, out)
		m.unbindAll(saved)
	}

	return true
}

func (m *matcher) setField(field int, termIdx int, id Entity, column int, source Entity) {
	m.ids[field] = id
	m.columns[field] = column
	m.sources[field] = source
	m.terms[field] = termIdx
}

// bindAll applies the candidate's variable bindings, returning the undo
// list, or nil if a binding conflicts with an existing one.
func (m *matcher) bindAll(binds []varBind) []string {
	undo := make([]string, 0, len(binds))

	for _, bind := range binds {
		if existing, ok := m.vars[bind.name]; ok {
			if existing != bind.entity {
				m.unbindAll(undo)
				return nil
			}

			continue
		}

		if m.vars == nil {
			m.vars = map[string]Entity{}
		}

		m.vars[bind.name] = bind.entity
		undo = append(undo, bind.name)
	}

	return undo
}

func (m *matcher) unbindAll(names []string) {
	for _, name := range names {
		delete(m.vars, name)
	}
}

func (m *matcher) emit(out *[]tableMatch) {
	match := tableMatch{
		table:   m.table,
		ids:     slices.Clone(m.ids),
		columns: slices.Clone(m.columns),
		sources: slices.Clone(m.sources),
		terms:   slices.Clone(m.terms),
	}

	if len(m.vars) > 0 {
		match.vars = make(map[string]Entity, len(m.vars))
		for name, e := range m.vars {
			match.vars[name] = e
		}
	}

	if m.q.cascadeTerm >= 0 {
		match.depth = m.depthOf(m.table, m.q.terms[m.q.cascadeTerm].Src.Trav)
	}

	*out = append(*out, match)
}

// candidatesFor enumerates the ways the term matches, honoring the source
// specifier and traversal flags. Negation terms also go through here: a
// non-empty result means the id is present.
func (m *matcher) candidatesFor(term *Term) []termCandidate {
	pattern := m.patternOf(term)

	// variable sources must be bound by an earlier term
	if term.Src.Var != "" {
		bound, ok := m.vars[term.Src.Var]
		if !ok {
			return nil
		}

		return m.fixedCandidates(term, pattern, bound)
	}

	if term.Src.Entity != 0 {
		return m.fixedCandidates(term, pattern, term.Src.Entity)
	}

	return m.thisCandidates(term, pattern)
}

// patternOf substitutes already-bound variables into the term's pattern.
func (m *matcher) patternOf(term *Term) Entity {
	pattern := term.Id

	if term.First.Var != "" {
		if bound, ok := m.vars[term.First.Var]; ok {
			pattern = MakePair(bound, pattern.Second())
		}
	}

	if term.Second.Var != "" {
		if bound, ok := m.vars[term.Second.Var]; ok {
			pattern = MakePair(pattern.First(), bound.StripGeneration())
		}
	}

	return pattern
}

func (m *matcher) thisCandidates(term *Term, pattern Entity) []termCandidate {
	var candidates []termCandidate

	if term.Src.Flags&TravSelf != 0 {
		m.scratch = m.table.matchIndices(pattern, m.scratch[:0])

		for _, idx := range m.scratch {
			candidates = append(candidates, m.candidateAt(term, pattern, m.table, idx, 0))

			if hasAnyHalf(pattern) {
				// `_` collapses to at most one result
				break
			}
		}
	}

	if len(candidates) == 0 && term.Src.Flags&TravUp != 0 {
		if source, id, ok := m.findUp(m.table, pattern, term.Src.Trav, nil); ok {
			candidates = append(candidates, m.upCandidate(term, pattern, id, source))
		}
	}

	return candidates
}

// fixedCandidates matches the term against a fixed source entity; the field
// becomes shared, one value for the whole batch.
func (m *matcher) fixedCandidates(term *Term, pattern Entity, source Entity) []termCandidate {
	rec := m.q.store.index.get(source)
	if rec == nil || rec.table == nil {
		return nil
	}

	var candidates []termCandidate

	if term.Src.Flags&TravSelf != 0 {
		m.scratch = rec.table.matchIndices(pattern, m.scratch[:0])

		for _, idx := range m.scratch {
			candidate := m.candidateAt(term, pattern, rec.table, idx, source)
			candidate.column = -1
			candidates = append(candidates, candidate)

			if hasAnyHalf(pattern) {
				break
			}
		}
	}

	if len(candidates) == 0 && term.Src.Flags&TravUp != 0 {
		if above, id, ok := m.findUp(rec.table, pattern, term.Src.Trav, nil); ok {
			candidates = append(candidates, m.upCandidate(term, pattern, id, above))
		}
	}

	return candidates
}

func (m *matcher) candidateAt(term *Term, pattern Entity, table *Table, idx int, source Entity) termCandidate {
	matched := table.ids[idx]

	column := -1
	if source == 0 {
		column = idx
	}

	return termCandidate{
		id:     normalizeAny(pattern, matched),
		column: column,
		source: source,
		binds:  m.bindsOf(term, matched),
	}
}

func (m *matcher) upCandidate(term *Term, pattern, matched Entity, source Entity) termCandidate {
	return termCandidate{
		id:     normalizeAny(pattern, matched),
		column: -1,
		source: source,
		binds:  m.bindsOf(term, matched),
	}
}

// bindsOf derives variable bindings from the concrete matched id.
func (m *matcher) bindsOf(term *Term, matched Entity) []varBind {
	var binds []varBind

	if term.First.Var != "" && matched.IsPair() {
		first := m.q.store.index.currentOf(matched.First())
		binds = append(binds, varBind{name: term.First.Var, entity: first})
	}

	if term.Second.Var != "" && matched.IsPair() {
		second := m.q.store.index.currentOf(matched.Second())
		binds = append(binds, varBind{name: term.Second.Var, entity: second})
	}

	return binds
}

// findUp searches the ancestors reachable through the traversal
// relationship for an id matching the pattern, depth first.
func (m *matcher) findUp(t *Table, pattern, trav Entity, seen []*Table) (Entity, Entity, bool) {
	if slices.Contains(seen, t) {
		return 0, 0, false
	}

	seen = append(seen, t)

	parentPattern := MakePair(trav, Wildcard)

	for _, id := range t.ids {
		if !matchesId(id, parentPattern) {
			continue
		}

		parent := m.q.store.index.currentOf(id.Second())

		rec := m.q.store.index.get(parent)
		if rec == nil || rec.table == nil {
			continue
		}

		if indices := rec.table.matchIndices(pattern, m.scratch[:0]); len(indices) > 0 {
			return parent, rec.table.ids[indices[0]], true
		}

		if source, matched, ok := m.findUp(rec.table, pattern, trav, seen); ok {
			return source, matched, true
		}
	}

	return 0, 0, false
}

// depthOf is the hierarchy depth of a table along the traversal
// relationship, used to order cascade results parents first.
func (m *matcher) depthOf(t *Table, trav Entity) int {
	pattern := MakePair(trav, Wildcard)

	for _, id := range t.ids {
		if !matchesId(id, pattern) {
			continue
		}

		parent := m.q.store.index.currentOf(id.Second())

		rec := m.q.store.index.get(parent)
		if rec == nil || rec.table == nil {
			return 1
		}

		return 1 + m.depthOf(rec.table, trav)
	}

	return 0
}

// matchTypeList expands the term's type list entity and checks the table
// against all (AndFrom), any (OrFrom) or none (NotFrom) of its ids.
func (m *matcher) matchTypeList(term *Term) bool {
	rec := m.q.store.index.get(m.q.store.index.currentOf(term.Id))
	if rec == nil || rec.table == nil {
		return term.Oper == OpNotFrom
	}

	anyPresent := false
	allPresent := true

	for _, id := range rec.table.ids {
		if m.table.contains(id &^ FlagAnd) {
			anyPresent = true
		} else {
			allPresent = false
		}
	}

	switch term.Oper {
	case OpAndFrom:
		return len(rec.table.ids) == 0 || allPresent
	case OpOrFrom:
		return anyPresent
	default:
		return !anyPresent
	}
}

// hasAnyHalf reports whether the pattern contains the `_` wildcard, which
// collapses multiple instance matches into one.
func hasAnyHalf(pattern Entity) bool {
	if pattern == Any {
		return true
	}

	if pattern.IsPair() {
		return pattern.First() == Any || pattern.Second() == Any
	}

	return false
}

// normalizeAny rewrites the halves of the matched id that the pattern
// covered with `_` back to the general wildcard form.
func normalizeAny(pattern, matched Entity) Entity {
	if pattern == Any {
		return Wildcard
	}

	if !pattern.IsPair() || !matched.IsPair() {
		return matched
	}

	first, second := matched.First(), matched.Second()

	if pattern.First() == Any {
		first = Wildcard
	}

	if pattern.Second() == Any {
		second = Wildcard
	}

	return MakePair(first, second)
}
