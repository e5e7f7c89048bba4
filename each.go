package tessera

// Each runs fn for every matching entity without handing out component
// data. Useful for tag-only queries.
func (q *Query) Each(fn func(e EntityView)) {
	it := q.Iter()
	for it.Next() {
		entities := it.Entities()
		for _, e := range entities {
			fn(EntityView{world: q.world, id: e})
		}
	}
}

func batchEntity(it *Iter, row int) Entity {
	entities := it.Entities()
	if row < len(entities) {
		return entities[row]
	}

	return 0
}

// Each1 runs fn for every matching row with a typed pointer to the
// component's field. The pointer is nil where an optional term did not
// match. Requesting a tag component is rejected at the first call: tags
// carry no data, match them with filter terms and use Each.
func Each1[A any](q *Query, ca Component[A], fn func(e Entity, a *A)) {
	fa := q.fieldIndexOf(ca)

	it := q.Iter()
	for it.Next() {
		for row := range it.Count() {
			fn(batchEntity(it, row), FieldAt[A](it, fa, row))
		}
	}
}

// Each2 is Each1 over two component fields.
func Each2[A, B any](q *Query, ca Component[A], cb Component[B], fn func(e Entity, a *A, b *B)) {
	fa := q.fieldIndexOf(ca)
	fb := q.fieldIndexOf(cb)

	it := q.Iter()
	for it.Next() {
		for row := range it.Count() {
			fn(batchEntity(it, row), FieldAt[A](it, fa, row), FieldAt[B](it, fb, row))
		}
	}
}

// Each3 is Each1 over three component fields. Higher arities go through
// Iter and the Field accessors directly.
func Each3[A, B, C any](q *Query, ca Component[A], cb Component[B], cc Component[C], fn func(e Entity, a *A, b *B, c *C)) {
	fa := q.fieldIndexOf(ca)
	fb := q.fieldIndexOf(cb)
	fc := q.fieldIndexOf(cc)

	it := q.Iter()
	for it.Next() {
		for row := range it.Count() {
			fn(batchEntity(it, row), FieldAt[A](it, fa, row), FieldAt[B](it, fb, row), FieldAt[C](it, fc, row))
		}
	}
}
