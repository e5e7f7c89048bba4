package tessera

import (
	"fmt"

	"github.com/tessera-ecs/tessera/mosaic"
)

// QueryBuilder assembles a term list from typed handles and raw ids. Each
// With* call appends a term; the modifier methods configure the most
// recently added one.
type QueryBuilder struct {
	world *World
	desc  mosaic.QueryDesc
}

func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{world: w}
}

// With appends an And term on the id.
func (b *QueryBuilder) With(id Entity) *QueryBuilder {
	b.desc.Terms = append(b.desc.Terms, mosaic.Term{Id: id})
	return b
}

// WithPair appends an And term on the (rel, target) pair; either half may
// be Wildcard or Any.
func (b *QueryBuilder) WithPair(rel, target Entity) *QueryBuilder {
	return b.With(mosaic.MakePair(rel, target))
}

// Term appends a fully spelled out term record.
func (b *QueryBuilder) Term(term mosaic.Term) *QueryBuilder {
	b.desc.Terms = append(b.desc.Terms, term)
	return b
}

func (b *QueryBuilder) last() *mosaic.Term {
	if len(b.desc.Terms) == 0 {
		panic("term modifier before the first With")
	}

	return &b.desc.Terms[len(b.desc.Terms)-1]
}

// Not negates the last term: matching entities must not have the id.
func (b *QueryBuilder) Not() *QueryBuilder {
	b.last().Oper = mosaic.OpNot
	return b
}

// Optional makes the last term non-excluding; its field may read absent.
func (b *QueryBuilder) Optional() *QueryBuilder {
	b.last().Oper = mosaic.OpOptional
	return b
}

// Or chains the last term with the next one; the chain shares one field.
func (b *QueryBuilder) Or() *QueryBuilder {
	b.last().Oper = mosaic.OpOr
	return b
}

// AndFrom turns the last term into a type list expansion requiring all ids
// of the referenced entity.
func (b *QueryBuilder) AndFrom() *QueryBuilder {
	b.last().Oper = mosaic.OpAndFrom
	return b
}

func (b *QueryBuilder) OrFrom() *QueryBuilder {
	b.last().Oper = mosaic.OpOrFrom
	return b
}

func (b *QueryBuilder) NotFrom() *QueryBuilder {
	b.last().Oper = mosaic.OpNotFrom
	return b
}

// In marks the last term read-only.
func (b *QueryBuilder) In() *QueryBuilder {
	b.last().InOut = mosaic.In
	return b
}

// Out marks the last term write-only.
func (b *QueryBuilder) Out() *QueryBuilder {
	b.last().InOut = mosaic.Out
	return b
}

// InOut marks the last term read-write.
func (b *QueryBuilder) InOut() *QueryBuilder {
	b.last().InOut = mosaic.InOut
	return b
}

// Filter matches the last term without granting data access; no lock is
// taken for it.
func (b *QueryBuilder) Filter() *QueryBuilder {
	b.last().InOut = mosaic.InOutNone
	return b
}

// Self restricts the last term to the entity's own table, opting out of
// implicit inheritance traversal.
func (b *QueryBuilder) Self() *QueryBuilder {
	b.last().Src.Flags |= mosaic.TravSelf
	return b
}

// Up lets the last term match ancestors through the ChildOf relationship.
func (b *QueryBuilder) Up() *QueryBuilder {
	b.last().Src.Flags |= mosaic.TravUp
	return b
}

// UpVia is Up over an explicit traversal relationship.
func (b *QueryBuilder) UpVia(rel Entity) *QueryBuilder {
	term := b.last()
	term.Src.Flags |= mosaic.TravUp
	term.Src.Trav = rel

	return b
}

// Cascade orders results parents before children along the traversal
// relationship.
func (b *QueryBuilder) Cascade() *QueryBuilder {
	b.last().Src.Flags |= mosaic.TravCascade
	return b
}

// Desc reverses the cascade order.
func (b *QueryBuilder) Desc() *QueryBuilder {
	b.last().Src.Flags |= mosaic.TravDesc
	return b
}

// Src fixes the last term's source to a specific entity, making its field
// shared.
func (b *QueryBuilder) Src(e Entity) *QueryBuilder {
	b.last().Src.Entity = e
	return b
}

// SrcVar sources the last term from a query variable bound by another
// term.
func (b *QueryBuilder) SrcVar(name string) *QueryBuilder {
	b.last().Src.Var = name
	return b
}

// FirstVar binds the relationship half of the last term's pair to a
// variable.
func (b *QueryBuilder) FirstVar(name string) *QueryBuilder {
	b.last().First.Var = name
	return b
}

// SecondVar binds the target half of the last term's pair to a variable.
func (b *QueryBuilder) SecondVar(name string) *QueryBuilder {
	b.last().Second.Var = name
	return b
}

// Cached maintains the matching table list incrementally instead of
// re-scanning per iteration.
func (b *QueryBuilder) Cached() *QueryBuilder {
	b.desc.Cache = mosaic.CacheAuto
	return b
}

func (b *QueryBuilder) Build() (*Query, error) {
	q, err := b.world.store.BuildQuery(b.desc)
	if err != nil {
		return nil, err
	}

	return &Query{world: b.world, query: q}, nil
}

func (b *QueryBuilder) MustBuild() *Query {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}

	return q
}

// Query wraps a compiled matcher with the typed iteration helpers.
type Query struct {
	world *World
	query *mosaic.Query
}

func (q *Query) Raw() *mosaic.Query {
	return q.query
}

func (q *Query) Iter() *Iter {
	return q.query.Iter()
}

// fieldIndexOf locates the field matching the component's id. Tag handles
// are rejected here: tags carry no data to hand back.
func (q *Query) fieldIndexOf(info fieldComponent) int {
	if info.isTag() {
		panic(fmt.Sprintf("component %s is a tag and carries no data, match it with a filter term instead", info.name()))
	}

	for _, term := range q.query.Terms() {
		if term.Id == info.id() || (term.Id.IsPair() && term.Id.First() == info.id()) {
			return term.Field()
		}
	}

	panic(fmt.Sprintf("query has no term for component %s", info.name()))
}

// fieldComponent is the erased view of Component[T] used by the Each
// helpers.
type fieldComponent interface {
	id() Entity
	isTag() bool
	name() string
}
