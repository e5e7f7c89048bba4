package tessera

import (
	"slices"

	"github.com/tessera-ecs/tessera/mosaic"
)

// Event is one component lifecycle notification delivered to an observer.
type Event struct {
	Kind   mosaic.EntityEventKind
	Entity EntityView
	Id     Entity
}

// ObserverBuilder assembles a callback on component add/remove/set events
// for a set of ids. Observers fire synchronously from the operation that
// caused the event; structural changes they make follow the usual defer
// rules.
type ObserverBuilder struct {
	world *World
	ids   []Entity
	kinds []mosaic.EntityEventKind
}

func (w *World) Observer() *ObserverBuilder {
	return &ObserverBuilder{world: w}
}

// For adds an id the observer listens on; pair patterns with wildcards are
// allowed. No For call means all ids.
func (b *ObserverBuilder) For(id Entity) *ObserverBuilder {
	b.ids = append(b.ids, id.StripGeneration())
	return b
}

func (b *ObserverBuilder) OnAdd() *ObserverBuilder {
	b.kinds = append(b.kinds, mosaic.OnAdd)
	return b
}

func (b *ObserverBuilder) OnRemove() *ObserverBuilder {
	b.kinds = append(b.kinds, mosaic.OnRemove)
	return b
}

func (b *ObserverBuilder) OnSet() *ObserverBuilder {
	b.kinds = append(b.kinds, mosaic.OnSet)
	return b
}

// Run registers the observer. At least one event kind is required.
func (b *ObserverBuilder) Run(fn func(ev Event)) {
	if len(b.kinds) == 0 {
		panic("observer needs at least one of OnAdd, OnRemove, OnSet")
	}

	world := b.world
	ids := slices.Clone(b.ids)
	kinds := slices.Clone(b.kinds)

	world.store.WatchEntities(func(ev mosaic.EntityEvent) {
		if !slices.Contains(kinds, ev.Kind) {
			return
		}

		if len(ids) > 0 && !slices.ContainsFunc(ids, func(id Entity) bool {
			return mosaic.MatchesPattern(ev.Id, id)
		}) {
			return
		}

		fn(Event{
			Kind:   ev.Kind,
			Entity: EntityView{world: world, id: ev.Entity},
			Id:     ev.Id,
		})
	})
}
