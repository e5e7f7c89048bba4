package tessera

import "github.com/tessera-ecs/tessera/mosaic"

// EntityView couples an entity id with its world, giving the CRUD surface
// a fluent form.
type EntityView struct {
	world *World
	id    Entity
}

func (e EntityView) Id() Entity {
	return e.id
}

func (e EntityView) World() *World {
	return e.world
}

func (e EntityView) IsAlive() bool {
	return e.world.store.IsAlive(e.id)
}

// Add attaches a component, tag or pair id.
func (e EntityView) Add(id Entity) EntityView {
	e.world.store.Add(e.id, id)
	return e
}

// AddPair attaches the (rel, target) pair.
func (e EntityView) AddPair(rel, target Entity) EntityView {
	e.world.store.Add(e.id, mosaic.MakePair(rel, target))
	return e
}

// ChildOf attaches the builtin hierarchy pair to the parent.
func (e EntityView) ChildOf(parent Entity) EntityView {
	return e.AddPair(mosaic.ChildOf, parent)
}

// IsA attaches the builtin inheritance pair to the base entity.
func (e EntityView) IsA(base Entity) EntityView {
	return e.AddPair(mosaic.IsA, base)
}

func (e EntityView) Remove(id Entity) EntityView {
	e.world.store.Remove(e.id, id)
	return e
}

func (e EntityView) RemovePair(rel, target Entity) EntityView {
	e.world.store.Remove(e.id, mosaic.MakePair(rel, target))
	return e
}

func (e EntityView) Has(id Entity) bool {
	return e.world.store.Has(e.id, id)
}

func (e EntityView) HasPair(rel, target Entity) bool {
	return e.world.store.Has(e.id, mosaic.MakePair(rel, target))
}

// Destruct tears down the entity and recycles its id with a bumped
// generation; existing handles stop matching.
func (e EntityView) Destruct() {
	e.world.store.Destruct(e.id)
}

// Set writes a typed component value, adding the component first when
// absent.
func Set[T any](e EntityView, c Component[T], value T) EntityView {
	e.world.store.Set(e.id, c.Id(), &value)
	return e
}

// SetPair writes the data of a (rel, target) pair, typed by whichever half
// carries the data.
func SetPair[T any](e EntityView, rel, target Entity, value T) EntityView {
	e.world.store.Set(e.id, mosaic.MakePair(rel, target), &value)
	return e
}

// Get returns the entity's value of the component, nil when absent. The
// pointer stays valid until the next structural change.
func Get[T any](e EntityView, c Component[T]) *T {
	ptr := e.world.store.Get(e.id, c.Id())
	if ptr == nil {
		return nil
	}

	return (*T)(ptr)
}

// GetPair returns the data of a (rel, target) pair.
func GetPair[T any](e EntityView, rel, target Entity) *T {
	ptr := e.world.store.Get(e.id, mosaic.MakePair(rel, target))
	if ptr == nil {
		return nil
	}

	return (*T)(ptr)
}

// Add attaches a typed component with its zero value.
func Add[T any](e EntityView, c Component[T]) EntityView {
	return e.Add(c.Id())
}

// Has reports typed component presence.
func Has[T any](e EntityView, c Component[T]) bool {
	return e.Has(c.Id())
}
