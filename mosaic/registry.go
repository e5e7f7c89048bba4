package mosaic

import (
	"fmt"
	"maps"
	"reflect"
	"sync/atomic"
)

// maxComponentId bounds the low id range reserved for components. Plain
// entities allocate above it, so a component registered late never collides
// with an entity slot in any store.
const maxComponentId Entity = 4096

// Registry assigns process-wide stable component ids. The first registration
// of a type wins; every later registration, also against other stores,
// resolves to the same id. Re-registering a type under a conflicting
// explicit id is a fatal consistency error.
//
// The zero value is not usable, create instances with NewRegistry. Most
// programs share DefaultRegistry across all stores.
type Registry struct {
	types  atomic.Pointer[map[reflect.Type]Entity]
	nextId atomic.Uint64
}

// DefaultRegistry is the registry used by stores that were not given an
// explicit one.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	r := &Registry{}
	r.types.Store(&map[reflect.Type]Entity{})
	r.nextId.Store(uint64(firstUserId))

	return r
}

// IdOf returns the component id assigned to the type, assigning the next
// free low-range id on first use.
func (r *Registry) IdOf(t reflect.Type) Entity {
	for {
		previous := r.types.Load()
		if cached, ok := (*previous)[t]; ok {
			return cached
		}

		id := Entity(r.nextId.Add(1) - 1)
		if id >= maxComponentId {
			panic(fmt.Sprintf("registry exhausted the component id range at %s", t))
		}

		next := maps.Clone(*previous)
		next[t] = id

		if r.types.CompareAndSwap(previous, &next) {
			return id
		}

		// lost the race, retry; the winner may have been this very type
	}
}

// IdOfExplicit behaves like IdOf but demands a specific id. A type that was
// already cached under a different id aborts: ids must never silently change
// meaning between stores.
func (r *Registry) IdOfExplicit(t reflect.Type, id Entity) Entity {
	if id == 0 || id >= maxComponentId {
		panic(fmt.Sprintf("explicit component id %s for %s is out of range", id, t))
	}

	for {
		previous := r.types.Load()
		if cached, ok := (*previous)[t]; ok {
			if cached != id {
				panic(fmt.Sprintf("component %s already registered as id %s, re-registered as %s", t, cached, id))
			}

			return cached
		}

		for other, otherId := range *previous {
			if otherId == id {
				panic(fmt.Sprintf("explicit component id %s for %s is already taken by %s", id, t, other))
			}
		}

		next := maps.Clone(*previous)
		next[t] = id

		if r.types.CompareAndSwap(previous, &next) {
			return id
		}
	}
}

// Lookup returns the cached id of a type without assigning one.
func (r *Registry) Lookup(t reflect.Type) (Entity, bool) {
	id, ok := (*r.types.Load())[t]
	return id, ok
}
