package mosaic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	HP int32
}

type Frozen struct{}

func newTestStore() *Store {
	return NewStore(StoreConfig{Registry: NewRegistry()})
}

func TestCreateAndDestruct(t *testing.T) {
	s := newTestStore()

	e := s.Create()
	require.True(t, s.IsAlive(e))
	require.Equal(t, 1, s.EntityCount())

	s.Destruct(e)
	require.False(t, s.IsAlive(e))
	require.Equal(t, 0, s.EntityCount())
}

func TestGenerationGuardsRecycledSlots(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	stale := s.Create()
	s.Set(stale, pos.Id, Position{X: 1})
	s.Destruct(stale)

	reused := s.Create()
	require.Equal(t, stale.Index(), reused.Index())
	require.NotEqual(t, stale, reused)

	require.False(t, s.IsAlive(stale))
	require.True(t, s.IsAlive(reused))

	// the stale handle no longer reaches any data
	require.Nil(t, s.Get(stale, pos.Id))
	require.False(t, s.Has(stale, pos.Id))

	// CurrentOf resolves the index to the live handle
	require.Equal(t, reused, s.CurrentOf(stale))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	vel := s.RegisterType(reflect.TypeFor[Velocity]())

	e := s.Create()
	s.Set(e, pos.Id, Position{X: 1, Y: 2})
	require.True(t, s.Has(e, pos.Id))

	s.Set(e, vel.Id, Velocity{X: 3})

	// adding a second component preserves the first one's value
	got := (*Position)(s.Get(e, pos.Id))
	require.NotNil(t, got)
	require.Equal(t, Position{X: 1, Y: 2}, *got)

	s.Remove(e, vel.Id)
	require.False(t, s.Has(e, vel.Id))
	require.Nil(t, s.Get(e, vel.Id))

	got = (*Position)(s.Get(e, pos.Id))
	require.Equal(t, Position{X: 1, Y: 2}, *got)

	// removing an id the entity does not have is a no-op
	s.Remove(e, vel.Id)
	require.True(t, s.Has(e, pos.Id))
}

func TestEntitiesShareTablesByIdSet(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	vel := s.RegisterType(reflect.TypeFor[Velocity]())

	a := s.Create()
	s.Set(a, pos.Id, Position{})
	s.Set(a, vel.Id, Velocity{})

	b := s.Create()
	// reversed insertion order must land in the same table
	s.Set(b, vel.Id, Velocity{})
	s.Set(b, pos.Id, Position{})

	recA := s.index.mustGet(a)
	recB := s.index.mustGet(b)
	require.Same(t, recA.table, recB.table)
	require.Equal(t, 2, recA.table.Len())
}

func TestIdentityStableAcrossCompaction(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	var entities []Entity
	for i := 0; i < 8; i++ {
		e := s.Create()
		s.Set(e, pos.Id, Position{X: float64(i)})
		entities = append(entities, e)
	}

	// destroy from the middle, forcing swap-remove relocations
	s.Destruct(entities[2])
	s.Destruct(entities[5])

	for i, e := range entities {
		if i == 2 || i == 5 {
			require.False(t, s.IsAlive(e))
			continue
		}

		got := (*Position)(s.Get(e, pos.Id))
		require.NotNil(t, got, "entity %d", i)
		require.Equal(t, float64(i), got.X, "entity %d", i)
	}
}

func TestTagsAndDynamicIds(t *testing.T) {
	s := newTestStore()
	frozen := s.RegisterType(reflect.TypeFor[Frozen]())
	require.True(t, frozen.IsTag())

	e := s.Create()
	s.Add(e, frozen.Id)
	require.True(t, s.Has(e, frozen.Id))
	require.Nil(t, s.Get(e, frozen.Id))

	// a plain allocated id works as a dynamic tag
	marker := s.NewId()
	s.Add(e, marker)
	require.True(t, s.Has(e, marker))

	s.Remove(e, marker)
	require.False(t, s.Has(e, marker))
}

func TestPairsAndWildcardHas(t *testing.T) {
	s := newTestStore()

	likes := s.NewId()
	apples := s.NewId()
	pears := s.NewId()

	e := s.Create()
	s.Add(e, MakePair(likes, apples))
	s.Add(e, MakePair(likes, pears))

	require.True(t, s.Has(e, MakePair(likes, apples)))
	require.True(t, s.Has(e, MakePair(likes, Wildcard)))
	require.True(t, s.Has(e, MakePair(Wildcard, pears)))
	require.False(t, s.Has(e, MakePair(apples, Wildcard)))

	s.Remove(e, MakePair(likes, apples))
	require.False(t, s.Has(e, MakePair(likes, apples)))
	require.True(t, s.Has(e, MakePair(likes, Wildcard)))
}

func TestPairDataOnRelationship(t *testing.T) {
	s := newTestStore()
	health := s.RegisterType(reflect.TypeFor[Health]())

	boss := s.Create()
	e := s.Create()

	// the relationship half carries the data type
	pair := MakePair(health.Id, boss)
	s.Set(e, pair, Health{HP: 50})

	got := (*Health)(s.Get(e, pair))
	require.NotNil(t, got)
	require.Equal(t, int32(50), got.HP)
}

func TestSetRejectsWrongType(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	require.Panics(t, func() {
		s.Set(e, pos.Id, Velocity{})
	})
}

func TestSetAcceptsPointer(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	s.Set(e, pos.Id, &Position{X: 9})

	got := (*Position)(s.Get(e, pos.Id))
	require.Equal(t, 9.0, got.X)
}

func TestRegistryAgreesAcrossStores(t *testing.T) {
	registry := NewRegistry()

	s1 := NewStore(StoreConfig{Registry: registry})
	s2 := NewStore(StoreConfig{Registry: registry})

	id1 := s1.RegisterType(reflect.TypeFor[Position]()).Id
	id2 := s2.RegisterType(reflect.TypeFor[Position]()).Id
	require.Equal(t, id1, id2)

	other := s2.RegisterType(reflect.TypeFor[Velocity]()).Id
	require.NotEqual(t, id1, other)
}

func TestExplicitIdConflictsAbort(t *testing.T) {
	registry := NewRegistry()
	s := NewStore(StoreConfig{Registry: registry})

	s.RegisterTypeWithId(reflect.TypeFor[Position](), 100)

	require.Panics(t, func() {
		// same type under a different id
		NewStore(StoreConfig{Registry: registry}).RegisterTypeWithId(reflect.TypeFor[Position](), 101)
	})

	require.Panics(t, func() {
		// different type under a taken id
		s.RegisterTypeWithId(reflect.TypeFor[Velocity](), 100)
	})
}

func TestEntityEvents(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	var events []EntityEvent
	s.WatchEntities(func(ev EntityEvent) {
		events = append(events, ev)
	})

	e := s.Create()
	s.Set(e, pos.Id, Position{X: 1})

	require.Len(t, events, 2)
	require.Equal(t, OnAdd, events[0].Kind)
	require.Equal(t, pos.Id, events[0].Id)
	require.Equal(t, OnSet, events[1].Kind)

	events = events[:0]
	s.Destruct(e)

	require.Len(t, events, 1)
	require.Equal(t, OnRemove, events[0].Kind)
	require.Equal(t, pos.Id, events[0].Id)
}

func TestSparseStorageSurvivesMigrations(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	health := s.RegisterType(reflect.TypeFor[Health](), AsSparse())

	e := s.Create()
	s.Set(e, health.Id, Health{HP: 77})

	// the id joins the table type even though the data lives out of line
	rec := s.index.mustGet(e)
	require.True(t, rec.table.contains(health.Id))
	require.Nil(t, rec.table.columnOf(health.Id))

	before := s.Get(e, health.Id)

	// migrating the entity must not move the sparse value
	s.Set(e, pos.Id, Position{})
	require.Equal(t, before, s.Get(e, health.Id))
	require.Equal(t, int32(77), (*Health)(s.Get(e, health.Id)).HP)

	s.Destruct(e)
	require.False(t, health.sparse.has(e))
}

func TestDontFragmentNeverJoinsTables(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	mana := s.RegisterType(reflect.TypeFor[Health](), AsDontFragment())

	e := s.Create()
	s.Set(e, pos.Id, Position{})
	tableBefore := s.index.mustGet(e).table

	s.Set(e, mana.Id, Health{HP: 12})

	// no migration happened
	require.Same(t, tableBefore, s.index.mustGet(e).table)
	require.False(t, tableBefore.contains(mana.Id))

	require.True(t, s.Has(e, mana.Id))
	require.Equal(t, int32(12), (*Health)(s.Get(e, mana.Id)).HP)

	s.Remove(e, mana.Id)
	require.False(t, s.Has(e, mana.Id))
	require.Same(t, tableBefore, s.index.mustGet(e).table)
}
