package tessera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEachVisitsTagOnlyMatches(t *testing.T) {
	w := newTestWorld()
	burning := RegisterComponent[Burning](w)
	position := RegisterComponent[Position](w)

	a := w.Create()
	Add(a, burning)

	b := w.Create()
	Add(b, burning)
	Set(b, position, Position{})

	w.Create() // no tag, stays outside

	q := w.Query().With(burning.Id()).Filter().MustBuild()

	var seen []Entity
	q.Each(func(e EntityView) {
		seen = append(seen, e.Id())
	})

	require.ElementsMatch(t, []Entity{a.Id(), b.Id()}, seen)
}

func TestEach1OptionalYieldsNil(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)
	velocity := RegisterComponent[Velocity](w)

	moving := w.Create()
	Set(moving, position, Position{})
	Set(moving, velocity, Velocity{X: 1})

	parked := w.Create()
	Set(parked, position, Position{})

	q := w.Query().
		With(position.Id()).Filter().
		With(velocity.Id()).Optional().In().
		MustBuild()

	got := map[Entity]bool{}
	Each1(q, velocity, func(e Entity, vel *Velocity) {
		got[e] = vel != nil
	})

	require.Equal(t, map[Entity]bool{
		moving.Id(): true,
		parked.Id(): false,
	}, got)
}

func TestEach3MixedFields(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)
	velocity := RegisterComponent[Velocity](w)
	health := RegisterComponent[Health](w)

	e := w.Create()
	Set(e, position, Position{X: 1})
	Set(e, velocity, Velocity{X: 2})
	Set(e, health, Health{HP: 3})

	q := w.Query().
		With(position.Id()).In().
		With(velocity.Id()).In().
		With(health.Id()).In().
		MustBuild()

	calls := 0
	Each3(q, position, velocity, health, func(_ Entity, pos *Position, vel *Velocity, hp *Health) {
		calls++
		require.Equal(t, 1.0, pos.X)
		require.Equal(t, 2.0, vel.X)
		require.Equal(t, int32(3), hp.HP)
	})

	require.Equal(t, 1, calls)
}

func TestEachRejectsTagFields(t *testing.T) {
	w := newTestWorld()
	burning := RegisterComponent[Burning](w)

	q := w.Query().With(burning.Id()).Filter().MustBuild()

	require.PanicsWithValue(t,
		"component tessera.Burning is a tag and carries no data, match it with a filter term instead",
		func() {
			Each1(q, burning, func(Entity, *Burning) {})
		})
}

func TestEachRejectsForeignComponents(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)
	velocity := RegisterComponent[Velocity](w)

	q := w.Query().With(position.Id()).In().MustBuild()

	require.Panics(t, func() {
		Each1(q, velocity, func(Entity, *Velocity) {})
	})
}
