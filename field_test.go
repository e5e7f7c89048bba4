package tessera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldSliceTypedAccess(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)

	for i := 0; i < 4; i++ {
		Set(w.Create(), position, Position{X: float64(i)})
	}

	q := w.Query().With(position.Id()).InOut().MustBuild()

	total := 0.0
	it := q.Iter()
	for it.Next() {
		positions := FieldSlice[Position](it, 0)
		require.Len(t, positions, it.Count())

		for i := range positions {
			total += positions[i].X
		}
	}

	require.Equal(t, 6.0, total)
}

func TestFieldSliceRejectsWrongType(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)

	Set(w.Create(), position, Position{X: 1})

	q := w.Query().With(position.Id()).In().MustBuild()

	it := q.Iter()
	require.True(t, it.Next())

	require.Nil(t, FieldSlice[Velocity](it, 0))
	require.Nil(t, FieldAt[Velocity](it, 0, 0))
	it.Fini()
}

func TestFieldSharedFromFixedSource(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)

	origin := w.Create()
	Set(origin, position, Position{X: 9})

	q := w.Query().With(position.Id()).Src(origin.Id()).In().MustBuild()

	it := q.Iter()
	require.True(t, it.Next())

	shared := FieldShared[Position](it, 0)
	require.NotNil(t, shared)
	require.Equal(t, 9.0, shared.X)

	// a shared field has no per-row column
	require.Nil(t, FieldSlice[Position](it, 0))

	// FieldAt still resolves it
	at := FieldAt[Position](it, 0, 0)
	require.Equal(t, shared, at)
	it.Fini()
}

func TestFieldSharedNilForSelfColumns(t *testing.T) {
	w := newTestWorld()
	position := RegisterComponent[Position](w)

	Set(w.Create(), position, Position{})

	q := w.Query().With(position.Id()).In().MustBuild()

	it := q.Iter()
	require.True(t, it.Next())
	require.Nil(t, FieldShared[Position](it, 0))
	it.Fini()
}
