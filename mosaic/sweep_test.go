package mosaic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func emptyTableStore(t *testing.T) (*Store, *TypeInfo) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	vel := s.RegisterType(reflect.TypeFor[Velocity]())

	// leave the [Position, Velocity] table behind empty
	e := s.Create()
	s.Set(e, pos.Id, Position{})
	s.Set(e, vel.Id, Velocity{})
	s.Remove(e, vel.Id)

	return s, pos
}

func countTables(s *Store) int {
	return len(s.Tables())
}

func TestSweepDeletesLongEmptyTables(t *testing.T) {
	s, _ := emptyTableStore(t)
	before := countTables(s)

	budget := SweepBudget{Generations: 2}

	// the table has to stay empty for two full generations first
	require.Equal(t, 0, s.DeleteEmptyTables(budget))
	require.Equal(t, 0, s.DeleteEmptyTables(budget))
	require.Equal(t, 1, s.DeleteEmptyTables(budget))

	require.Equal(t, before-1, countTables(s))
}

func TestSweepSparesRepopulatedTables(t *testing.T) {
	s, pos := emptyTableStore(t)
	vel := s.RegisterType(reflect.TypeFor[Velocity]())

	budget := SweepBudget{Generations: 1}
	s.DeleteEmptyTables(budget)

	// repopulating resets the countdown
	e := s.Create()
	s.Set(e, pos.Id, Position{})
	s.Set(e, vel.Id, Velocity{})

	before := countTables(s)
	s.DeleteEmptyTables(budget)
	s.DeleteEmptyTables(budget)
	require.Equal(t, before, countTables(s))
}

func TestSweepNeverDeletesRoot(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 4; i++ {
		require.Equal(t, 0, s.DeleteEmptyTables(SweepBudget{}))
	}

	// a fresh entity still has a home
	e := s.Create()
	require.True(t, s.IsAlive(e))
}

func TestSweepUpdatesCachedQueries(t *testing.T) {
	s, pos := emptyTableStore(t)

	q := s.MustBuildQuery(QueryDesc{
		Terms: []Term{{Id: pos.Id}},
		Cache: CacheAuto,
	})

	matchesBefore := len(q.matches)

	budget := SweepBudget{Generations: 0}
	require.Equal(t, 1, s.DeleteEmptyTables(budget))

	require.Equal(t, matchesBefore-1, len(q.matches))
}

func TestSweepSkipsLockedTables(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	s.Set(e, pos.Id, Position{})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.True(t, it.Next())
	defer it.Fini()

	// empty the table while iterating; teardown is deferred so the table
	// is still locked and must survive the sweep
	s.Destruct(e)

	require.Equal(t, 0, s.DeleteEmptyTables(SweepBudget{Generations: 0}))
}
