package mosaic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIterFieldAccess(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	a := s.Create()
	s.Set(a, pos.Id, Position{X: 1})
	b := s.Create()
	s.Set(b, pos.Id, Position{X: 2})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.True(t, it.Next())
	require.Equal(t, 2, it.Count())

	field := it.Field(0)
	require.True(t, field.IsSet())
	require.True(t, field.IsSelf())
	require.False(t, field.IsShared())
	require.Equal(t, pos.Id, field.Id())
	require.Same(t, pos, field.Type())

	sum := 0.0
	for row := range it.Count() {
		sum += (*Position)(field.Ptr(row)).X
	}
	require.Equal(t, 3.0, sum)

	// writes through the field pointer land in storage
	(*Position)(field.Ptr(0)).X = 10
	require.False(t, it.Next())

	require.Equal(t, 12.0,
		(*Position)(s.Get(a, pos.Id)).X+(*Position)(s.Get(b, pos.Id)).X)
}

func TestIterRowAddressedField(t *testing.T) {
	s := newTestStore()
	health := s.RegisterType(reflect.TypeFor[Health](), AsSparse())

	a := s.Create()
	s.Set(a, health.Id, Health{HP: 10})
	b := s.Create()
	s.Set(b, health.Id, Health{HP: 20})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: health.Id}}})

	total := int32(0)

	it := q.Iter()
	for it.Next() {
		field := it.Field(0)
		require.True(t, field.IsRowAddressed())

		for row := range it.Count() {
			total += (*Health)(field.Ptr(row)).HP
		}
	}

	require.Equal(t, int32(30), total)
}

func TestIterFieldIndexOutOfRangePanics(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	s.Set(e, pos.Id, Position{})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.True(t, it.Next())
	defer it.Fini()

	require.Panics(t, func() { it.Field(1) })
	require.Panics(t, func() { it.Field(-1) })
}

func TestIterAccessWithoutBatchPanics(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.Panics(t, func() { it.Count() })
}

func TestIterRewindDetectsLeak(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	s.Set(e, pos.Id, Position{})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.True(t, it.Next())

	// still holding a batch
	require.Panics(t, func() { it.Rewind() })

	it.Fini()
	it.Rewind()
	require.True(t, it.Next())
	require.False(t, it.Next())
}

func TestIterFiniIsIdempotent(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())

	e := s.Create()
	s.Set(e, pos.Id, Position{})

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	it := q.Iter()
	require.True(t, it.Next())

	it.Fini()
	it.Fini()

	// the early Fini released the table lock
	s.Add(e, s.NewId())
}

func TestIterSkipsEmptiedTables(t *testing.T) {
	s := newTestStore()
	pos := s.RegisterType(reflect.TypeFor[Position]())
	vel := s.RegisterType(reflect.TypeFor[Velocity]())

	a := s.Create()
	s.Set(a, pos.Id, Position{})

	// create and abandon a second permutation
	b := s.Create()
	s.Set(b, pos.Id, Position{})
	s.Set(b, vel.Id, Velocity{})
	s.Remove(b, vel.Id)

	q := s.MustBuildQuery(QueryDesc{Terms: []Term{{Id: pos.Id}}})

	batches := 0
	rows := 0

	it := q.Iter()
	for it.Next() {
		batches++
		rows += it.Count()
	}

	require.Equal(t, 1, batches)
	require.Equal(t, 2, rows)
}
