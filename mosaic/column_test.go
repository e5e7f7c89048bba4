package mosaic

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type Resource struct {
	Handle int
}

type hookCounts struct {
	ctors  int
	dtors  int
	copies int
	moves  int
}

func countingHooks(counts *hookCounts) Hooks {
	move := func(dst, src unsafe.Pointer) {
		counts.moves++
		*(*Resource)(dst) = *(*Resource)(src)
	}

	copyFn := func(dst, src unsafe.Pointer) {
		counts.copies++
		*(*Resource)(dst) = *(*Resource)(src)
	}

	return Hooks{
		Ctor:         func(dst unsafe.Pointer) { counts.ctors++ },
		Dtor:         func(dst unsafe.Pointer) { counts.dtors++ },
		Copy:         copyFn,
		CopyCtor:     copyFn,
		MoveDtor:     move,
		CtorMoveDtor: move,
	}
}

func TestHooksOnSetAndDestruct(t *testing.T) {
	s := newTestStore()

	var counts hookCounts
	res := s.RegisterType(reflect.TypeFor[Resource](), WithHooks(countingHooks(&counts)))

	e := s.Create()
	s.Set(e, res.Id, Resource{Handle: 1})

	require.Equal(t, 1, counts.ctors)
	require.Equal(t, 1, counts.copies)
	require.Equal(t, 0, counts.dtors)

	s.Destruct(e)
	require.Equal(t, 1, counts.dtors)
	require.Equal(t, 0, counts.moves)
}

func TestHooksOnMigration(t *testing.T) {
	s := newTestStore()

	var counts hookCounts
	res := s.RegisterType(reflect.TypeFor[Resource](), WithHooks(countingHooks(&counts)))
	frozen := s.RegisterType(reflect.TypeFor[Frozen]())

	e := s.Create()
	s.Set(e, res.Id, Resource{Handle: 7})

	counts = hookCounts{}
	s.Add(e, frozen.Id)

	// the value moved across tables exactly once, without a stray dtor
	require.Equal(t, 1, counts.moves)
	require.Equal(t, 0, counts.dtors)
	require.Equal(t, 0, counts.copies)

	require.Equal(t, 7, (*Resource)(s.Get(e, res.Id)).Handle)

	counts = hookCounts{}
	s.Destruct(e)
	require.Equal(t, 1, counts.dtors)
}

func TestHooksBalanceUnderCompaction(t *testing.T) {
	s := newTestStore()

	var counts hookCounts
	res := s.RegisterType(reflect.TypeFor[Resource](), WithHooks(countingHooks(&counts)))

	var entities []Entity
	for i := 0; i < 6; i++ {
		e := s.Create()
		s.Set(e, res.Id, Resource{Handle: i})
		entities = append(entities, e)
	}

	for _, e := range entities {
		s.Destruct(e)
	}

	// every constructed slot (ctor or move target) got exactly one dtor
	require.Equal(t, counts.ctors, counts.dtors)
	require.Equal(t, 6, counts.dtors)
}

func TestCopyConstructorServesSet(t *testing.T) {
	s := newTestStore()

	ctors, dtors := 0, 0
	res := s.RegisterType(reflect.TypeFor[Resource](), WithHooks(Hooks{
		Dtor: func(dst unsafe.Pointer) { dtors++ },
		CopyCtor: func(dst, src unsafe.Pointer) {
			ctors++
			*(*Resource)(dst) = *(*Resource)(src)
		},
	}))

	e := s.Create()
	s.Set(e, res.Id, Resource{Handle: 3})

	// the default slot is torn down and copy-constructed over
	require.Equal(t, 1, ctors)
	require.Equal(t, 1, dtors)
	require.Equal(t, 3, (*Resource)(s.Get(e, res.Id)).Handle)

	s.Destruct(e)
	require.Equal(t, 2, dtors)
}

func TestTagsRejectHooks(t *testing.T) {
	s := newTestStore()

	require.Panics(t, func() {
		s.RegisterType(reflect.TypeFor[Frozen](), WithHooks(Hooks{
			Ctor: func(dst unsafe.Pointer) {},
		}))
	})
}

func TestDestructorOnlyTypesCannotBeCopied(t *testing.T) {
	s := newTestStore()

	res := s.RegisterType(reflect.TypeFor[Resource](), WithHooks(Hooks{
		Dtor: func(dst unsafe.Pointer) {},
	}))

	e := s.Create()
	require.Panics(t, func() {
		s.Set(e, res.Id, Resource{Handle: 1})
	})
}
