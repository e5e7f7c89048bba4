package tessera

import (
	"reflect"
	"unsafe"

	"github.com/tessera-ecs/tessera/mosaic"
	"go.uber.org/zap"
)

type Entity = mosaic.Entity

type Iter = mosaic.Iter

// WorldConfig configures a world. The zero value shares the process-wide
// component registry, logs nowhere and keeps the aliasing detector on.
type WorldConfig struct {
	// Registry assigns component ids. Worlds sharing a registry agree on
	// the id of every type.
	Registry *mosaic.Registry

	// Logger receives engine debug events.
	Logger *zap.Logger

	// DisableLocks turns the runtime aliasing detector off.
	DisableLocks bool
}

// World is one independent entity store plus the typed builder surface on
// top of it.
type World struct {
	store *mosaic.Store
}

func NewWorld() *World {
	return NewWorldWith(WorldConfig{})
}

func NewWorldWith(cfg WorldConfig) *World {
	store := mosaic.NewStore(mosaic.StoreConfig{
		Registry:     cfg.Registry,
		Logger:       cfg.Logger,
		DisableLocks: cfg.DisableLocks,
	})

	return &World{store: store}
}

// Store exposes the underlying storage engine for code that works with raw
// ids and descriptors.
func (w *World) Store() *mosaic.Store {
	return w.store
}

// Create spawns an empty entity.
func (w *World) Create() EntityView {
	return EntityView{world: w, id: w.store.Create()}
}

// NewId allocates an id without storage, usable as a dynamic tag or
// relationship target.
func (w *World) NewId() Entity {
	return w.store.NewId()
}

// Entity wraps an existing id in a view.
func (w *World) Entity(id Entity) EntityView {
	return EntityView{world: w, id: id}
}

func (w *World) IsAlive(id Entity) bool {
	return w.store.IsAlive(id)
}

func (w *World) EntityCount() int {
	return w.store.EntityCount()
}

// DeferBegin opens a defer scope: structural changes queue until the
// matching DeferEnd.
func (w *World) DeferBegin() {
	w.store.DeferBegin()
}

func (w *World) DeferEnd() {
	w.store.DeferEnd()
}

// Defer runs fn with deferred structural changes, flushing them when fn
// returns.
func (w *World) Defer(fn func()) {
	w.store.Defer(fn)
}

// SetThreaded must be enabled before iterating the world from multiple
// goroutines, switching the aliasing detector to its concurrent path.
func (w *World) SetThreaded(threaded bool) {
	w.store.SetThreaded(threaded)
}

// RunSweep deletes long-empty tables within the given budget and returns
// how many were deleted. Meant to be called periodically by the frame
// driver.
func (w *World) RunSweep(budget mosaic.SweepBudget) int {
	return w.store.DeleteEmptyTables(budget)
}

// Pair builds a relationship id from its two halves.
func Pair(rel, target Entity) Entity {
	return mosaic.MakePair(rel, target)
}

// Component is the typed handle of a registered component.
type Component[T any] struct {
	info *mosaic.TypeInfo
}

// RegisterComponent registers T with the world, assigning its process-wide
// id on first use. A zero-size T becomes a tag.
func RegisterComponent[T any](w *World, opts ...mosaic.TypeOption) Component[T] {
	info := w.store.RegisterType(reflect.TypeFor[T](), opts...)
	return Component[T]{info: info}
}

func (c Component[T]) Id() Entity {
	return c.info.Id
}

func (c Component[T]) Name() string {
	return c.info.Name
}

func (c Component[T]) IsTag() bool {
	return c.info.IsTag()
}

func (c Component[T]) id() Entity   { return c.info.Id }
func (c Component[T]) isTag() bool  { return c.info.IsTag() }
func (c Component[T]) name() string { return c.info.Name }

// HooksFor adapts typed lifecycle callbacks to the raw hook record invoked
// by the storage engine. Nil callbacks keep the trivial path.
func HooksFor[T any](ctor func(*T), dtor func(*T), copyFn func(dst, src *T), move func(dst, src *T)) mosaic.Hooks {
	var hooks mosaic.Hooks

	if ctor != nil {
		hooks.Ctor = func(dst unsafe.Pointer) { ctor((*T)(dst)) }
	}

	if dtor != nil {
		hooks.Dtor = func(dst unsafe.Pointer) { dtor((*T)(dst)) }
	}

	if copyFn != nil {
		hooks.Copy = func(dst, src unsafe.Pointer) { copyFn((*T)(dst), (*T)(src)) }
		hooks.CopyCtor = hooks.Copy
	}

	if move != nil {
		moveDtor := func(dst, src unsafe.Pointer) {
			move((*T)(dst), (*T)(src))

			if dtor != nil {
				dtor((*T)(src))
			}
		}

		hooks.MoveDtor = moveDtor
		hooks.CtorMoveDtor = moveDtor
	}

	return hooks
}
