package mosaic

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"
	"weak"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

// StoreConfig configures a store. The zero value is usable: it shares
// DefaultRegistry, logs nowhere and keeps access locking enabled.
type StoreConfig struct {
	// Registry assigns component ids. Stores sharing a registry assign the
	// same id to the same Go type.
	Registry *Registry

	// Logger receives debug events for registration, table lifecycle and
	// sweeps. Nil disables logging.
	Logger *zap.Logger

	// DisableLocks turns off the runtime aliasing detector.
	DisableLocks bool
}

type TableEventKind uint8

const (
	TableCreated TableEventKind = iota
	TableDeleted
)

type EntityEventKind uint8

const (
	OnAdd EntityEventKind = iota
	OnRemove
	OnSet
)

type EntityEvent struct {
	Kind   EntityEventKind
	Entity Entity
	Id     Entity
}

// Store is one independent entity database: an entity index, the table
// graph, per-component registration records and the deferred command queue.
type Store struct {
	registry *Registry
	logger   *zap.Logger

	index entityIndex
	graph *tableGraph
	root  *Table

	infos       *intmap.Map[uint64, *TypeInfo]
	infosByType map[reflect.Type]*TypeInfo
	sparseInfos []*TypeInfo

	access *accessMap

	deferCount atomic.Int32
	flushing   atomic.Bool
	queue      commandQueue
	allocMu    sync.Mutex

	sweepGen uint64

	tableWatchers  []func(TableEventKind, *Table)
	entityWatchers []func(EntityEvent)
	queries        []weak.Pointer[Query]
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Store{
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		infos:       intmap.New[uint64, *TypeInfo](32),
		infosByType: map[reflect.Type]*TypeInfo{},
	}

	s.index.floor = uint32(maxComponentId)
	s.access = newAccessMap(s.DescribeId)
	s.access.disabled = cfg.DisableLocks

	s.graph = newTableGraph(s.resolveInfos)

	for _, builtin := range []Entity{Wildcard, Any, ChildOf, IsA} {
		s.index.ensure(builtin)
	}

	s.root, _ = s.graph.lookup(nil)

	return s
}

// SetThreaded switches the aliasing detector between the single threaded
// fast path and the mutex protected one required for concurrent stages.
func (s *Store) SetThreaded(threaded bool) {
	s.access.threaded = threaded
}

func (s *Store) WatchTables(fn func(TableEventKind, *Table)) {
	s.tableWatchers = append(s.tableWatchers, fn)
}

func (s *Store) WatchEntities(fn func(EntityEvent)) {
	s.entityWatchers = append(s.entityWatchers, fn)
}

func (s *Store) emitTable(kind TableEventKind, table *Table) {
	s.notifyQueries(kind, table)

	for _, fn := range s.tableWatchers {
		fn(kind, table)
	}

	if kind == TableCreated {
		s.logger.Debug("table created", zap.String("table", table.String()))
	}
}

func (s *Store) emitEntity(ev EntityEvent) {
	for _, fn := range s.entityWatchers {
		fn(ev)
	}
}

// Tables returns all live tables. The slice is owned by the store.
func (s *Store) Tables() []*Table {
	return s.graph.tables
}

func (s *Store) EntityCount() int {
	count := 0
	for idx := int(s.index.floor); idx < len(s.index.records); idx++ {
		if s.index.records[idx].alive {
			count += 1
		}
	}

	return count
}

// TypeOption customizes a registration record.
type TypeOption func(*TypeInfo)

func WithHooks(h Hooks) TypeOption {
	return func(ti *TypeInfo) { ti.Hooks = h }
}

func WithName(name string) TypeOption {
	return func(ti *TypeInfo) { ti.Name = name }
}

// AsSparse keeps the id in table types, so queries match by table, but
// stores values in a per-component side table so table migrations never
// move them.
func AsSparse() TypeOption {
	return func(ti *TypeInfo) { ti.Sparse = true }
}

// AsDontFragment keeps the id out of table types entirely: adding or
// removing the component never fragments archetypes. Such components are
// reached through the CRUD surface, not through query terms.
func AsDontFragment() TypeOption {
	return func(ti *TypeInfo) { ti.DontFragment = true }
}

// AsInheritable gives terms on this component implicit self|up(IsA)
// traversal.
func AsInheritable() TypeOption {
	return func(ti *TypeInfo) { ti.Inheritable = true }
}

// RegisterType assigns (or re-validates) the component id for the Go type
// and creates the store's registration record on first use.
func (s *Store) RegisterType(t reflect.Type, opts ...TypeOption) *TypeInfo {
	return s.registerType(t, 0, opts...)
}

// RegisterTypeWithId is RegisterType with a caller chosen id. Conflicts with
// an earlier registration of the same type abort.
func (s *Store) RegisterTypeWithId(t reflect.Type, id Entity, opts ...TypeOption) *TypeInfo {
	return s.registerType(t, id, opts...)
}

func (s *Store) registerType(t reflect.Type, explicit Entity, opts ...TypeOption) *TypeInfo {
	if existing, ok := s.infosByType[t]; ok {
		if explicit != 0 && existing.Id != explicit {
			panic(fmt.Sprintf("component %s already known to this store as id %s, re-registered as %s",
				existing.Name, existing.Id, explicit))
		}

		return existing
	}

	var id Entity
	if explicit != 0 {
		id = s.registry.IdOfExplicit(t, explicit)
	} else {
		id = s.registry.IdOf(t)
	}

	ti := &TypeInfo{
		Id:          id,
		Name:        t.String(),
		Type:        t,
		Size:        t.Size(),
		hasPointers: typeHasPointers(t),
	}

	for _, opt := range opts {
		opt(ti)
	}

	if ti.IsTag() && !ti.Hooks.isZero() {
		panic(fmt.Sprintf("tag %s cannot have lifecycle hooks, it owns no storage", ti.Name))
	}

	if ti.rowAddressed() {
		if ti.IsTag() {
			panic(fmt.Sprintf("tag %s cannot be sparse", ti.Name))
		}

		ti.sparse = newSparseStore(ti)
		s.sparseInfos = append(s.sparseInfos, ti)
	}

	s.infos.Put(uint64(id), ti)
	s.infosByType[t] = ti
	s.index.ensure(id)

	s.logger.Debug("component registered",
		zap.String("name", ti.Name),
		zap.Uint64("id", uint64(id)),
		zap.Uint64("size", uint64(ti.Size)))

	return ti
}

// TypeInfoOf returns the registration record behind a component id, nil for
// plain entity ids.
func (s *Store) TypeInfoOf(id Entity) *TypeInfo {
	ti, _ := s.infos.Get(uint64(id.StripGeneration()))
	return ti
}

// dataInfoFor resolves the registration record whose type backs the data of
// an id. For pairs this is the relationship if it carries data, otherwise
// the target; nil means the id holds no data at all.
func (s *Store) dataInfoFor(id Entity) *TypeInfo {
	if !id.IsPair() {
		ti := s.TypeInfoOf(id)
		if ti != nil && ti.IsTag() {
			return nil
		}

		return ti
	}

	if first := s.TypeInfoOf(id.First()); first != nil && !first.IsTag() {
		return first
	}

	if second := s.TypeInfoOf(id.Second()); second != nil && !second.IsTag() {
		return second
	}

	return nil
}

// traitInfoFor resolves the record that decides storage traits of an id.
// For pairs the relationship side wins.
func (s *Store) traitInfoFor(id Entity) *TypeInfo {
	if id.IsPair() {
		return s.TypeInfoOf(id.First())
	}

	return s.TypeInfoOf(id)
}

func (s *Store) resolveInfos(ids []Entity) []*TypeInfo {
	infos := make([]*TypeInfo, len(ids))
	for idx, id := range ids {
		infos[idx] = s.dataInfoFor(id)
	}

	return infos
}

// DescribeId renders an id for diagnostics, using registered names where
// available.
func (s *Store) DescribeId(id Entity) string {
	if id.IsPair() {
		return fmt.Sprintf("(%s, %s)", s.DescribeId(id.First()), s.DescribeId(id.Second()))
	}

	if ti := s.TypeInfoOf(id); ti != nil {
		return ti.Name
	}

	switch id {
	case Wildcard:
		return "*"
	case Any:
		return "_"
	case ChildOf:
		return "ChildOf"
	case IsA:
		return "IsA"
	}

	return id.String()
}

// NewId allocates a fresh entity id without placing it into any table. The
// id can serve as a dynamic tag or relationship target.
func (s *Store) NewId() Entity {
	return s.index.alloc()
}

// reserve allocates an id under the allocation mutex so concurrent command
// buffers can create entities while other workers read.
func (s *Store) reserve() Entity {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	return s.index.alloc()
}

// Create allocates an entity and places it into the empty root table.
func (s *Store) Create() Entity {
	e := s.index.alloc()

	if s.deferCount.Load() > 0 {
		s.queue.push(deferredOp{kind: opCreate, entity: e})
		return e
	}

	s.placeInRoot(e)

	return e
}

func (s *Store) placeInRoot(e Entity) {
	rec := s.index.mustGet(e)
	rec.table = s.root
	rec.row = s.root.appendRow(e)
}

func (s *Store) IsAlive(e Entity) bool {
	return s.index.isAlive(e)
}

// CurrentOf resolves an index-only handle to the live generation-carrying
// one, zero if the slot is dead.
func (s *Store) CurrentOf(e Entity) Entity {
	return s.index.currentOf(e)
}

// Add attaches a component, tag or pair to the entity, migrating it to the
// table owning the extended id set.
func (s *Store) Add(e Entity, id Entity) {
	if s.deferCount.Load() > 0 {
		s.queue.push(deferredOp{kind: opAdd, entity: e, id: id})
		return
	}

	s.addImmediate(e, id)
}

func (s *Store) addImmediate(e Entity, id Entity) {
	rec := s.index.mustGet(e)
	id = id.StripGeneration()

	trait := s.traitInfoFor(id)

	if trait != nil && trait.DontFragment {
		// never becomes part of a table type, so no migration either
		if _, created := trait.sparse.ensure(e); created {
			s.emitEntity(EntityEvent{Kind: OnAdd, Entity: e, Id: id})
		}

		return
	}

	table := rec.table
	if table == nil {
		table = s.root
	}

	dst, created := s.graph.nextWith(table, id)
	if created {
		s.emitTable(TableCreated, dst)
	}

	if dst == table {
		return
	}

	table.assertUnlocked()
	dst.assertUnlocked()

	if trait != nil && trait.Sparse {
		trait.sparse.ensure(e)
	}

	s.moveEntity(e, rec, dst)
	s.emitEntity(EntityEvent{Kind: OnAdd, Entity: e, Id: id})
}

// Remove detaches a component, tag or pair. Removing an id the entity does
// not have is a no-op.
func (s *Store) Remove(e Entity, id Entity) {
	if s.deferCount.Load() > 0 {
		s.queue.push(deferredOp{kind: opRemove, entity: e, id: id})
		return
	}

	s.removeImmediate(e, id)
}

func (s *Store) removeImmediate(e Entity, id Entity) {
	rec := s.index.mustGet(e)
	id = id.StripGeneration()

	trait := s.traitInfoFor(id)

	if trait != nil && trait.DontFragment {
		if trait.sparse.remove(e) {
			s.emitEntity(EntityEvent{Kind: OnRemove, Entity: e, Id: id})
		}

		return
	}

	table := rec.table
	if table == nil || !table.contains(id) {
		return
	}

	if trait != nil && trait.Sparse {
		trait.sparse.remove(e)
	}

	dst, created := s.graph.nextWithout(table, id)
	if created {
		s.emitTable(TableCreated, dst)
	}

	table.assertUnlocked()
	dst.assertUnlocked()

	s.moveEntity(e, rec, dst)
	s.emitEntity(EntityEvent{Kind: OnRemove, Entity: e, Id: id})
}

// moveEntity relocates the entity's row from its current table to dst.
// Columns present in both tables are matched by id, moved via the move
// hooks and dropped from the source without destruction; columns only in
// the source are destructed, columns only in dst default constructed.
func (s *Store) moveEntity(e Entity, rec *entityRecord, dst *Table) {
	src, srcRow := rec.table, rec.row

	dstRow := Row(len(dst.entities))
	dst.entities = append(dst.entities, e)
	dst.rows.Put(uint64(e.StripGeneration()), uint32(dstRow))
	dst.emptySince = 0

	for idx, column := range dst.columns {
		if column == nil {
			continue
		}

		if srcColumn := src.columnOf(dst.ids[idx]); srcColumn != nil {
			column.appendMovedFrom(srcColumn, srcRow)
		} else {
			column.appendDefault()
		}
	}

	movedOut := func(srcIdx int) bool {
		return dst.columnOf(src.ids[srcIdx]) != nil
	}

	if moved := src.removeRow(srcRow, movedOut); moved != 0 {
		movedRec := s.index.mustGet(moved)
		movedRec.row = srcRow
	}

	if len(src.entities) == 0 && src.emptySince == 0 {
		src.emptySince = s.sweepGen + 1
	}

	rec.table = dst
	rec.row = dstRow
}

// Set writes a component value, adding the component first when absent. The
// value may be given as T or *T and must match the registered type.
func (s *Store) Set(e Entity, id Entity, value any) {
	if s.deferCount.Load() > 0 {
		s.queue.push(deferredOp{kind: opSet, entity: e, id: id, value: s.capturedValue(id, value)})
		return
	}

	s.setImmediate(e, id, s.capturedValue(id, value))
}

// capturedValue copies the user value into an addressable slot of the
// registered type, validating the type along the way.
func (s *Store) capturedValue(id Entity, value any) reflect.Value {
	ti := s.dataInfoFor(id)
	if ti == nil {
		panic(fmt.Sprintf("cannot set a value for %s: no data type registered", s.DescribeId(id)))
	}

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr && v.Type().Elem() == ti.Type {
		v = v.Elem()
	}

	if v.Type() != ti.Type {
		panic(fmt.Sprintf("value of type %s does not match component %s", v.Type(), ti.Name))
	}

	captured := reflect.New(ti.Type).Elem()
	captured.Set(v)

	return captured
}

func (s *Store) setImmediate(e Entity, id Entity, captured reflect.Value) {
	id = id.StripGeneration()

	trait := s.traitInfoFor(id)
	ti := s.dataInfoFor(id)

	if trait != nil && trait.rowAddressed() {
		s.addImmediate(e, id)

		row, _ := trait.sparse.rows.Get(uint64(e.StripGeneration()))
		trait.sparse.column.set(Row(row), captured)
		s.emitEntity(EntityEvent{Kind: OnSet, Entity: e, Id: id})

		return
	}

	rec := s.index.mustGet(e)

	if rec.table == nil || !rec.table.contains(id) {
		s.addImmediate(e, id)
		rec = s.index.mustGet(e)
	}

	column := rec.table.columnOf(id)
	if column == nil {
		panic(fmt.Sprintf("component %s carries no data column", ti.Name))
	}

	column.set(rec.row, captured)
	s.emitEntity(EntityEvent{Kind: OnSet, Entity: e, Id: id})
}

// Get returns a pointer to the entity's value of the id, nil when absent.
// The pointer stays valid only until the next structural change.
func (s *Store) Get(e Entity, id Entity) unsafe.Pointer {
	id = id.StripGeneration()

	rec := s.index.get(e)
	if rec == nil {
		return nil
	}

	if trait := s.traitInfoFor(id); trait != nil && trait.rowAddressed() {
		ptr, _ := trait.sparse.ptrOf(e)
		return ptr
	}

	if rec.table == nil {
		return nil
	}

	column := rec.table.columnOf(id)
	if column == nil {
		return nil
	}

	return column.ptrTo(rec.row)
}

// GetValue is Get through reflection, mainly for tests and tooling.
func (s *Store) GetValue(e Entity, id Entity) (reflect.Value, bool) {
	id = id.StripGeneration()

	rec := s.index.get(e)
	if rec == nil {
		return reflect.Value{}, false
	}

	if trait := s.traitInfoFor(id); trait != nil && trait.rowAddressed() {
		return trait.sparse.valueOf(e)
	}

	if rec.table == nil {
		return reflect.Value{}, false
	}

	column := rec.table.columnOf(id)
	if column == nil {
		return reflect.Value{}, false
	}

	return column.valueAt(rec.row), true
}

// Has reports whether the entity owns the id. Pair patterns with wildcards
// are matched against the whole id set.
func (s *Store) Has(e Entity, id Entity) bool {
	id = id.StripGeneration()

	rec := s.index.get(e)
	if rec == nil {
		return false
	}

	if trait := s.traitInfoFor(id); trait != nil && trait.DontFragment {
		return trait.sparse.has(e)
	}

	if rec.table == nil {
		return false
	}

	if !id.IsWildcard() {
		return rec.table.contains(id)
	}

	return len(rec.table.matchIndices(id, nil)) > 0
}

// Destruct tears down all components of the entity and recycles its id with
// a bumped generation.
func (s *Store) Destruct(e Entity) {
	if s.deferCount.Load() > 0 {
		s.queue.push(deferredOp{kind: opDestruct, entity: e})
		return
	}

	s.destructImmediate(e)
}

func (s *Store) destructImmediate(e Entity) {
	rec := s.index.mustGet(e)

	for _, ti := range s.sparseInfos {
		if ti.sparse.remove(e) {
			s.emitEntity(EntityEvent{Kind: OnRemove, Entity: e, Id: ti.Id})
		}
	}

	if table := rec.table; table != nil {
		table.assertUnlocked()

		for _, id := range table.ids {
			s.emitEntity(EntityEvent{Kind: OnRemove, Entity: e, Id: id})
		}

		if moved := table.removeRow(rec.row, nil); moved != 0 {
			movedRec := s.index.mustGet(moved)
			movedRec.row = rec.row
		}

		if len(table.entities) == 0 && table.emptySince == 0 {
			table.emptySince = s.sweepGen + 1
		}
	}

	s.index.release(e)
}

// lockTable pins a table against structural changes for the duration of an
// iteration batch. Mutations issued meanwhile are deferred.
func (s *Store) lockTable(t *Table) {
	t.locks.Add(1)
	s.DeferBegin()
}

func (s *Store) unlockTable(t *Table) {
	if t.locks.Add(-1) < 0 {
		panic(fmt.Sprintf("%s unlocked without being locked", t))
	}

	s.DeferEnd()
}
