package mosaic

import "reflect"

type deferredOpKind uint8

const (
	opCreate deferredOpKind = iota
	opAdd
	opRemove
	opSet
	opDestruct
)

type deferredOp struct {
	kind   deferredOpKind
	entity Entity
	id     Entity
	value  reflect.Value
}

type commandQueue struct {
	ops []deferredOp
}

func (q *commandQueue) push(op deferredOp) {
	q.ops = append(q.ops, op)
}

func (q *commandQueue) len() int {
	return len(q.ops)
}

// DeferBegin opens a defer scope. While at least one scope is open,
// structural changes queue up instead of running; iteration opens a scope
// per batch so mutating the table being walked never invalidates the
// cursor.
func (s *Store) DeferBegin() {
	s.deferCount.Add(1)
}

// DeferEnd closes the innermost scope. Closing the last scope replays all
// queued commands in submission order.
func (s *Store) DeferEnd() {
	remaining := s.deferCount.Add(-1)
	if remaining < 0 {
		panic("DeferEnd without matching DeferBegin")
	}

	if remaining > 0 {
		return
	}

	s.flush(&s.queue)
}

// Deferred reports whether a defer scope is currently open.
func (s *Store) Deferred() bool {
	return s.deferCount.Load() > 0
}

// Defer runs fn inside a defer scope.
func (s *Store) Defer(fn func()) {
	s.DeferBegin()
	defer s.DeferEnd()

	fn()
}

// flush replays a queue of commands against the store. Commands against
// entities that died in the meantime are dropped. Commands issued during
// the replay (e.g. by observers) append to the same queue and run in turn;
// nested defer scopes opened during the replay must not restart it.
func (s *Store) flush(q *commandQueue) {
	if !s.flushing.CompareAndSwap(false, true) {
		return
	}
	defer s.flushing.Store(false)

	for idx := 0; idx < len(q.ops); idx++ {
		op := q.ops[idx]

		switch op.kind {
		case opCreate:
			if s.index.isAlive(op.entity) {
				s.placeInRoot(op.entity)
			}

		case opAdd:
			if s.index.isAlive(op.entity) {
				s.addImmediate(op.entity, op.id)
			}

		case opRemove:
			if s.index.isAlive(op.entity) {
				s.removeImmediate(op.entity, op.id)
			}

		case opSet:
			if s.index.isAlive(op.entity) {
				s.setImmediate(op.entity, op.id, op.value)
			}

		case opDestruct:
			if s.index.isAlive(op.entity) {
				s.destructImmediate(op.entity)
			}
		}
	}

	q.ops = q.ops[:0]
}

// Commands is a standalone deferred mutation buffer, the building block of
// per-thread stages: workers record structural changes concurrently with
// reads and a single merge point replays them under exclusive access.
type Commands struct {
	store *Store
	queue commandQueue
}

func NewCommands(store *Store) *Commands {
	return &Commands{store: store}
}

// Create reserves an entity id now; the entity joins the root table when
// the buffer merges. Reservation is safe to call from concurrent workers.
func (c *Commands) Create() Entity {
	e := c.store.reserve()
	c.queue.push(deferredOp{kind: opCreate, entity: e})

	return e
}

func (c *Commands) Add(e Entity, id Entity) {
	c.queue.push(deferredOp{kind: opAdd, entity: e, id: id})
}

func (c *Commands) Remove(e Entity, id Entity) {
	c.queue.push(deferredOp{kind: opRemove, entity: e, id: id})
}

func (c *Commands) Set(e Entity, id Entity, value any) {
	c.queue.push(deferredOp{kind: opSet, entity: e, id: id, value: c.store.capturedValue(id, value)})
}

func (c *Commands) Destruct(e Entity) {
	c.queue.push(deferredOp{kind: opDestruct, entity: e})
}

func (c *Commands) Len() int {
	return c.queue.len()
}

// Merge replays the buffered commands. Must run with exclusive access to
// the store, never concurrently with reads.
func (c *Commands) Merge() {
	c.store.flush(&c.queue)
}
