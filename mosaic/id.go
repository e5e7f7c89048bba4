package mosaic

import (
	"fmt"
	"strconv"
)

// Entity is a 64 bit identifier. The low 32 bits hold the index, bits 32-47
// hold the generation and the top nibble is reserved for id flags. Component
// ids, pair ids and plain entity ids all share this representation.
type Entity uint64

type Row uint32

const (
	// FlagPair marks an id as a (relationship, target) pair.
	FlagPair Entity = 1 << 63

	// FlagAutoOverride marks a component id as auto-overridden on instantiation.
	FlagAutoOverride Entity = 1 << 62

	// FlagToggle marks a component id as toggleable.
	FlagToggle Entity = 1 << 61

	// FlagAnd marks an id inside a type list as an and-expansion.
	FlagAnd Entity = 1 << 60

	flagMask Entity = 0xF << 60

	entityMask     Entity = 0xFFFFFFFF
	generationMask Entity = 0xFFFF << 32

	// componentMask selects everything that identifies an id once flags are
	// stripped: for pairs both halves, for plain ids index plus generation.
	componentMask = ^flagMask
)

// Builtin ids live in a low reserved range so they get the same value in
// every store.
const (
	// Wildcard matches any id; one result per matching instance.
	Wildcard Entity = 1

	// Any matches any id but collapses to at most one result per entity.
	Any Entity = 2

	// ChildOf is the builtin hierarchy relationship used as default
	// traversal target.
	ChildOf Entity = 3

	// IsA is the builtin inheritance relationship.
	IsA Entity = 4

	firstUserId Entity = 16
)

// MakePair packs a relationship and a target into a single pair id. The
// generation of both halves is stripped; pair ids are matched on index only.
func MakePair(rel, target Entity) Entity {
	return FlagPair | (rel&entityMask)<<32 | target&entityMask
}

// IsPair reports whether the pair flag is set on this id.
func (e Entity) IsPair() bool {
	return e&FlagPair != 0
}

// IsWildcard reports whether the id is Wildcard or Any, or a pair with a
// wildcard in either position.
func (e Entity) IsWildcard() bool {
	if e == Wildcard || e == Any {
		return true
	}

	if e.IsPair() {
		first, second := e.First(), e.Second()
		return first == Wildcard || first == Any || second == Wildcard || second == Any
	}

	return false
}

// First returns the relationship half of a pair id.
func (e Entity) First() Entity {
	return (e >> 32) & entityMask
}

// Second returns the target half of a pair id, without generation.
func (e Entity) Second() Entity {
	return e & entityMask
}

// Index returns the numeric slot of a plain entity id.
func (e Entity) Index() uint32 {
	return uint32(e & entityMask)
}

// Generation returns the generation count of a plain entity id.
func (e Entity) Generation() uint16 {
	return uint16((e & generationMask) >> 32)
}

// StripGeneration removes the generation bits, keeping index and flags.
func (e Entity) StripGeneration() Entity {
	if e.IsPair() {
		return e
	}

	return e &^ generationMask
}

func (e Entity) withGeneration(gen uint16) Entity {
	return e.StripGeneration() | Entity(gen)<<32
}

func (e Entity) String() string {
	if e.IsPair() {
		return fmt.Sprintf("(%d, %d)", uint64(e.First()), uint64(e.Second()))
	}

	if gen := e.Generation(); gen != 0 {
		return fmt.Sprintf("%d'g%d", e.Index(), gen)
	}

	return strconv.FormatUint(uint64(e&^flagMask), 10)
}

// MatchesPattern reports whether the concrete id matches the possibly
// wildcard pattern.
func MatchesPattern(id, pattern Entity) bool {
	return matchesId(id.StripGeneration(), pattern.StripGeneration())
}

// matchesId reports whether the concrete id matches the possibly-wildcard
// pattern. Concrete ids never carry generations here, pattern and id must
// both be generation-stripped.
func matchesId(id, pattern Entity) bool {
	if pattern == Wildcard || pattern == Any {
		return true
	}

	if pattern.IsPair() != id.IsPair() {
		return false
	}

	if !pattern.IsPair() {
		return id == pattern
	}

	pf, ps := pattern.First(), pattern.Second()
	if pf != Wildcard && pf != Any && pf != id.First() {
		return false
	}

	if ps != Wildcard && ps != Any && ps != id.Second() {
		return false
	}

	return true
}
