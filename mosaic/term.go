package mosaic

import (
	"fmt"
)

// InOutKind is the declared access mode of a term. It decides which side of
// the aliasing detector an iterator takes for the term's field.
type InOutKind uint8

const (
	// InOutDefault resolves to InOut for self sources and In for shared
	// sources.
	InOutDefault InOutKind = iota

	// InOutNone matches without granting data access; no lock is taken.
	InOutNone

	InOut
	In
	Out
)

func (k InOutKind) String() string {
	switch k {
	case InOutNone:
		return "none"
	case InOut:
		return "inout"
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return "default"
	}
}

// OperKind is the matching operator of a term.
type OperKind uint8

const (
	// OpAnd requires the id to be present.
	OpAnd OperKind = iota

	// OpOr chains this term with the next one; at least one member of the
	// chain must match. All members share one field.
	OpOr

	// OpNot requires the id to be absent.
	OpNot

	// OpOptional never excludes a result but may yield an absent field.
	OpOptional

	// OpAndFrom requires all ids of the referenced type list entity.
	OpAndFrom

	// OpOrFrom requires at least one id of the referenced type list.
	OpOrFrom

	// OpNotFrom requires none of the ids of the referenced type list.
	OpNotFrom
)

func (k OperKind) isNegation() bool {
	return k == OpNot || k == OpNotFrom
}

func (k OperKind) isFrom() bool {
	return k == OpAndFrom || k == OpOrFrom || k == OpNotFrom
}

// TravFlags select how a term looks beyond the entity's own table.
type TravFlags uint8

const (
	// TravSelf matches against the entity's own table.
	TravSelf TravFlags = 1 << iota

	// TravUp matches against ancestors reachable through the traversal
	// relationship.
	TravUp

	// TravCascade orders results by hierarchy depth, parents first.
	TravCascade

	// TravDesc reverses the cascade order.
	TravDesc
)

// TermRef names one half of a pair pattern: either a concrete entity or a
// query variable.
type TermRef struct {
	Entity Entity
	Var    string
}

func (r TermRef) isSet() bool {
	return r.Entity != 0 || r.Var != ""
}

// TermSrc is the source specifier of a term: the iterated entity (zero
// value), a fixed entity, or a variable bound elsewhere in the query.
type TermSrc struct {
	Entity Entity
	Var    string

	// Flags default to self, or self|up(IsA) for inheritable components.
	Flags TravFlags

	// Trav is the relationship used by up traversal, ChildOf when zero.
	Trav Entity
}

func (s TermSrc) isThis() bool {
	return s.Entity == 0 && s.Var == ""
}

// Term is one condition of a query.
type Term struct {
	// Id is the subject: a component id, a pair (possibly with wildcard
	// halves), Wildcard or Any. For *From operators it names the type
	// list entity instead.
	Id Entity

	// First and Second optionally override the pair halves, mainly to
	// introduce variables. When set they take precedence over Id.
	First  TermRef
	Second TermRef

	Src   TermSrc
	Oper  OperKind
	InOut InOutKind

	// field is the result slot shared by Or chain members, assigned at
	// build time.
	field int
}

// finalize fills in defaults and normalizes the id against the store's
// registration records.
func (t *Term) finalize(s *Store, pos int) error {
	if t.First.isSet() || t.Second.isSet() {
		first := t.First.Entity
		if t.First.Var != "" {
			first = Wildcard
		}

		second := t.Second.Entity
		if t.Second.Var != "" {
			second = Wildcard
		}

		if first == 0 {
			if !t.Id.IsPair() {
				return fmt.Errorf("term %d: second ref set without a relationship", pos)
			}

			first = t.Id.First()
		}

		if second == 0 && t.Id.IsPair() {
			second = t.Id.Second()
		}

		if second == 0 {
			t.Id = first.StripGeneration()
		} else {
			t.Id = MakePair(first, second)
		}
	}

	if t.Id == 0 {
		return fmt.Errorf("term %d: missing id", pos)
	}

	t.Id = t.Id.StripGeneration()

	if t.Oper.isFrom() {
		if t.Id.IsPair() || t.Id.IsWildcard() {
			return fmt.Errorf("term %d: type list operator needs a plain entity id", pos)
		}

		if t.InOut == InOutDefault {
			t.InOut = InOutNone
		}
	}

	if t.Oper.isNegation() && t.InOut == InOutDefault {
		t.InOut = InOutNone
	}

	if t.Src.Flags&(TravCascade|TravDesc) != 0 {
		t.Src.Flags |= TravUp
	}

	if t.Src.Flags == 0 {
		t.Src.Flags = TravSelf

		// inheritable components transparently match subclasses
		if trait := s.traitInfoFor(t.Id); trait != nil && trait.Inheritable {
			t.Src.Flags |= TravUp
			if t.Src.Trav == 0 {
				t.Src.Trav = IsA
			}
		}
	}

	if t.Src.Flags&TravUp != 0 && t.Src.Trav == 0 {
		t.Src.Trav = ChildOf
	}

	return nil
}

// Field returns the result slot assigned to this term at build time.
// Members of one or-chain share a field.
func (t Term) Field() int {
	return t.field
}

// effectiveInOut resolves InOutDefault against the term's source kind.
func (t *Term) effectiveInOut(shared bool) InOutKind {
	if t.InOut != InOutDefault {
		return t.InOut
	}

	if shared {
		return In
	}

	return InOut
}
