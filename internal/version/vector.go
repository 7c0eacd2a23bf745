// Package version implements version vectors, the conflict-free ordering
// primitive every entry's metadata carries. A vector maps each peer that has
// ever touched an entry to the counter value it last wrote, which makes
// merges commutative and associative regardless of the order peers observe
// each other's updates in.
package version

import (
	"maps"

	"github.com/google/uuid"
)

// Vector maps a peer's UUID to the counter it last assigned an entry. A nil
// or empty Vector represents an entry no peer has touched yet.
type Vector map[uuid.UUID]uint64

// Comparison describes the partial-order relationship between two vectors,
// as seen from the perspective of the local entry versus an incoming one.
type Comparison int

const (
	// Equal means the two vectors are identical; no action is required.
	Equal Comparison = iota
	// KeepSelf means the local vector dominates; the incoming entry is stale.
	KeepSelf
	// KeepOther means the incoming vector dominates; the local entry is stale.
	KeepOther
	// Conflict means neither vector dominates; both sides advanced
	// independently and a conflict resolution policy must decide.
	Conflict
)

func (c Comparison) String() string {
	switch c {
	case Equal:
		return "Equal"
	case KeepSelf:
		return "KeepSelf"
	case KeepOther:
		return "KeepOther"
	case Conflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Clone returns a deep copy of v, safe to mutate independently.
func Clone(v Vector) Vector {
	if v == nil {
		return Vector{}
	}

	return maps.Clone(v)
}

// Increment returns a copy of v with peer's counter advanced by one. Used
// whenever the local peer produces a new version of an entry it owns.
func Increment(v Vector, peer uuid.UUID) Vector {
	out := Clone(v)
	out[peer] = out[peer] + 1

	return out
}

// Merge returns the element-wise maximum of a and b: for every peer present
// in either vector, the result carries the larger of the two counters. Merge
// is commutative and associative, so repeated merges from any arrival order
// converge to the same result.
func Merge(a, b Vector) Vector {
	out := make(Vector, len(a)+len(b))

	for peer, counter := range a {
		out[peer] = counter
	}

	for peer, counter := range b {
		if existing, ok := out[peer]; !ok || counter > existing {
			out[peer] = counter
		}
	}

	return out
}

// Compare classifies the relationship of a (local) to b (incoming). The
// result answers "what should the local side do", not an abstract ordering:
// KeepSelf means a already dominates b, KeepOther means b dominates a.
func Compare(a, b Vector) Comparison {
	aDominates, bDominates := false, false

	for peer, aCounter := range a {
		bCounter := b[peer]
		if aCounter > bCounter {
			aDominates = true
		} else if aCounter < bCounter {
			bDominates = true
		}
	}

	for peer, bCounter := range b {
		if _, seen := a[peer]; seen {
			continue
		}

		if bCounter > 0 {
			bDominates = true
		}
	}

	switch {
	case aDominates && bDominates:
		return Conflict
	case aDominates:
		return KeepSelf
	case bDominates:
		return KeepOther
	default:
		return Equal
	}
}
