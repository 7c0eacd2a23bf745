package version

import (
	"testing"
	"testing/quick"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	peerA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	peerB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func TestCompare_Equal(t *testing.T) {
	v := Vector{peerA: 3, peerB: 1}
	assert.Equal(t, Equal, Compare(v, Clone(v)))
}

func TestCompare_KeepSelfWhenLocalDominates(t *testing.T) {
	local := Vector{peerA: 3, peerB: 1}
	incoming := Vector{peerA: 2, peerB: 1}
	assert.Equal(t, KeepSelf, Compare(local, incoming))
	assert.Equal(t, KeepOther, Compare(incoming, local))
}

func TestCompare_ConflictOnIndependentAdvances(t *testing.T) {
	local := Vector{peerA: 3, peerB: 0}
	incoming := Vector{peerA: 2, peerB: 1}
	assert.Equal(t, Conflict, Compare(local, incoming))
	assert.Equal(t, Conflict, Compare(incoming, local))
}

func TestCompare_MissingKeysTreatedAsZero(t *testing.T) {
	local := Vector{peerA: 1}
	incoming := Vector{peerA: 1, peerB: 1}
	assert.Equal(t, KeepOther, Compare(local, incoming))
}

func TestMerge_IsElementwiseMax(t *testing.T) {
	a := Vector{peerA: 3, peerB: 1}
	b := Vector{peerA: 1, peerB: 5}

	merged := Merge(a, b)
	assert.Equal(t, Vector{peerA: 3, peerB: 5}, merged)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := Vector{peerA: 1}
	b := Vector{peerA: 2}

	_ = Merge(a, b)

	assert.Equal(t, Vector{peerA: 1}, a)
	assert.Equal(t, Vector{peerA: 2}, b)
}

func TestIncrement_AdvancesOnlyGivenPeer(t *testing.T) {
	v := Vector{peerA: 1, peerB: 4}

	next := Increment(v, peerA)
	assert.Equal(t, uint64(2), next[peerA])
	assert.Equal(t, uint64(4), next[peerB])
	assert.Equal(t, uint64(1), v[peerA], "original must be unchanged")
}

func randomVector(t *testing.T) func([]uuid.UUID, []uint8) Vector {
	t.Helper()

	return func(peers []uuid.UUID, counters []uint8) Vector {
		v := Vector{}
		for i, p := range peers {
			if i < len(counters) {
				v[p] = uint64(counters[i])
			}
		}

		return v
	}
}

// TestMerge_Commutative checks Merge(a, b) == Merge(b, a) across randomized
// vectors, the property the convergence guarantee depends on.
func TestMerge_Commutative(t *testing.T) {
	build := randomVector(t)

	f := func(peers []uuid.UUID, ca, cb []uint8) bool {
		a := build(peers, ca)
		b := build(peers, cb)

		return mapsEqual(Merge(a, b), Merge(b, a))
	}

	require.NoError(t, quick.Check(f, nil))
}

// TestMerge_Associative checks Merge(Merge(a,b),c) == Merge(a,Merge(b,c)),
// so peers merging updates in any arrival order converge identically.
func TestMerge_Associative(t *testing.T) {
	build := randomVector(t)

	f := func(peers []uuid.UUID, ca, cb, cc []uint8) bool {
		a := build(peers, ca)
		b := build(peers, cb)
		c := build(peers, cc)

		left := Merge(Merge(a, b), c)
		right := Merge(a, Merge(b, c))

		return mapsEqual(left, right)
	}

	require.NoError(t, quick.Check(f, nil))
}

func mapsEqual(a, b Vector) bool {
	if len(a) != len(b) {
		return false
	}

	for k, v := range a {
		if b[k] != v {
			return false
		}
	}

	return true
}
