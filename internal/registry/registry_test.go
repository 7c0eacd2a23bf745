package registry

import (
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInsertAndGet(t *testing.T) {
	r := New(discardLogger())

	id := uuid.New()
	addr := netip.MustParseAddrPort("10.0.0.5:9000")
	r.Insert(Peer{ID: id, Addr: addr, SyncDirs: map[string]struct{}{"shared": {}}})

	peer, ok := r.Get(id)
	assert.True(t, ok)
	assert.Equal(t, addr, peer.Addr)
}

func TestRemoveByID(t *testing.T) {
	r := New(discardLogger())
	id := uuid.New()

	r.Insert(Peer{ID: id})
	r.RemoveByID(id)

	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestRemoveByAddr(t *testing.T) {
	r := New(discardLogger())
	id := uuid.New()
	addr := netip.MustParseAddrPort("10.0.0.5:9000")

	r.Insert(Peer{ID: id, Addr: addr})
	r.RemoveByAddr(addr)

	assert.False(t, r.ExistsByAddr(addr))
}

func TestExistsByAddr(t *testing.T) {
	r := New(discardLogger())
	addr := netip.MustParseAddrPort("10.0.0.5:9000")

	assert.False(t, r.ExistsByAddr(addr))

	r.Insert(Peer{ID: uuid.New(), Addr: addr})
	assert.True(t, r.ExistsByAddr(addr))
}

func TestPeersForMetadataOf(t *testing.T) {
	r := New(discardLogger())

	a := netip.MustParseAddrPort("10.0.0.1:9000")
	b := netip.MustParseAddrPort("10.0.0.2:9000")

	r.Insert(Peer{ID: uuid.New(), Addr: a, SyncDirs: map[string]struct{}{"shared": {}}})
	r.Insert(Peer{ID: uuid.New(), Addr: b, SyncDirs: map[string]struct{}{"photos": {}}})

	addrs := r.PeersForMetadataOf("shared")
	assert.Equal(t, []netip.AddrPort{a}, addrs)
}

func TestList_ReturnsSnapshot(t *testing.T) {
	r := New(discardLogger())
	r.Insert(Peer{ID: uuid.New()})
	r.Insert(Peer{ID: uuid.New()})

	assert.Len(t, r.List(), 2)
}
