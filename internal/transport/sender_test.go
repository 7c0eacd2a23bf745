package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansync/lansyncd/internal/entrymgr"
	"github.com/lansync/lansyncd/internal/registry"
	"github.com/lansync/lansyncd/internal/store"
)

const (
	pollTimeout  = 2 * time.Second
	pollInterval = 10 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeDialer hands out one side of a net.Pipe and keeps the other side for
// the test to read from, regardless of the requested address.
type pipeDialer struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (d *pipeDialer) DialContext(_ context.Context, _ netip.AddrPort) (net.Conn, error) {
	client, server := net.Pipe()

	d.mu.Lock()
	d.conns = append(d.conns, server)
	d.mu.Unlock()

	return client, nil
}

// failDialer always fails, used to exercise the retry-then-evict path.
type failDialer struct{}

func (failDialer) DialContext(context.Context, netip.AddrPort) (net.Conn, error) {
	return nil, errors.New("dial refused")
}

func newTestSender(t *testing.T, dialer Dialer) (*Sender, *registry.Registry) {
	t.Helper()

	st := store.NewMemStore()
	localID := uuid.New()
	mgr := entrymgr.NewManager(st, localID, t.TempDir(), nil, discardLogger())
	reg := registry.New(discardLogger())

	s := NewSender(localID, "test-host", uuid.New(), mgr, reg, dialer, discardLogger())

	return s, reg
}

func TestSender_EnqueueHandshake_DeliversSynFrame(t *testing.T) {
	dialer := &pipeDialer{}
	s, _ := newTestSender(t, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	target := netip.MustParseAddrPort("127.0.0.1:9000")
	s.EnqueueHandshake(target, true)

	var frame Frame

	require.Eventually(t, func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()

		if len(dialer.conns) == 0 {
			return false
		}

		f, err := ReadFrame(dialer.conns[0])
		if err != nil {
			return false
		}

		frame = f

		return true
	}, pollTimeout, pollInterval)

	assert.Equal(t, KindHandshakeSyn, frame.Kind)
}

func TestSender_RetryExhaustion_EvictsPeer(t *testing.T) {
	s, reg := newTestSender(t, failDialer{})

	target := netip.MustParseAddrPort("127.0.0.1:9001")
	reg.Insert(registry.Peer{ID: uuid.New(), Addr: target, SyncDirs: map[string]struct{}{}})

	ctx := context.Background()
	frame := Frame{SenderID: s.localID, Kind: KindHandshakeSyn}

	err := s.sendWithRetry(ctx, target, frame)
	require.Error(t, err)
	assert.False(t, reg.ExistsByAddr(target), "peer should be evicted after exhausting retries")
}

func TestSender_RetryAbandonsWhenPeerAlreadyGone(t *testing.T) {
	s, _ := newTestSender(t, failDialer{})

	target := netip.MustParseAddrPort("127.0.0.1:9002")

	ctx := context.Background()
	frame := Frame{SenderID: s.localID, Kind: KindHandshakeSyn}

	err := s.sendWithRetry(ctx, target, frame)
	assert.ErrorContains(t, err, "no longer present")
}

func TestSender_EnqueueMetadata_FansOutToMatchingPeersOnly(t *testing.T) {
	dialer := &pipeDialer{}
	s, reg := newTestSender(t, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	matching := netip.MustParseAddrPort("127.0.0.1:9010")
	other := netip.MustParseAddrPort("127.0.0.1:9011")

	reg.Insert(registry.Peer{ID: uuid.New(), Addr: matching, SyncDirs: map[string]struct{}{"shared": {}}})
	reg.Insert(registry.Peer{ID: uuid.New(), Addr: other, SyncDirs: map[string]struct{}{"other": {}}})

	s.EnqueueMetadata(entrymgr.Record{Name: "shared/report.txt", Kind: entrymgr.KindFile})

	require.Eventually(t, func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()

		return len(dialer.conns) == 1
	}, pollTimeout, pollInterval)
}
