package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lansync/lansyncd/internal/entrymgr"
	"github.com/lansync/lansyncd/internal/registry"
)

// Named channel capacities from spec.md §5, the recommended resource model
// for cooperative goroutines communicating over bounded channels.
const (
	controlChanCap    = 100
	transferChanCap   = 16
	senderOutboundCap = 100
)

// maxSendAttempts is the bounded-retry budget for a single outbound send
// before the destination peer is evicted from the registry.
const maxSendAttempts = 3

const dialTimeout = 10 * time.Second

// Dialer opens an outbound connection to a peer. Production code uses
// netDialer; tests inject an in-memory fake.
type Dialer interface {
	DialContext(ctx context.Context, addr netip.AddrPort) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialContext(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}

	return d.DialContext(ctx, "tcp", addr.String())
}

// NewDialer returns the production TCP dialer.
func NewDialer() Dialer {
	return netDialer{}
}

type outboundItem struct {
	kind      Kind
	target    netip.AddrPort
	record    *entrymgr.Record
	localPath string
}

// Sender demultiplexes a single outbound work channel into a control
// channel and a transfer channel so a large file transfer never
// head-of-line-blocks small control messages, then drives one worker per
// channel. All sends are wrapped in a bounded retry that evicts a peer
// from the registry after exhausting its attempts.
type Sender struct {
	localID    uuid.UUID
	hostname   string
	instanceID uuid.UUID

	manager  *entrymgr.Manager
	registry *registry.Registry
	dialer   Dialer
	logger   *slog.Logger

	outbound chan outboundItem
	control  chan outboundItem
	transfer chan outboundItem
}

// NewSender constructs a Sender. hostname and instanceID are included in
// every handshake payload this peer sends.
func NewSender(localID uuid.UUID, hostname string, instanceID uuid.UUID, manager *entrymgr.Manager, reg *registry.Registry, dialer Dialer, logger *slog.Logger) *Sender {
	return &Sender{
		localID:    localID,
		hostname:   hostname,
		instanceID: instanceID,
		manager:    manager,
		registry:   reg,
		dialer:     dialer,
		logger:     logger,
		outbound:   make(chan outboundItem, senderOutboundCap),
		control:    make(chan outboundItem, controlChanCap),
		transfer:   make(chan outboundItem, transferChanCap),
	}
}

// Run drives the demux and the two worker loops until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.demux(gctx) })
	g.Go(func() error { return s.controlWorker(gctx) })
	g.Go(func() error { return s.transferWorker(gctx) })

	return g.Wait()
}

func (s *Sender) demux(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-s.outbound:
			dest := s.control
			if item.kind == KindTransfer {
				dest = s.transfer
			}

			select {
			case dest <- item:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Sender) controlWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-s.control:
			s.dispatch(ctx, item)
		}
	}
}

func (s *Sender) transferWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-s.transfer:
			s.dispatch(ctx, item)
		}
	}
}

func (s *Sender) dispatch(ctx context.Context, item outboundItem) {
	frame, err := s.buildFrame(ctx, item)
	if err != nil {
		s.logger.Warn("transport: dropping outbound item, could not build frame",
			slog.String("kind", item.kind.String()), slog.Any("error", err))

		return
	}

	if frame == nil {
		return // silently dropped, e.g. a vanished transfer source file
	}

	if err := s.sendWithRetry(ctx, item.target, *frame); err != nil {
		s.logger.Warn("transport: send failed",
			slog.String("kind", item.kind.String()),
			slog.String("target", item.target.String()),
			slog.Any("error", err))
	}
}

func (s *Sender) buildFrame(ctx context.Context, item outboundItem) (*Frame, error) {
	switch item.kind {
	case KindHandshakeSyn, KindHandshakeAck:
		return s.handshakeFrame(ctx, item.kind)
	case KindMetadata, KindRequest:
		body, err := json.Marshal(item.record)
		if err != nil {
			return nil, fmt.Errorf("marshaling record: %w", err)
		}

		return &Frame{SenderID: s.localID, Kind: item.kind, JSON: body}, nil
	case KindTransfer:
		return s.transferFrame(item)
	default:
		return nil, fmt.Errorf("unknown outbound kind %d", item.kind)
	}
}

func (s *Sender) handshakeFrame(ctx context.Context, kind Kind) (*Frame, error) {
	payload, err := s.manager.GetHandshakeData(ctx, s.hostname, s.instanceID)
	if err != nil {
		return nil, fmt.Errorf("building handshake payload: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling handshake payload: %w", err)
	}

	return &Frame{SenderID: s.localID, Kind: kind, JSON: body}, nil
}

// transferFrame resolves the local path for item and reads its content.
// If the file no longer exists or is not a regular file, the transfer is
// dropped silently — the file may have been deleted between request and
// transfer, a legitimate race.
func (s *Sender) transferFrame(item outboundItem) (*Frame, error) {
	info, err := os.Stat(item.localPath)
	if err != nil || !info.Mode().IsRegular() {
		s.logger.Debug("transport: transfer source vanished, dropping", slog.String("path", item.localPath))

		return nil, nil
	}

	content, err := os.ReadFile(item.localPath)
	if err != nil {
		s.logger.Debug("transport: transfer source unreadable, dropping", slog.String("path", item.localPath), slog.Any("error", err))

		return nil, nil
	}

	body, err := json.Marshal(item.record)
	if err != nil {
		return nil, fmt.Errorf("marshaling transfer record: %w", err)
	}

	return &Frame{SenderID: s.localID, Kind: KindTransfer, JSON: body, Payload: content}, nil
}

// sendWithRetry tries up to maxSendAttempts times. On each failure it
// checks whether the destination is still present in the registry; if
// not, the peer disconnected mid-operation and the send is abandoned
// immediately. After exhausting all attempts against a still-present
// peer, the peer is evicted from the registry.
func (s *Sender) sendWithRetry(ctx context.Context, target netip.AddrPort, frame Frame) error {
	var lastErr error

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := s.sendOnce(ctx, target, frame); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if !s.registry.ExistsByAddr(target) {
			return fmt.Errorf("peer %s no longer present, abandoning send: %w", target, lastErr)
		}
	}

	s.registry.RemoveByAddr(target)

	return fmt.Errorf("giving up on peer %s after %d attempts: %w", target, maxSendAttempts, lastErr)
}

func (s *Sender) sendOnce(ctx context.Context, target netip.AddrPort, frame Frame) error {
	conn, err := s.dialer.DialContext(ctx, target)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", target, err)
	}
	defer conn.Close()

	return WriteFrame(conn, frame)
}

// EnqueueHandshake places a Syn or Ack for target on the outbound queue.
func (s *Sender) EnqueueHandshake(target netip.AddrPort, isSyn bool) {
	kind := KindHandshakeAck
	if isSyn {
		kind = KindHandshakeSyn
	}

	s.enqueue(outboundItem{kind: kind, target: target})
}

// SendAckNow writes an Ack to target immediately, bypassing the outbound
// queue entirely. Used when responding to a Syn, since the Ack must reach
// the peer strictly before any other outbound traffic so the peer's
// handshake state machine observes events in order.
func (s *Sender) SendAckNow(ctx context.Context, target netip.AddrPort) error {
	frame, err := s.handshakeFrame(ctx, KindHandshakeAck)
	if err != nil {
		return err
	}

	return s.sendWithRetry(ctx, target, *frame)
}

// EnqueueMetadata resolves the recipient set from the peer registry
// (peers whose sync-dir set contains the entry's first path component)
// and enqueues one Metadata send per recipient.
func (s *Sender) EnqueueMetadata(rec entrymgr.Record) {
	for _, addr := range s.registry.PeersForMetadataOf(firstComponent(rec.Name)) {
		recCopy := rec
		s.enqueue(outboundItem{kind: KindMetadata, target: addr, record: &recCopy})
	}
}

// EnqueueRequest asks target to transfer rec's bytes.
func (s *Sender) EnqueueRequest(target netip.AddrPort, rec entrymgr.Record) {
	s.enqueue(outboundItem{kind: KindRequest, target: target, record: &rec})
}

// EnqueueTransfer sends rec's content, read from localPath, to target.
func (s *Sender) EnqueueTransfer(target netip.AddrPort, rec entrymgr.Record, localPath string) {
	s.enqueue(outboundItem{kind: KindTransfer, target: target, record: &rec, localPath: localPath})
}

func (s *Sender) enqueue(item outboundItem) {
	select {
	case s.outbound <- item:
	default:
		s.logger.Warn("transport: outbound queue full, dropping item", slog.String("kind", item.kind.String()))
	}
}

func firstComponent(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[:i]
		}
	}

	return name
}
