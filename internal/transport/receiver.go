package transport

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lansync/lansyncd/internal/entrymgr"
	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/registry"
	"github.com/lansync/lansyncd/internal/version"
)

// inboundFrame pairs a decoded frame with the address it arrived from, so
// the control and transfer consumers can reply to the right peer.
type inboundFrame struct {
	frame Frame
	from  netip.AddrPort
}

// Receiver accepts one connection per frame, decodes it, and routes it onto
// a control channel or a transfer channel so a large incoming file never
// delays handshake and metadata traffic. It owns the handshake state
// machine and drives the local entry manager in response to Metadata,
// Request, and Transfer frames.
type Receiver struct {
	localID  uuid.UUID
	homePath string

	manager  *entrymgr.Manager
	registry *registry.Registry
	sender   *Sender
	logger   *slog.Logger

	handshakes *handshakeTracker

	control  chan inboundFrame
	transfer chan inboundFrame
}

// NewReceiver constructs a Receiver. sender is used to reply to Syn with an
// Ack, to request entries the local side is missing once a handshake
// completes, and to rebroadcast Metadata after an incoming transfer lands.
func NewReceiver(localID uuid.UUID, homePath string, manager *entrymgr.Manager, reg *registry.Registry, sender *Sender, logger *slog.Logger) *Receiver {
	return &Receiver{
		localID:    localID,
		homePath:   homePath,
		manager:    manager,
		registry:   reg,
		sender:     sender,
		logger:     logger,
		handshakes: newHandshakeTracker(),
		control:    make(chan inboundFrame, controlChanCap),
		transfer:   make(chan inboundFrame, transferChanCap),
	}
}

// Serve accepts connections on ln until ctx is cancelled or an Accept error
// occurs, and drives the control and transfer consumers concurrently.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	go r.consumeControl(ctx)
	go r.consumeTransfer(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("transport: accept: %w", err)
		}

		go r.handleConn(ctx, conn)
	}
}

func (r *Receiver) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	addr, ok := netip.AddrFromSlice(conn.RemoteAddr().(*net.TCPAddr).IP)
	if !ok {
		r.logger.Warn("transport: could not parse remote address", slog.String("addr", conn.RemoteAddr().String()))

		return
	}

	from := netip.AddrPortFrom(addr, uint16(conn.RemoteAddr().(*net.TCPAddr).Port))

	frame, err := ReadFrame(conn)
	if err != nil {
		r.logger.Warn("transport: discarding malformed frame", slog.String("from", from.String()), slog.Any("error", err))

		return
	}

	item := inboundFrame{frame: frame, from: from}

	dest := r.control
	if frame.Kind == KindTransfer {
		dest = r.transfer
	}

	select {
	case dest <- item:
	case <-ctx.Done():
	}
}

func (r *Receiver) consumeControl(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.control:
			r.handleControl(ctx, item)
		}
	}
}

func (r *Receiver) consumeTransfer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.transfer:
			r.handleTransfer(ctx, item)
		}
	}
}

func (r *Receiver) handleControl(ctx context.Context, item inboundFrame) {
	switch item.frame.Kind {
	case KindHandshakeSyn:
		r.handleSyn(ctx, item)
	case KindHandshakeAck:
		r.handleAck(ctx, item)
	case KindMetadata:
		r.handleMetadata(ctx, item)
	case KindRequest:
		r.handleRequest(ctx, item)
	default:
		r.logger.Warn("transport: unexpected kind on control channel", slog.String("kind", item.frame.Kind.String()))
	}
}

// replyAddr resolves the address a reply to senderID should be sent to. The
// sender dials a fresh connection per outbound frame, so the connection a
// frame arrived on carries the peer's ephemeral source port in its remote
// address, never its listening port. The registry holds the peer's actual
// advertised address once presence (or an earlier handshake) has recorded
// it; fall back to the raw connection address only when the registry has
// nothing yet, which can only happen on a Syn from a peer this side has
// never seen announced.
func (r *Receiver) replyAddr(senderID uuid.UUID, connAddr netip.AddrPort) netip.AddrPort {
	if peer, ok := r.registry.Get(senderID); ok {
		return peer.Addr
	}

	return connAddr
}

// handleSyn replies with an Ack immediately, bypassing the outbound queue,
// so the peer observes the Ack before any other traffic this side sends.
// A fresh Syn (from Idle, or a reset from Synced) triggers a request for
// every locally-missing entry once the peer's inventory is known.
func (r *Receiver) handleSyn(ctx context.Context, item inboundFrame) {
	fresh := r.handshakes.OnReceivedSyn(item.frame.SenderID)

	if err := r.sender.SendAckNow(ctx, r.replyAddr(item.frame.SenderID, item.from)); err != nil {
		r.logger.Warn("transport: failed to ack handshake", slog.String("peer", item.frame.SenderID.String()), slog.Any("error", err))

		return
	}

	if !fresh {
		return
	}

	r.requestMissingEntries(ctx, item)
	r.handshakes.OnHandshakeComplete(item.frame.SenderID)
}

func (r *Receiver) handleAck(ctx context.Context, item inboundFrame) {
	r.handshakes.OnReceivedAck(item.frame.SenderID)
	r.requestMissingEntries(ctx, item)
}

func (r *Receiver) requestMissingEntries(ctx context.Context, item inboundFrame) {
	var payload entrymgr.HandshakePayload
	if err := json.Unmarshal(item.frame.JSON, &payload); err != nil {
		r.logger.Warn("transport: malformed handshake payload", slog.String("peer", item.frame.SenderID.String()), slog.Any("error", err))

		return
	}

	// A Syn or Ack arrives on a connection the peer dialed outbound for this
	// one frame, so item.from is its ephemeral source port, not its
	// listening address. Preserve whatever address presence already
	// recorded for this peer rather than clobbering it with item.from;
	// only a peer this side has never seen announced falls back to it.
	addr := item.from
	if peer, ok := r.registry.Get(item.frame.SenderID); ok {
		addr = peer.Addr
	}

	r.registry.Insert(registry.Peer{
		ID:       item.frame.SenderID,
		Addr:     addr,
		Hostname: payload.Hostname,
		SyncDirs: syncDirSet(payload.SyncDirs),
	})

	toRequest, err := r.manager.GetEntriesToRequest(ctx, item.frame.SenderID, payload.Entries)
	if err != nil {
		r.logger.Warn("transport: computing missing entries", slog.Any("error", err))

		return
	}

	for _, rec := range toRequest {
		r.applyLocalEffect(addr, rec)
	}
}

// applyLocalEffect performs the local-disk side effect of rec's side
// winning against whatever this side held. A tombstone is removed from
// disk (RemoveAll for a directory, since its children tombstone
// separately but the directory itself may still be populated by content
// this peer has not yet deleted), a directory that is still live is
// created, and a live file is requested for content rather than mutated
// directly here.
func (r *Receiver) applyLocalEffect(addr netip.AddrPort, rec entrymgr.Record) {
	localPath := filepath.Join(r.homePath, filepath.FromSlash(rec.Name))

	switch {
	case rec.IsTombstone():
		var err error
		if rec.Kind == entrymgr.KindDirectory {
			err = os.RemoveAll(localPath)
		} else {
			err = os.Remove(localPath)
		}

		if err != nil && !os.IsNotExist(err) {
			r.logger.Warn("transport: removing tombstoned entry", slog.String("entry", rec.Name), slog.Any("error", err))
		}
	case rec.Kind == entrymgr.KindDirectory:
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			r.logger.Warn("transport: creating directory entry", slog.String("entry", rec.Name), slog.Any("error", err))
		}
	default:
		r.sender.EnqueueRequest(addr, rec)
	}
}

func syncDirSet(dirs []entrymgr.SyncDirectory) map[string]struct{} {
	out := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		out[d.Name] = struct{}{}
	}

	return out
}

// handleMetadata applies a peer's announced record through the entry
// manager's conflict resolution and, if the peer's side wins, applies it
// locally via applyLocalEffect (remove a tombstone, create a directory, or
// request a live file's content).
func (r *Receiver) handleMetadata(ctx context.Context, item inboundFrame) {
	var rec entrymgr.Record
	if err := json.Unmarshal(item.frame.JSON, &rec); err != nil {
		r.logger.Warn("transport: malformed metadata frame", slog.Any("error", err))

		return
	}

	comparison, err := r.manager.HandleMetadata(ctx, item.frame.SenderID, rec)
	if err != nil {
		r.logger.Warn("transport: handling metadata", slog.String("entry", rec.Name), slog.Any("error", err))

		return
	}

	if comparison == version.KeepOther || comparison == version.Conflict {
		r.applyLocalEffect(r.replyAddr(item.frame.SenderID, item.from), rec)
	}
}

// handleRequest enqueues a Transfer of the requested file back to the
// requester; the sender reads the file's content from disk when it builds
// the frame. Tombstone and directory requests are ignored.
func (r *Receiver) handleRequest(ctx context.Context, item inboundFrame) {
	var rec entrymgr.Record
	if err := json.Unmarshal(item.frame.JSON, &rec); err != nil {
		r.logger.Warn("transport: malformed request frame", slog.Any("error", err))

		return
	}

	if rec.IsTombstone() || rec.Kind == entrymgr.KindDirectory {
		return
	}

	localPath := filepath.Join(r.homePath, filepath.FromSlash(rec.Name))
	r.sender.EnqueueTransfer(r.replyAddr(item.frame.SenderID, item.from), rec, localPath)
}

// handleTransfer verifies the payload's hash against the announced record,
// writes it to a .partial sibling, and atomically renames it into place
// before upserting the record and rebroadcasting its metadata.
func (r *Receiver) handleTransfer(ctx context.Context, item inboundFrame) {
	var rec entrymgr.Record
	if err := json.Unmarshal(item.frame.JSON, &rec); err != nil {
		r.logger.Warn("transport: malformed transfer frame", slog.Any("error", err))

		return
	}

	got := fsutil.Hash(sha256.Sum256(item.frame.Payload))
	if got != rec.Hash {
		r.logger.Warn("transport: transfer hash mismatch, discarding",
			slog.String("entry", rec.Name), slog.String("expected", rec.Hash.String()), slog.String("got", got.String()))

		return
	}

	localPath := filepath.Join(r.homePath, filepath.FromSlash(rec.Name))
	if err := writeAtomically(localPath, item.frame.Payload); err != nil {
		r.logger.Warn("transport: persisting transfer", slog.String("entry", rec.Name), slog.Any("error", err))

		return
	}

	if _, err := r.manager.HandleMetadata(ctx, item.frame.SenderID, rec); err != nil {
		r.logger.Warn("transport: recording transfer", slog.String("entry", rec.Name), slog.Any("error", err))

		return
	}

	r.sender.EnqueueMetadata(rec)
}

func writeAtomically(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", path, err)
	}

	partial := path + ".partial"
	if err := os.WriteFile(partial, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", partial, err)
	}

	if err := os.Rename(partial, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", partial, path, err)
	}

	return nil
}
