// Package daemon wires the entry manager, transport, watcher pipeline,
// presence service, and control plane into a single supervised process:
// the Synchronizer. It owns none of the protocol or conflict logic itself;
// it only starts and stops the components that do.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/lansync/lansyncd/internal/config"
	"github.com/lansync/lansyncd/internal/control"
	"github.com/lansync/lansyncd/internal/discovery"
	"github.com/lansync/lansyncd/internal/entrymgr"
	"github.com/lansync/lansyncd/internal/peerid"
	"github.com/lansync/lansyncd/internal/presence"
	"github.com/lansync/lansyncd/internal/registry"
	"github.com/lansync/lansyncd/internal/store"
	"github.com/lansync/lansyncd/internal/transport"
	"github.com/lansync/lansyncd/internal/watcher"
)

// Synchronizer is a single running daemon instance: one entry manager, one
// transport listener, one filesystem watcher, one presence service, and
// one status HTTP endpoint, all torn down together when the supervisor
// context is cancelled.
type Synchronizer struct {
	cfg     *config.Config
	localID peerid.ID
	logger  *slog.Logger

	store    store.Store
	manager  *entrymgr.Manager
	registry *registry.Registry
	sender   *transport.Sender
	receiver *transport.Receiver
	watcher  *watcher.Pipeline
	presence *presence.Service
	control  *control.Server

	listener net.Listener
}

// Options bundles the dependencies that must be constructed before the
// daemon can start: a config, a peer identity, an entry store, a listener
// already bound to the configured port, a status plane address, and a
// config reloader for the watcher's config-reload side loop.
type Options struct {
	Config      *config.Config
	LocalID     peerid.ID
	Store       store.Store
	Listener    net.Listener
	ControlAddr string
	ConfigPath  string
	LoadConfig  func() (*config.Config, error)
	// Discovery overrides the mDNS adapter used for peer presence. Nil
	// selects the real zeroconf adapter; tests inject discovery.FakeAdapter.
	Discovery discovery.Adapter
	Logger    *slog.Logger
}

// New constructs a Synchronizer from opts, wiring every component's
// constructor dependencies but starting nothing yet; call Run to start.
func New(opts Options) (*Synchronizer, error) {
	syncDirs := make([]entrymgr.SyncDirectory, 0, len(opts.Config.Directories))
	for _, d := range opts.Config.Directories {
		syncDirs = append(syncDirs, entrymgr.SyncDirectory{Name: d.Name})
	}

	manager := entrymgr.NewManager(opts.Store, opts.LocalID.UUID(), opts.Config.HomePath, syncDirs, opts.Logger)
	reg := registry.New(opts.Logger)

	instanceID := peerid.New().UUID()
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolving hostname: %w", err)
	}

	sender := transport.NewSender(opts.LocalID.UUID(), hostname, instanceID, manager, reg, transport.NewDialer(), opts.Logger)
	receiver := transport.NewReceiver(opts.LocalID.UUID(), opts.Config.HomePath, manager, reg, sender, opts.Logger)

	broadcaster := control.NewBroadcaster()

	pipeline := watcher.New(opts.Config.HomePath, opts.ConfigPath, manager, sender, reg, broadcaster, opts.LoadConfig, opts.Logger)

	adapter := opts.Discovery
	if adapter == nil {
		adapter = discovery.NewZeroconfAdapter(opts.Logger)
	}

	syncDirNames := func() []string {
		dirs := manager.ListSyncDirs()
		names := make([]string, len(dirs))

		for i, d := range dirs {
			names[i] = d.Name
		}

		return names
	}
	presenceSvc := presence.New(opts.LocalID, hostname, adapter, sender, reg, syncDirNames, broadcaster, opts.Logger)

	snapshot := func() control.Snapshot {
		return buildSnapshot(opts.Config.HomePath, manager, reg)
	}
	controlServer := control.NewServer(opts.ControlAddr, snapshot, broadcaster, opts.Logger)

	return &Synchronizer{
		cfg:      opts.Config,
		localID:  opts.LocalID,
		logger:   opts.Logger,
		store:    opts.Store,
		manager:  manager,
		registry: reg,
		sender:   sender,
		receiver: receiver,
		watcher:  pipeline,
		presence: presenceSvc,
		control:  controlServer,
		listener: opts.Listener,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them returns a fatal error, at which point the rest are torn down via
// errgroup's automatic context cancellation.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := s.manager.Init(ctx); err != nil {
		return fmt.Errorf("daemon: initializing entry manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.sender.Run(gctx) })
	g.Go(func() error { return s.receiver.Serve(gctx, s.listener) })
	g.Go(func() error { return s.watcher.Run(gctx) })
	g.Go(func() error { return s.presence.Run(gctx, listenerAddrPort(s.listener)) })
	g.Go(func() error { return s.control.Run(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	return nil
}

// Close releases the entry store's resources. Call after Run returns.
func (s *Synchronizer) Close() error {
	return s.store.Close()
}

// Reload forces an immediate re-read of the config file, reconciling the
// live sync directory set against it. Called from the run command's SIGHUP
// handler so an operator never has to wait on fsnotify to notice a config
// change landed via a non-atomic write.
func (s *Synchronizer) Reload(ctx context.Context) error {
	return s.watcher.Reload(ctx)
}

// Manager returns the entry manager backing this daemon instance, for
// tests and CLI introspection commands that need a direct read.
func (s *Synchronizer) Manager() *entrymgr.Manager {
	return s.manager
}

// ListenAddr returns the address the transport listener is bound to.
func (s *Synchronizer) ListenAddr() netip.AddrPort {
	return listenerAddrPort(s.listener)
}

func listenerAddrPort(ln net.Listener) netip.AddrPort {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}

	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.AddrPort{}
	}

	return netip.AddrPortFrom(ip.Unmap(), uint16(addr.Port))
}

func buildSnapshot(homePath string, manager *entrymgr.Manager, reg *registry.Registry) control.Snapshot {
	dirs := manager.ListSyncDirs()
	names := make([]string, len(dirs))

	for i, d := range dirs {
		names[i] = d.Name
	}

	peers := reg.List()
	statuses := make([]control.PeerStatus, len(peers))

	for i, p := range peers {
		syncDirs := make([]string, 0, len(p.SyncDirs))
		for name := range p.SyncDirs {
			syncDirs = append(syncDirs, name)
		}

		statuses[i] = control.PeerStatus{
			ID:       p.ID.String(),
			Hostname: p.Hostname,
			Addr:     p.Addr.String(),
			LastSeen: p.LastSeen,
			SyncDirs: syncDirs,
		}
	}

	return control.Snapshot{HomePath: homePath, Directories: names, Peers: statuses}
}
