package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
)

// Adapter is the LAN discovery backend. Advertise blocks, maintaining the
// mDNS registration, until ctx is cancelled. Browse returns a channel of
// sightings that closes when ctx is cancelled.
type Adapter interface {
	Advertise(ctx context.Context, self Sighting) error
	Browse(ctx context.Context) (<-chan Sighting, error)
}

// ZeroconfAdapter is the production Adapter, backed by mDNS/DNS-SD via
// grandcat/zeroconf.
type ZeroconfAdapter struct {
	logger *slog.Logger
}

// NewZeroconfAdapter returns the production mDNS adapter.
func NewZeroconfAdapter(logger *slog.Logger) *ZeroconfAdapter {
	return &ZeroconfAdapter{logger: logger}
}

// Advertise registers self under ServiceType and blocks until ctx is done,
// then unregisters.
func (z *ZeroconfAdapter) Advertise(ctx context.Context, self Sighting) error {
	txt := encodeText(self)

	server, err := zeroconf.Register(self.Hostname, ServiceType, Domain, int(self.Addr.Port()), txt, nil)
	if err != nil {
		return fmt.Errorf("discovery: registering mdns service: %w", err)
	}

	z.logger.Info("discovery: advertising", slog.String("hostname", self.Hostname), slog.Int("port", int(self.Addr.Port())))

	<-ctx.Done()
	server.Shutdown()

	return nil
}

// Browse starts a continuous mDNS browse for ServiceType and translates
// each resolved entry into a Sighting.
func (z *ZeroconfAdapter) Browse(ctx context.Context) (<-chan Sighting, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: creating mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	out := make(chan Sighting, 16)

	go func() {
		defer close(out)

		for entry := range entries {
			sighting, ok := decodeEntry(entry)
			if !ok {
				z.logger.Debug("discovery: ignoring unparseable mdns entry", slog.String("instance", entry.Instance))
				continue
			}

			select {
			case out <- sighting:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("discovery: starting mdns browse: %w", err)
	}

	return out, nil
}

func encodeText(s Sighting) []string {
	return []string{
		"id=" + s.PeerID.String(),
		"dirs=" + strings.Join(s.SyncDirs, ","),
	}
}

func decodeEntry(entry *zeroconf.ServiceEntry) (Sighting, bool) {
	var (
		id   uuid.UUID
		dirs []string
	)

	for _, field := range entry.Text {
		switch {
		case strings.HasPrefix(field, "id="):
			parsed, err := uuid.Parse(strings.TrimPrefix(field, "id="))
			if err != nil {
				return Sighting{}, false
			}

			id = parsed
		case strings.HasPrefix(field, "dirs="):
			raw := strings.TrimPrefix(field, "dirs=")
			if raw != "" {
				dirs = strings.Split(raw, ",")
			}
		}
	}

	if id == uuid.Nil || len(entry.AddrIPv4) == 0 {
		return Sighting{}, false
	}

	ip, ok := netip.AddrFromSlice(entry.AddrIPv4[0].To4())
	if !ok {
		return Sighting{}, false
	}

	port, err := strconv.ParseUint(strconv.Itoa(entry.Port), 10, 16)
	if err != nil {
		return Sighting{}, false
	}

	return Sighting{
		PeerID:   id,
		Hostname: entry.HostName,
		Addr:     netip.AddrPortFrom(ip, uint16(port)),
		SyncDirs: dirs,
	}, true
}
