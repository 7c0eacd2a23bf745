package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// PeerStatus is one peer entry in a status snapshot.
type PeerStatus struct {
	ID       string    `json:"id"`
	Hostname string    `json:"hostname"`
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
	SyncDirs []string  `json:"sync_directories"`
}

// Snapshot is the full point-in-time view served by GET /status.
type Snapshot struct {
	HomePath    string       `json:"home_path"`
	Directories []string     `json:"directories"`
	Peers       []PeerStatus `json:"peers"`
}

// eventStreamFlushInterval is how often a GET /events stream is flushed
// while no event arrives. The flush writes no bytes of its own; it only
// pushes out whatever is already buffered.
const eventStreamFlushInterval = 30 * time.Second

// Server is the daemon's status HTTP endpoint: GET /status returns a JSON
// snapshot built on demand via snapshot, and GET /events streams
// newline-delimited JSON events published to broadcaster until the client
// disconnects.
type Server struct {
	snapshot    func() Snapshot
	broadcaster *Broadcaster
	logger      *slog.Logger

	httpServer *http.Server
}

// NewServer constructs a Server listening on addr (e.g. "127.0.0.1:0").
// snapshot is called fresh on every GET /status request.
func NewServer(addr string, snapshot func() Snapshot, broadcaster *Broadcaster, logger *slog.Logger) *Server {
	s := &Server{snapshot: snapshot, broadcaster: broadcaster, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Warn("control: encoding status response", slog.Any("error", err))
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventStreamFlushInterval)
	defer ticker.Stop()

	enc := json.NewEncoder(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := enc.Encode(ev); err != nil {
				return
			}

			flusher.Flush()
		case <-ticker.C:
			flusher.Flush()
		}
	}
}
