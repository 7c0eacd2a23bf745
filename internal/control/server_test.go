package control

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T, snapshot func() Snapshot, b *Broadcaster) (string, context.CancelFunc) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewServer(addr, snapshot, b, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}

		conn.Close()

		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr, func() {
		cancel()
		<-done
	}
}

func TestServer_Status_ReturnsCurrentSnapshot(t *testing.T) {
	snap := Snapshot{
		HomePath:    "/home/alice/Sync",
		Directories: []string{"shared"},
		Peers: []PeerStatus{
			{ID: "peer-1", Hostname: "bob-laptop", Addr: "192.168.1.5:9000"},
		},
	}

	addr, stop := startTestServer(t, func() Snapshot { return snap }, NewBroadcaster())
	defer stop()

	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, snap, got)
}

func TestServer_Events_StreamsPublishedEvents(t *testing.T) {
	b := NewBroadcaster()
	addr, stop := startTestServer(t, func() Snapshot { return Snapshot{} }, b)
	defer stop()

	resp, err := http.Get("http://" + addr + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	b.Publish(Event{Kind: EventPeerConnected, Detail: "bob-laptop joined"})

	reader := bufio.NewReader(resp.Body)

	line, err := readLineWithTimeout(reader, 2*time.Second)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(line, &ev))
	assert.Equal(t, EventPeerConnected, ev.Kind)
	assert.Equal(t, "bob-laptop joined", ev.Detail)
}

func readLineWithTimeout(r *bufio.Reader, timeout time.Duration) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}

	ch := make(chan result, 1)

	go func() {
		line, err := r.ReadBytes('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		return nil, context.DeadlineExceeded
	}
}
