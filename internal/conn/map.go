// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package conn

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/delix/delix/internal/wire"
)

// ErrConnectionAlreadyExists is returned by Map.Add when a connection
// to the same peer is already tracked.
var ErrConnectionAlreadyExists = errors.New("conn: connection already exists")

// Gauge is the minimal counter shape Map needs to report its size;
// internal/metrics' Counter implementation satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type noopGauge struct{}

func (noopGauge) Inc() {}
func (noopGauge) Dec() {}

// Map is the peer-keyed table of currently open connections. Losing a
// connection is reported asynchronously by the read loop's OnShutdown
// callback through an internal channel, which a single reaper
// goroutine drains to remove the dead entry — mirroring the source's
// mpsc-channel-fed background remover, so Add's caller never blocks on
// cleanup.
type Map struct {
	mu    sync.RWMutex
	peers map[wire.NodeID]*Connection

	lost   chan wire.NodeID
	gauge  Gauge
	logger *slog.Logger
}

// NewMap creates an empty Map. gauge may be nil, in which case
// connection-count reporting is a no-op.
func NewMap(gauge Gauge, logger *slog.Logger) *Map {
	if gauge == nil {
		gauge = noopGauge{}
	}

	m := &Map{
		peers:  make(map[wire.NodeID]*Connection),
		lost:   make(chan wire.NodeID, 64),
		gauge:  gauge,
		logger: logger,
	}
	go m.reap()
	return m
}

// Add tracks connection, keyed by its peer id. It fails with
// ErrConnectionAlreadyExists if a connection to the same peer is
// already tracked. The connection's Handlers.OnShutdown must already
// call HandleShutdown (composed in by the caller before the Connection
// was constructed) so that Map learns about the loss — Add does not
// patch the connection's handlers itself, since Handlers is meant to
// be fixed for the Connection's lifetime once its read loop starts.
func (m *Map) Add(connection *Connection) error {
	peerID := connection.PeerID()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.peers[peerID]; exists {
		return fmt.Errorf("tracking connection to %s: %w", peerID, ErrConnectionAlreadyExists)
	}
	m.peers[peerID] = connection
	m.gauge.Inc()
	return nil
}

// HandleShutdown is the bookkeeping half of a Connection's
// Handlers.OnShutdown: it logs unexpected losses and schedules peer's
// entry for removal on the reaper goroutine, falling back to an
// immediate removal if the reaper is backed up rather than ever
// leaving a dead entry in the map.
func (m *Map) HandleShutdown(peer wire.NodeID, err error) {
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		m.logger.Warn("connection lost", "peer", peer, "error", err)
	}
	select {
	case m.lost <- peer:
	default:
		m.remove(peer)
	}
}

// Get returns the Connection tracked for peer, if any.
func (m *Map) Get(peer wire.NodeID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.peers[peer]
	return c, ok
}

// Contains reports whether peer currently has a tracked connection.
func (m *Map) Contains(peer wire.NodeID) bool {
	_, ok := m.Get(peer)
	return ok
}

// Peers returns every tracked peer's id and advertised public address,
// the set a newly dialed node's handshake seeds its Peers container
// from.
func (m *Map) Peers() []wire.Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]wire.Peer, 0, len(m.peers))
	for id, connection := range m.peers {
		peers = append(peers, wire.Peer{ID: id, PublicAddress: connection.PeerPublicAddress()})
	}
	return peers
}

// Len reports the number of tracked connections.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// BroadcastAddServices sends an AddServices container to every tracked
// connection, collecting (not stopping on) per-peer failures.
func (m *Map) BroadcastAddServices(names []string) map[wire.NodeID]error {
	return m.broadcast(func(c *Connection) error { return c.SendAddServices(names) })
}

// BroadcastRemoveServices sends a RemoveServices container to every
// tracked connection, collecting per-peer failures.
func (m *Map) BroadcastRemoveServices(names []string) map[wire.NodeID]error {
	return m.broadcast(func(c *Connection) error { return c.SendRemoveServices(names) })
}

func (m *Map) broadcast(send func(*Connection) error) map[wire.NodeID]error {
	m.mu.RLock()
	snapshot := make(map[wire.NodeID]*Connection, len(m.peers))
	for id, c := range m.peers {
		snapshot[id] = c
	}
	m.mu.RUnlock()

	var failures map[wire.NodeID]error
	for id, c := range snapshot {
		if err := send(c); err != nil {
			if failures == nil {
				failures = make(map[wire.NodeID]error)
			}
			failures[id] = err
		}
	}
	return failures
}

// CloseAll closes every tracked connection, waiting for each one's read
// loop to exit. The entries themselves are removed asynchronously by
// the reaper, so Len may still count them right after CloseAll returns.
func (m *Map) CloseAll() {
	m.mu.RLock()
	snapshot := make([]*Connection, 0, len(m.peers))
	for _, c := range m.peers {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		c.Close()
	}
}

func (m *Map) remove(peer wire.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[peer]; ok {
		delete(m.peers, peer)
		m.gauge.Dec()
	}
}

func (m *Map) reap() {
	for peer := range m.lost {
		m.remove(peer)
	}
}
