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

// Package transport implements the Direct transport: it binds a
// listening socket, joins an existing mesh by address, and ties the
// Registry, Tracker, Balancer, Connection and Map together behind the
// Bind/Join/Register/Deregister/Request surface a node embeds.
package transport

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/delix/delix/internal/balancer"
	"github.com/delix/delix/internal/cipher"
	"github.com/delix/delix/internal/conn"
	"github.com/delix/delix/internal/registry"
	"github.com/delix/delix/internal/tracker"
	"github.com/delix/delix/internal/wire"
)

// ErrServiceNotFound is returned by Request when name has no
// registered link, local or remote.
var ErrServiceNotFound = errors.New("transport: service not found")

// ErrServiceNotRegistered is returned by Deregister when name has no
// local handler.
var ErrServiceNotRegistered = errors.New("transport: service not registered")

// Config carries everything Direct needs to bind and dial.
type Config struct {
	// LocalAddress is the address Bind listens on, e.g. ":7331".
	LocalAddress string
	// PublicAddress is the address this node advertises to peers
	// during the handshake. Defaults to LocalAddress when empty.
	PublicAddress string
	// Cipher encrypts every connection's framed stream.
	Cipher cipher.Cipher
	// DSCP optionally marks outbound mesh traffic; 0 disables it.
	DSCP int
	// TLSConfig, if set, wraps every connection (dialed and accepted)
	// in a mutually authenticated TLS 1.3 handshake before the mesh
	// handshake begins. Nil disables mTLS; the framed cipher stream
	// remains the connection's only encryption.
	TLSConfig *tls.Config
	// OutboundBytesPerSec caps each connection's outbound write rate;
	// zero disables throttling. Protects a node's other peers from
	// being starved of outbound bandwidth by one large response.
	OutboundBytesPerSec int64
	// RequestTimeout bounds how long Request waits for a remote
	// response before failing with tracker.ErrTimeout. Zero disables
	// the timeout.
	RequestTimeout time.Duration
	// ConnectionsGauge, if set, is incremented and decremented as
	// connections are added and removed.
	ConnectionsGauge conn.Gauge
	Logger           *slog.Logger
}

// Direct is the default Transport implementation: plain encrypted TCP
// between mesh members, latency-weighted round-robin dispatch, and
// discovery by peer-list flood during Join.
type Direct struct {
	nodeID        wire.NodeID
	localAddress  string
	publicAddress string
	cipher        cipher.Cipher
	dscp          int
	tlsConfig     *tls.Config
	bytesPerSec   int64

	registry    *registry.Registry
	tracker     *tracker.Tracker
	balancer    balancer.Balancer
	connections *conn.Map
	logger      *slog.Logger

	roundsMu sync.Mutex
	rounds   map[string]*dispatchRound

	listener  net.Listener
	closeOnce sync.Once
}

// dispatchRound is the Balancer's current round for one service name,
// plus the cursor Request draws from. A fresh round is built once the
// cursor runs off the end, not on every call.
type dispatchRound struct {
	links []registry.Link
	next  int
}

// New creates a Direct transport. The returned value is not yet bound
// or joined to anything; call Bind before accepting inbound
// connections and Join to discover the rest of the mesh.
func New(cfg Config) *Direct {
	publicAddress := cfg.PublicAddress
	if publicAddress == "" {
		publicAddress = cfg.LocalAddress
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := tracker.New(cfg.RequestTimeout)
	d := &Direct{
		localAddress:  cfg.LocalAddress,
		publicAddress: publicAddress,
		cipher:        cfg.Cipher,
		dscp:          cfg.DSCP,
		tlsConfig:     cfg.TLSConfig,
		bytesPerSec:   cfg.OutboundBytesPerSec,
		registry:      registry.New(),
		tracker:       t,
		logger:        logger,
		rounds:        make(map[string]*dispatchRound),
	}
	d.balancer = balancer.NewDynamicRoundRobin(t.Statistic())
	d.connections = conn.NewMap(cfg.ConnectionsGauge, logger)
	return d
}

// Bind generates this node's identity if nodeID is the zero value,
// starts listening on the configured local address, and begins
// accepting inbound connections on a background goroutine.
func (d *Direct) Bind(nodeID wire.NodeID) (wire.NodeID, error) {
	if nodeID.IsZero() {
		generated, err := wire.NewRandomNodeID()
		if err != nil {
			return wire.NodeID{}, fmt.Errorf("generating node id: %w", err)
		}
		nodeID = generated
	}
	d.nodeID = nodeID

	listener, err := net.Listen("tcp", d.localAddress)
	if err != nil {
		return wire.NodeID{}, fmt.Errorf("binding %s: %w", d.localAddress, err)
	}
	d.listener = listener
	d.logger.Info("bound", "node", nodeID, "address", listener.Addr())

	go d.acceptLoop(listener)
	return nodeID, nil
}

func (d *Direct) acceptLoop(listener net.Listener) {
	for {
		raw, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.logger.Warn("accept failed", "error", err)
			}
			return
		}
		go d.handleInbound(raw)
	}
}

func (d *Direct) handleInbound(raw net.Conn) {
	connection, err := conn.AcceptInbound(raw, d.cipher, d.dscp, d.nodeID, d.publicAddress, d.connections.Peers(), d.tlsConfig, d.bytesPerSec, d.handlers(), d.logger)
	if err != nil {
		d.logger.Warn("inbound handshake failed", "remote", raw.RemoteAddr(), "error", err)
		return
	}
	d.adopt(connection, raw.RemoteAddr())
}

func (d *Direct) adopt(connection *conn.Connection, remote net.Addr) {
	if err := d.connections.Add(connection); err != nil {
		d.logger.Warn("tracking connection", "peer", connection.PeerID(), "error", err)
		connection.Close()
		return
	}
	d.logger.Info("connection established", "peer", connection.PeerID(), "remote", remote)

	if err := connection.SendAddServices(d.registry.LocalServiceNames()); err != nil {
		d.logger.Warn("announcing services", "peer", connection.PeerID(), "error", err)
	}
}

// Join discovers and dials the mesh reachable from addresses,
// following each joined peer's advertised peer list until no new
// address remains — a worklist flood rather than the source's
// channel-driven recursion, since Join itself runs on one goroutine
// and needs no concurrency to converge the same way.
func (d *Direct) Join(addresses []string) error {
	seen := make(map[string]bool, len(addresses))
	queue := append([]string(nil), addresses...)
	for _, address := range queue {
		seen[address] = true
	}

	for len(queue) > 0 {
		address := queue[0]
		queue = queue[1:]

		connection, peers, err := conn.DialOutbound(address, d.cipher, d.dscp, d.nodeID, d.publicAddress, d.tlsConfig, d.bytesPerSec, d.handlers(), d.logger)
		if err != nil {
			d.logger.Warn("joining peer", "address", address, "error", err)
			continue
		}
		if connection.PeerID() == d.nodeID {
			connection.Close()
			continue
		}

		d.adopt(connection, connection.RemoteAddr())

		for _, peer := range peers {
			if peer.ID == d.nodeID || d.connections.Contains(peer.ID) || seen[peer.PublicAddress] {
				continue
			}
			seen[peer.PublicAddress] = true
			queue = append(queue, peer.PublicAddress)
		}
	}
	return nil
}

// Addr returns the address Bind listens on. It panics if called
// before Bind.
func (d *Direct) Addr() net.Addr { return d.listener.Addr() }

// ConnectionCount reports the number of currently open peer
// connections.
func (d *Direct) ConnectionCount() int { return d.connections.Len() }

// ServiceCount reports the number of service names with a local
// handler registered on this node.
func (d *Direct) ServiceCount() int { return len(d.registry.LocalServiceNames()) }

// Register installs handler as the local link for name and
// broadcasts the new name to every connected peer.
func (d *Direct) Register(name string, handler registry.Handler) error {
	if err := d.registry.InsertLocal(name, handler); err != nil {
		return err
	}
	d.invalidateRound(name)
	d.connections.BroadcastAddServices([]string{name})
	return nil
}

// Deregister removes the local link for name and broadcasts its
// withdrawal to every connected peer.
func (d *Direct) Deregister(name string) error {
	if !d.registry.RemoveLocal(name) {
		return fmt.Errorf("deregistering %q: %w", name, ErrServiceNotRegistered)
	}
	d.invalidateRound(name)
	d.connections.BroadcastRemoveServices([]string{name})
	return nil
}

// Request draws one Link from name's current dispatch round and
// invokes it: inline, for a local handler, or over the owning
// Connection for a remote one. The returned reader streams the
// response body; for a remote request it only becomes available once
// the peer's Response container has arrived (or the configured
// request timeout elapses).
func (d *Direct) Request(name string, body io.Reader) (io.Reader, error) {
	link, ok := d.nextLink(name)
	if !ok {
		return nil, fmt.Errorf("requesting %q: %w", name, ErrServiceNotFound)
	}
	if link.IsLocal {
		return d.requestLocal(name, link, body)
	}
	return d.requestRemote(name, link, body)
}

func (d *Direct) requestLocal(name string, link registry.Link, body io.Reader) (io.Reader, error) {
	subject := tracker.LocalSubject(name)
	id, _ := d.tracker.Begin(subject)
	reader, err := link.Local(body)
	d.tracker.End(id, tracker.Result{Reader: reader, Err: err})
	return reader, err
}

// remoteArrival is the outcome of racing a remote response's first
// byte (or clean empty close) against the Tracker's timeout.
type remoteArrival struct {
	reader *bufio.Reader
	err    error
}

func (d *Direct) requestRemote(name string, link registry.Link, body io.Reader) (io.Reader, error) {
	connection, ok := d.connections.Get(link.Remote)
	if !ok {
		return nil, fmt.Errorf("requesting %q from %s: %w", name, link.Remote, ErrServiceNotFound)
	}

	subject := tracker.RemoteSubject(name, link.Remote)
	id, done := d.tracker.Begin(subject)

	reader, err := connection.SendRequest(id, name, body)
	if err != nil {
		d.tracker.End(id, tracker.Result{Err: err})
		return nil, err
	}

	// SendRequest's reader fills asynchronously as the peer's
	// Connection read loop dispatches packets; peeking its first byte
	// (or observing its clean end-of-stream) is the earliest point at
	// which the response has genuinely arrived, so that is what marks
	// this request as complete for latency statistics.
	buffered := bufio.NewReader(reader)
	arrived := make(chan remoteArrival, 1)
	go func() {
		_, peekErr := buffered.Peek(1)
		if peekErr != nil && !errors.Is(peekErr, io.EOF) {
			arrived <- remoteArrival{err: peekErr}
			return
		}
		arrived <- remoteArrival{reader: buffered}
	}()

	select {
	case a := <-arrived:
		if a.err != nil {
			d.tracker.End(id, tracker.Result{Err: a.err})
			return nil, a.err
		}
		d.tracker.End(id, tracker.Result{Reader: a.reader})
		return a.reader, nil
	case result := <-done:
		// The timeout worker already removed the Tracker entry and
		// recorded in-flight bookkeeping; a late arrival on the
		// goroutine above will find nothing to End against.
		return result.Reader, result.Err
	}
}

// Close stops accepting new connections, closes every tracked
// connection, and stops the Tracker's timeout worker.
func (d *Direct) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.listener != nil {
			err = d.listener.Close()
		}
		d.connections.CloseAll()
		d.tracker.Close()
	})
	return err
}

func (d *Direct) nextLink(name string) (registry.Link, bool) {
	d.roundsMu.Lock()
	defer d.roundsMu.Unlock()

	round, ok := d.rounds[name]
	if !ok || round.next >= len(round.links) {
		links := d.registry.Links(name)
		built := d.balancer.BuildRound(name, links)
		if len(built) == 0 {
			delete(d.rounds, name)
			return registry.Link{}, false
		}
		round = &dispatchRound{links: built}
		d.rounds[name] = round
	}

	link := round.links[round.next]
	round.next++
	return link, true
}

func (d *Direct) invalidateRound(name string) {
	d.roundsMu.Lock()
	delete(d.rounds, name)
	d.roundsMu.Unlock()
}

// handlers builds the Connection.Handlers shared by every inbound and
// outbound connection this node establishes: service announcements
// feed the Registry, requests are served from it, and a lost
// connection is unwound from both the Map and the Registry.
func (d *Direct) handlers() conn.Handlers {
	return conn.Handlers{
		OnAddServices: func(peer wire.NodeID, names []string) {
			for _, name := range names {
				if err := d.registry.InsertRemote(name, peer); err != nil && !errors.Is(err, registry.ErrServiceAlreadyExists) {
					d.logger.Warn("recording remote service", "peer", peer, "name", name, "error", err)
				}
				d.invalidateRound(name)
			}
		},
		OnRemoveServices: func(peer wire.NodeID, names []string) {
			for _, name := range names {
				d.registry.RemoveRemoteLink(name, peer)
				d.invalidateRound(name)
			}
		},
		OnRequest: func(peer wire.NodeID, name string, body io.Reader) (io.Reader, error) {
			return d.registry.CallLocalOr(name, body, func() (io.Reader, error) {
				return nil, fmt.Errorf("requesting %q: %w", name, ErrServiceNotFound)
			})
		},
		OnShutdown: func(peer wire.NodeID, err error) {
			d.connections.HandleShutdown(peer, err)
			for _, name := range d.registry.RemoveRemote(peer) {
				d.invalidateRound(name)
			}
		},
	}
}
