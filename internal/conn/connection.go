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

// Package conn implements the Connection and its peer-keyed Map:
// one TCP link to a peer, framed and encrypted via internal/cipher,
// carrying the handshake and the steady-state container traffic
// described in internal/wire, plus the map that tracks every
// currently open peer connection.
package conn

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/delix/delix/internal/cipher"
	"github.com/delix/delix/internal/dispatch"
	"github.com/delix/delix/internal/wire"
)

// ErrHandshakeFailed wraps any error encountered while exchanging
// Introduction, Peers and Aknowledge containers.
var ErrHandshakeFailed = errors.New("conn: handshake failed")

// Handlers bundles every callback a Connection invokes for inbound
// traffic. All fields are read-only after the Connection is
// constructed — unlike a setter-based API, this closes the window
// where a container could arrive before a handler is installed,
// since the read loop goroutine is only started once Handlers is
// already in hand.
type Handlers struct {
	// OnAddServices fires when the peer announces new service names.
	OnAddServices func(peer wire.NodeID, names []string)
	// OnRemoveServices fires when the peer retracts service names.
	OnRemoveServices func(peer wire.NodeID, names []string)
	// OnRequest answers an inbound request. It runs on the
	// Connection's single read-loop goroutine, so a slow handler
	// delays processing of everything else on this connection.
	OnRequest func(peer wire.NodeID, name string, body io.Reader) (io.Reader, error)
	// OnShutdown fires once, from the read loop, when the connection
	// is lost or closed locally. err is nil on a local Close.
	OnShutdown func(peer wire.NodeID, err error)
}

// Connection is one handshake-established, encrypted link to a peer.
// All writes are serialized through writeMu; the read loop is the
// connection's only reader and runs on its own goroutine.
type Connection struct {
	raw    net.Conn
	stream *cipher.Stream

	dispatcher *dispatch.Dispatcher

	localID           wire.NodeID
	peerID            wire.NodeID
	peerPublicAddress string

	handlers Handlers
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	readDone  chan struct{}
}

// DialOutbound dials address, completes the outbound side of the
// handshake and starts the read loop. It returns the Connection along
// with the peer list the acceptor sent during the handshake, which the
// caller uses to extend mesh discovery. When tlsConfig is non-nil the
// raw TCP socket is wrapped in a TLS client handshake, with mutual
// certificate verification, before the mesh handshake begins.
func DialOutbound(address string, c cipher.Cipher, dscp int, localID wire.NodeID, publicAddress string, tlsConfig *tls.Config, bytesPerSec int64, handlers Handlers, logger *slog.Logger) (*Connection, []wire.Peer, error) {
	raw, err := net.Dial("tcp", address)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	if err := applyDSCP(raw, dscp); err != nil {
		logger.Warn("applying dscp to outbound connection", "address", address, "error", err)
	}

	transport, err := wrapTLSClient(raw, address, tlsConfig)
	if err != nil {
		raw.Close()
		return nil, nil, fmt.Errorf("%w: tls handshake: %v", ErrHandshakeFailed, err)
	}
	transport = withOutboundThrottle(transport, bytesPerSec)

	connection := newConnection(transport, c, localID, handlers, logger)

	if err := wire.WriteContainer(connection.stream, wire.PackIntroduction(localID, publicAddress)); err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: writing introduction: %v", ErrHandshakeFailed, err)
	}

	introduction, err := wire.ReadContainer(connection.stream)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: reading introduction: %v", ErrHandshakeFailed, err)
	}
	peerID, peerAddress, err := wire.UnpackIntroduction(introduction)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	peersContainer, err := wire.ReadContainer(connection.stream)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: reading peers: %v", ErrHandshakeFailed, err)
	}
	peers, err := wire.UnpackPeers(peersContainer)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := wire.WriteContainer(connection.stream, wire.PackAknowledge()); err != nil {
		connection.closeBeforeReadLoop()
		return nil, nil, fmt.Errorf("%w: writing aknowledge: %v", ErrHandshakeFailed, err)
	}

	connection.peerID = peerID
	connection.peerPublicAddress = peerAddress
	go connection.readLoop()

	return connection, peers, nil
}

// AcceptInbound completes the inbound side of the handshake over an
// already-accepted raw connection and starts the read loop. peers is
// the current mesh view the acceptor advertises to the dialer. When
// tlsConfig is non-nil, raw is first wrapped in a TLS server
// handshake requiring the dialer to present a certificate the mesh CA
// signed.
func AcceptInbound(raw net.Conn, c cipher.Cipher, dscp int, localID wire.NodeID, publicAddress string, peers []wire.Peer, tlsConfig *tls.Config, bytesPerSec int64, handlers Handlers, logger *slog.Logger) (*Connection, error) {
	if err := applyDSCP(raw, dscp); err != nil {
		logger.Warn("applying dscp to inbound connection", "remote", raw.RemoteAddr(), "error", err)
	}

	transport, err := wrapTLSServer(raw, tlsConfig)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: tls handshake: %v", ErrHandshakeFailed, err)
	}
	transport = withOutboundThrottle(transport, bytesPerSec)

	connection := newConnection(transport, c, localID, handlers, logger)

	introduction, err := wire.ReadContainer(connection.stream)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: reading introduction: %v", ErrHandshakeFailed, err)
	}
	peerID, peerAddress, err := wire.UnpackIntroduction(introduction)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := wire.WriteContainer(connection.stream, wire.PackIntroduction(localID, publicAddress)); err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: writing introduction: %v", ErrHandshakeFailed, err)
	}
	if err := wire.WriteContainer(connection.stream, wire.PackPeers(peers)); err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: writing peers: %v", ErrHandshakeFailed, err)
	}

	aknowledge, err := wire.ReadContainer(connection.stream)
	if err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: reading aknowledge: %v", ErrHandshakeFailed, err)
	}
	if err := wire.UnpackAknowledge(aknowledge); err != nil {
		connection.closeBeforeReadLoop()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	connection.peerID = peerID
	connection.peerPublicAddress = peerAddress
	go connection.readLoop()

	return connection, nil
}

func newConnection(raw net.Conn, c cipher.Cipher, localID wire.NodeID, handlers Handlers, logger *slog.Logger) *Connection {
	return &Connection{
		raw:        raw,
		stream:     cipher.NewStream(raw, c),
		dispatcher: dispatch.New(),
		localID:    localID,
		handlers:   handlers,
		logger:     logger,
		readDone:   make(chan struct{}),
	}
}

// PeerID returns the NodeID the peer introduced itself with.
func (c *Connection) PeerID() wire.NodeID { return c.peerID }

// PeerPublicAddress returns the address the peer advertised as its own
// public address during the handshake.
func (c *Connection) PeerPublicAddress() string { return c.peerPublicAddress }

// RemoteAddr returns the underlying socket's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// SendAddServices announces newly available local service names to the
// peer.
func (c *Connection) SendAddServices(names []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteContainer(c.stream, wire.PackAddServices(names))
}

// SendRemoveServices announces that local service names are no longer
// available to the peer.
func (c *Connection) SendRemoveServices(names []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteContainer(c.stream, wire.PackRemoveServices(names))
}

// SendRequest opens a request named name against the peer, streaming
// body as the request's Packet stream, and returns a reader over the
// eventual response body. The returned reader is backed by the
// Connection's Dispatcher and fills asynchronously as the read loop
// processes the matching Response container — SendRequest itself only
// blocks long enough to write the request.
func (c *Connection) SendRequest(requestID uint32, name string, body io.Reader) (io.Reader, error) {
	reader := c.dispatcher.Begin(requestID)

	c.writeMu.Lock()
	err := wire.WriteContainer(c.stream, wire.PackRequest(requestID, name))
	if err == nil {
		err = wire.CopyAsPackets(c.stream, body)
	}
	c.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("sending request %q: %w", name, err)
	}
	return reader, nil
}

// Close shuts down the underlying socket, unblocking the read loop
// with a read error, and waits for the read loop to exit before
// returning. It is safe to call Close more than once, and safe to call
// concurrently with the read loop. Once Close returns, readLoop has
// already delivered its OnShutdown callback and will not dispatch any
// further container or handler activity for this Connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})
	<-c.readDone
	return err
}

// closeBeforeReadLoop tears down a Connection that failed partway
// through its handshake, before readLoop was ever started — there is
// no read loop goroutine to join, so unlike Close this does not wait
// on readDone; it closes it itself.
func (c *Connection) closeBeforeReadLoop() {
	c.closeOnce.Do(func() {
		c.raw.Close()
	})
	close(c.readDone)
}

// readLoop is the Connection's single reader. It runs until the
// stream fails or is closed, dispatching each inbound Container to the
// matching handler before reading the next one. Request and Response
// containers are followed on the wire by a Packet body stream, which
// readLoop drains as part of handling that container — so, per the
// source this is grounded on, the whole connection is serialized
// behind whichever body is currently in flight.
func (c *Connection) readLoop() {
	var shutdownErr error
readLoop:
	for {
		container, err := wire.ReadContainer(c.stream)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				shutdownErr = err
			}
			break readLoop
		}

		switch container.Kind {
		case wire.KindAddServices:
			names, err := wire.UnpackAddServices(container)
			if err != nil {
				c.logger.Warn("decoding add-services container", "peer", c.peerID, "error", err)
				continue readLoop
			}
			if c.handlers.OnAddServices != nil {
				c.handlers.OnAddServices(c.peerID, names)
			}

		case wire.KindRemoveServices:
			names, err := wire.UnpackRemoveServices(container)
			if err != nil {
				c.logger.Warn("decoding remove-services container", "peer", c.peerID, "error", err)
				continue readLoop
			}
			if c.handlers.OnRemoveServices != nil {
				c.handlers.OnRemoveServices(c.peerID, names)
			}

		case wire.KindRequest:
			requestID, name, err := wire.UnpackRequest(container)
			if err != nil {
				c.logger.Warn("decoding request container", "peer", c.peerID, "error", err)
				continue readLoop
			}
			c.serveRequest(requestID, name)

		case wire.KindResponse:
			if err := c.receiveResponse(container); err != nil {
				shutdownErr = err
				break readLoop
			}

		default:
			c.logger.Warn("unexpected container kind", "peer", c.peerID, "kind", container.Kind)
		}
	}

	c.raw.Close()
	if c.handlers.OnShutdown != nil {
		c.handlers.OnShutdown(c.peerID, shutdownErr)
	}
	close(c.readDone)
}

// serveRequest drains the request body directly off the stream and
// hands it to the request handler inline, synchronously, on the read
// loop goroutine — the body never needs to be buffered in full since
// the handler receives a live io.Reader over the Packet stream.
func (c *Connection) serveRequest(requestID uint32, name string) {
	body := wire.NewPacketReader(func() (wire.Packet, error) {
		return wire.ReadPacket(c.stream)
	})

	if c.handlers.OnRequest == nil {
		c.writeResponse(requestID, wire.ResponseUnavailable, "no request handler installed", nil)
		return
	}

	response, err := c.handlers.OnRequest(c.peerID, name, body)
	if err != nil {
		c.writeResponse(requestID, classifyRequestError(err), err.Error(), nil)
		return
	}
	c.writeResponse(requestID, wire.ResponseOK, "", response)
}

func (c *Connection) writeResponse(requestID uint32, kind wire.ResponseKind, message string, body io.Reader) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.WriteContainer(c.stream, wire.PackResponse(requestID, kind, message)); err != nil {
		c.logger.Warn("writing response container", "peer", c.peerID, "error", err)
		return
	}
	if kind != wire.ResponseOK || body == nil {
		return
	}
	if err := wire.CopyAsPackets(c.stream, body); err != nil {
		c.logger.Warn("writing response body", "peer", c.peerID, "error", err)
	}
}

// receiveResponse decodes a Response container and either forwards its
// terminal error straight to the Dispatcher (non-OK: no body follows)
// or drains the OK body's Packet stream into the Dispatcher one record
// at a time, so a slow consumer cannot stall the read loop beyond the
// Dispatcher's bounded channel (see internal/dispatch).
func (c *Connection) receiveResponse(container wire.Container) error {
	requestID, kind, message, err := wire.UnpackResponse(container)
	if err != nil {
		c.logger.Warn("decoding response container", "peer", c.peerID, "error", err)
		return nil
	}

	if kind != wire.ResponseOK {
		c.dispatcher.Dispatch(requestID, wire.Packet{Result: responseKindToPacketResult(kind), Message: message})
		return nil
	}

	for {
		packet, err := wire.ReadPacket(c.stream)
		if err != nil {
			return err
		}
		c.dispatcher.Dispatch(requestID, packet)
		if packet.Result != wire.PacketOK || len(packet.Payload) == 0 {
			return nil
		}
	}
}

// classifyRequestError maps a handler error to the ResponseKind a
// peer uses to decide whether retrying elsewhere is worthwhile.
func classifyRequestError(err error) wire.ResponseKind {
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return wire.ResponseUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wire.ResponseTimeout
	}
	return wire.ResponseInternal
}

func responseKindToPacketResult(kind wire.ResponseKind) wire.PacketResult {
	switch kind {
	case wire.ResponseTimeout:
		return wire.PacketTimedOut
	case wire.ResponseUnavailable:
		return wire.PacketConnectionRefused
	default:
		return wire.PacketOther
	}
}
