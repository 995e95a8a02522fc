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
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/delix/delix/internal/cipher"
	"github.com/delix/delix/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNodeID(t *testing.T) wire.NodeID {
	t.Helper()
	id, err := wire.NewRandomNodeID()
	if err != nil {
		t.Fatalf("NewRandomNodeID: %v", err)
	}
	return id
}

// handshakePair dials and accepts one connection over a loopback
// listener with the given handlers on each side, returning both ends
// already past the handshake.
func handshakePair(t *testing.T, acceptorHandlers, dialerHandlers Handlers) (dialer, acceptor *Connection, acceptorID, dialerID wire.NodeID) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	acceptorID = newNodeID(t)
	dialerID = newNodeID(t)

	type acceptResult struct {
		conn *Connection
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			acceptCh <- acceptResult{err: err}
			return
		}
		c, err := AcceptInbound(raw, cipher.Null{}, 0, acceptorID, listener.Addr().String(), nil, nil, 0, acceptorHandlers, discardLogger())
		acceptCh <- acceptResult{conn: c, err: err}
	}()

	dialerConn, _, err := DialOutbound(listener.Addr().String(), cipher.Null{}, 0, dialerID, "dialer-address", nil, 0, dialerHandlers, discardLogger())
	if err != nil {
		t.Fatalf("DialOutbound: %v", err)
	}

	result := <-acceptCh
	if result.err != nil {
		t.Fatalf("AcceptInbound: %v", result.err)
	}

	return dialerConn, result.conn, acceptorID, dialerID
}

func TestHandshakeExchangesPeerIdentity(t *testing.T) {
	dialerConn, acceptorConn, acceptorID, dialerID := handshakePair(t, Handlers{}, Handlers{})
	defer dialerConn.Close()
	defer acceptorConn.Close()

	if dialerConn.PeerID() != acceptorID {
		t.Errorf("dialer's peer = %s, want %s", dialerConn.PeerID(), acceptorID)
	}
	if acceptorConn.PeerID() != dialerID {
		t.Errorf("acceptor's peer = %s, want %s", acceptorConn.PeerID(), dialerID)
	}
	if acceptorConn.PeerPublicAddress() != "dialer-address" {
		t.Errorf("acceptor's view of dialer's address = %q, want %q", acceptorConn.PeerPublicAddress(), "dialer-address")
	}
}

func TestSendRequestRoundTrip(t *testing.T) {
	acceptorHandlers := Handlers{
		OnRequest: func(peer wire.NodeID, name string, body io.Reader) (io.Reader, error) {
			data, err := io.ReadAll(body)
			if err != nil {
				return nil, err
			}
			if name != "echo" {
				t.Errorf("request name = %q, want %q", name, "echo")
			}
			return bytes.NewReader(append([]byte("got:"), data...)), nil
		},
	}

	dialerConn, acceptorConn, _, _ := handshakePair(t, acceptorHandlers, Handlers{})
	defer dialerConn.Close()
	defer acceptorConn.Close()

	reader, err := dialerConn.SendRequest(1, "echo", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if string(got) != "got:hello" {
		t.Errorf("response = %q, want %q", got, "got:hello")
	}
}

func TestSendRequestNoHandlerInstalled(t *testing.T) {
	dialerConn, acceptorConn, _, _ := handshakePair(t, Handlers{}, Handlers{})
	defer dialerConn.Close()
	defer acceptorConn.Close()

	reader, err := dialerConn.SendRequest(1, "missing", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := io.ReadAll(reader); err == nil {
		t.Fatal("expected an error reading the response to an unhandled request")
	}
}

func TestAddRemoveServicesNotifiesPeer(t *testing.T) {
	added := make(chan []string, 1)
	removed := make(chan []string, 1)
	acceptorHandlers := Handlers{
		OnAddServices:    func(peer wire.NodeID, names []string) { added <- names },
		OnRemoveServices: func(peer wire.NodeID, names []string) { removed <- names },
	}

	dialerConn, acceptorConn, _, _ := handshakePair(t, acceptorHandlers, Handlers{})
	defer dialerConn.Close()
	defer acceptorConn.Close()

	if err := dialerConn.SendAddServices([]string{"alpha", "beta"}); err != nil {
		t.Fatalf("SendAddServices: %v", err)
	}
	select {
	case names := <-added:
		if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
			t.Errorf("added = %v, want [alpha beta]", names)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnAddServices")
	}

	if err := dialerConn.SendRemoveServices([]string{"alpha"}); err != nil {
		t.Fatalf("SendRemoveServices: %v", err)
	}
	select {
	case names := <-removed:
		if len(names) != 1 || names[0] != "alpha" {
			t.Errorf("removed = %v, want [alpha]", names)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnRemoveServices")
	}
}

func TestCloseTriggersOnShutdown(t *testing.T) {
	shutdown := make(chan error, 1)
	dialerConn, acceptorConn, _, _ := handshakePair(t, Handlers{}, Handlers{
		OnShutdown: func(peer wire.NodeID, err error) { shutdown <- err },
	})
	defer acceptorConn.Close()

	if err := dialerConn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice must be safe.
	if err := dialerConn.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnShutdown")
	}
}

// TestCloseJoinsReadLoopBeforeReturning verifies Close does not return
// until the read loop has exited: OnShutdown must already have fired
// by the time Close returns, not merely been scheduled.
func TestCloseJoinsReadLoopBeforeReturning(t *testing.T) {
	var delivered bool
	dialerConn, acceptorConn, _, _ := handshakePair(t, Handlers{}, Handlers{
		OnShutdown: func(peer wire.NodeID, err error) {
			time.Sleep(20 * time.Millisecond)
			delivered = true
		},
	})
	defer acceptorConn.Close()

	if err := dialerConn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !delivered {
		t.Error("Close returned before the read loop finished delivering OnShutdown")
	}
}

func TestDialOutboundUnreachableAddress(t *testing.T) {
	if _, _, err := DialOutbound("127.0.0.1:0", cipher.Null{}, 0, newNodeID(t), "", nil, 0, Handlers{}, discardLogger()); err == nil {
		t.Fatal("expected an error dialing an unreachable address")
	}
}

// TestDialOutboundHandshakeFailureReturnsPromptly exercises a
// handshake failure before the read loop ever starts: DialOutbound
// must return (not hang) even though no read loop exists to join.
func TestDialOutboundHandshakeFailureReturnsPromptly(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	go func() {
		raw, err := listener.Accept()
		if err != nil {
			return
		}
		raw.Close() // Drop the connection before sending anything back.
	}()

	done := make(chan struct{})
	go func() {
		DialOutbound(listener.Addr().String(), cipher.Null{}, 0, newNodeID(t), "dialer-address", nil, 0, Handlers{}, discardLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DialOutbound did not return after a handshake failure with no read loop started")
	}
}
