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

package dispatch

import (
	"io"
	"testing"
	"time"

	"github.com/delix/delix/internal/wire"
)

func TestBeginDispatchRoundTrip(t *testing.T) {
	d := New()
	reader := d.Begin(1)

	d.Dispatch(1, wire.Packet{Result: wire.PacketOK, Payload: []byte("hello")})
	d.Dispatch(1, wire.Packet{Result: wire.PacketOK})

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestDispatchErrorPacketTerminatesReader(t *testing.T) {
	d := New()
	reader := d.Begin(2)

	d.Dispatch(2, wire.Packet{Result: wire.PacketNotFound, Message: "service not found"})

	_, err := io.ReadAll(reader)
	if err == nil {
		t.Fatal("expected an error from the terminal error packet, got nil")
	}
}

func TestDispatchTerminalPacketRemovesEntry(t *testing.T) {
	d := New()
	d.Begin(3)
	if got, want := d.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	d.Dispatch(3, wire.Packet{Result: wire.PacketOK})

	if got, want := d.Len(), 0; got != want {
		t.Errorf("Len() after terminal packet = %d, want %d", got, want)
	}
}

func TestDispatchUnknownIDIsNoOp(t *testing.T) {
	d := New()
	d.Dispatch(99, wire.Packet{Result: wire.PacketOK, Payload: []byte("x")})
	if got, want := d.Len(), 0; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

// TestDispatchBlocksWhenSinkIsFull verifies back-pressure: once the
// sink's buffered channel is saturated, Dispatch blocks until the
// reader drains it rather than dropping the packet.
func TestDispatchBlocksWhenSinkIsFull(t *testing.T) {
	d := New()
	reader := d.Begin(4)

	const count = 32
	done := make(chan struct{})
	go func() {
		for i := 0; i < count; i++ {
			d.Dispatch(4, wire.Packet{Result: wire.PacketOK, Payload: []byte("x")})
		}
		d.Dispatch(4, wire.Packet{Result: wire.PacketOK})
		close(done)
	}()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got, want := len(got), count; got != want {
		t.Errorf("bytes read = %d, want %d (a dropped packet would read short)", got, want)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch goroutine did not finish after the reader drained the sink")
	}
}
