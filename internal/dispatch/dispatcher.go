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

// Package dispatch implements the Dispatcher: it maps inbound
// response Packets to the reader a Tracker handed its caller, keyed by
// request id.
package dispatch

import (
	"io"
	"sync"

	"github.com/delix/delix/internal/wire"
)

// Dispatcher demultiplexes Packets arriving on a Connection's read
// loop to the PacketReader a caller is draining for a given request
// id. Begin and Dispatch are safe for concurrent use.
type Dispatcher struct {
	mu      sync.RWMutex
	entries map[uint32]chan wire.Packet
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{entries: make(map[uint32]chan wire.Packet)}
}

// Begin registers a new sink for id and returns a reader that drains
// it. Packets pushed via Dispatch(id, ...) become available to the
// reader in order; an empty OK Packet or an error Packet closes the
// sink and removes the entry.
func (d *Dispatcher) Begin(id uint32) io.Reader {
	ch := make(chan wire.Packet, 16)

	d.mu.Lock()
	d.entries[id] = ch
	d.mu.Unlock()

	return wire.NewPacketReader(func() (wire.Packet, error) {
		p, ok := <-ch
		if !ok {
			return wire.Packet{}, io.ErrClosedPipe
		}
		return p, nil
	})
}

// Dispatch pushes one Packet to the sink registered for id, if any. An
// empty OK Packet (end-of-stream) or any non-OK Packet (error)
// removes the entry after delivering it, mirroring the source's
// write-then-maybe-remove semantics. Dispatch on an id with no
// registered sink (already completed, or never begun) is a no-op. If
// the sink's reader is not draining fast enough, the send blocks: a
// stalled consumer of this Connection's response stalls this
// Connection's read loop and no other, matching the policy that other
// connections are unaffected by one slow handler.
func (d *Dispatcher) Dispatch(id uint32, p wire.Packet) {
	remove := p.Result != wire.PacketOK || len(p.Payload) == 0

	d.mu.RLock()
	ch, ok := d.entries[id]
	d.mu.RUnlock()

	if ok {
		ch <- p
	}

	if remove {
		d.mu.Lock()
		if ch, ok := d.entries[id]; ok {
			close(ch)
			delete(d.entries, id)
		}
		d.mu.Unlock()
	}
}

// Len reports the number of in-flight sinks, for tests.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
