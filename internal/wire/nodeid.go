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

// Package wire implements the Delix wire format: node identifiers, the
// tagged Container envelope, and the Packet stream records that carry
// request and response bodies.
package wire

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// NodeIDSize is the fixed width of a NodeID, in bytes (40 bits).
const NodeIDSize = 5

// ErrInvalidNodeIDLength is returned when decoding a NodeID from bytes
// or hex of the wrong length.
var ErrInvalidNodeIDLength = errors.New("wire: invalid node id length")

// NodeID identifies a node in the mesh. It is compared and hashed by
// value, so it can be used directly as a map key.
type NodeID [NodeIDSize]byte

// NewRandomNodeID generates a NodeID from a cryptographically random
// source. Bind uses this once per process lifetime.
func NewRandomNodeID() (NodeID, error) {
	var id NodeID
	if _, err := rand.Read(id[:]); err != nil {
		return NodeID{}, fmt.Errorf("generating random node id: %w", err)
	}
	return id, nil
}

// NodeIDFromBytes copies a NodeID out of a byte slice of exactly
// NodeIDSize bytes.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	var id NodeID
	if len(b) != NodeIDSize {
		return NodeID{}, ErrInvalidNodeIDLength
	}
	copy(id[:], b)
	return id, nil
}

// NodeIDFromHex parses a NodeID from its hex representation.
func NodeIDFromHex(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("decoding node id hex: %w", err)
	}
	return NodeIDFromBytes(b)
}

// Bytes returns the NodeID as a newly allocated byte slice.
func (id NodeID) Bytes() []byte {
	out := make([]byte, NodeIDSize)
	copy(out, id[:])
	return out
}

// String returns the lowercase hex encoding of the NodeID.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (unset).
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}
