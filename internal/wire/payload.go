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

package wire

import (
	"bytes"
	"fmt"
)

// Peer is one entry of a Peers container: a NodeID and the address the
// peer advertised as its own public address.
type Peer struct {
	ID            NodeID
	PublicAddress string
}

// PackIntroduction builds the Container a node sends at the start of a
// handshake: its own NodeID and the public address it wants peers to
// dial back on.
func PackIntroduction(id NodeID, publicAddress string) Container {
	var buf bytes.Buffer
	buf.Write(id[:])
	putString(&buf, publicAddress)
	return Container{Kind: KindIntroduction, Payload: buf.Bytes()}
}

// UnpackIntroduction parses an Introduction container's payload.
func UnpackIntroduction(c Container) (NodeID, string, error) {
	if c.Kind != KindIntroduction {
		return NodeID{}, "", fmt.Errorf("unpacking introduction: unexpected kind %s", c.Kind)
	}
	if len(c.Payload) < NodeIDSize {
		return NodeID{}, "", fmt.Errorf("unpacking introduction: %w", ErrTruncated)
	}
	id, err := NodeIDFromBytes(c.Payload[:NodeIDSize])
	if err != nil {
		return NodeID{}, "", err
	}
	r := bytes.NewReader(c.Payload[NodeIDSize:])
	addr, err := getString(r)
	if err != nil {
		return NodeID{}, "", fmt.Errorf("unpacking introduction address: %w", err)
	}
	return id, addr, nil
}

// PackPeers builds the Peers container sent once during the handshake
// to seed discovery of the rest of the mesh.
func PackPeers(peers []Peer) Container {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(peers)))
	for _, p := range peers {
		buf.Write(p.ID[:])
		putString(&buf, p.PublicAddress)
	}
	return Container{Kind: KindPeers, Payload: buf.Bytes()}
}

// UnpackPeers parses a Peers container's payload.
func UnpackPeers(c Container) ([]Peer, error) {
	if c.Kind != KindPeers {
		return nil, fmt.Errorf("unpacking peers: unexpected kind %s", c.Kind)
	}
	r := bytes.NewReader(c.Payload)
	count, err := getUint32(r)
	if err != nil {
		return nil, fmt.Errorf("unpacking peers count: %w", err)
	}
	peers := make([]Peer, 0, count)
	for i := uint32(0); i < count; i++ {
		var raw [NodeIDSize]byte
		if _, err := r.Read(raw[:]); err != nil {
			return nil, fmt.Errorf("unpacking peer id: %w", err)
		}
		addr, err := getString(r)
		if err != nil {
			return nil, fmt.Errorf("unpacking peer address: %w", err)
		}
		peers = append(peers, Peer{ID: NodeID(raw), PublicAddress: addr})
	}
	return peers, nil
}

// PackAddServices builds the AddServices container announcing newly
// available local service names.
func PackAddServices(names []string) Container {
	return packNames(KindAddServices, names)
}

// UnpackAddServices parses an AddServices container's payload.
func UnpackAddServices(c Container) ([]string, error) {
	return unpackNames(KindAddServices, c)
}

// PackRemoveServices builds the RemoveServices container announcing
// service names no longer available locally.
func PackRemoveServices(names []string) Container {
	return packNames(KindRemoveServices, names)
}

// UnpackRemoveServices parses a RemoveServices container's payload.
func UnpackRemoveServices(c Container) ([]string, error) {
	return unpackNames(KindRemoveServices, c)
}

func packNames(kind Kind, names []string) Container {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(names)))
	for _, name := range names {
		putString(&buf, name)
	}
	return Container{Kind: kind, Payload: buf.Bytes()}
}

func unpackNames(kind Kind, c Container) ([]string, error) {
	if c.Kind != kind {
		return nil, fmt.Errorf("unpacking %s: unexpected kind %s", kind, c.Kind)
	}
	r := bytes.NewReader(c.Payload)
	count, err := getUint32(r)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s count: %w", kind, err)
	}
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := getString(r)
		if err != nil {
			return nil, fmt.Errorf("unpacking %s name: %w", kind, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// PackAknowledge builds the empty Aknowledge container that closes out
// a handshake.
func PackAknowledge() Container {
	return Container{Kind: KindAknowledge}
}

// UnpackAknowledge validates an Aknowledge container's kind.
func UnpackAknowledge(c Container) error {
	if c.Kind != KindAknowledge {
		return fmt.Errorf("unpacking aknowledge: unexpected kind %s", c.Kind)
	}
	return nil
}

// PackRequest builds the Container that opens an outbound request; its
// body follows as a Packet stream.
func PackRequest(id uint32, name string) Container {
	var buf bytes.Buffer
	putUint32(&buf, id)
	putString(&buf, name)
	return Container{Kind: KindRequest, Payload: buf.Bytes()}
}

// UnpackRequest parses a Request container's payload.
func UnpackRequest(c Container) (uint32, string, error) {
	if c.Kind != KindRequest {
		return 0, "", fmt.Errorf("unpacking request: unexpected kind %s", c.Kind)
	}
	r := bytes.NewReader(c.Payload)
	id, err := getUint32(r)
	if err != nil {
		return 0, "", fmt.Errorf("unpacking request id: %w", err)
	}
	name, err := getString(r)
	if err != nil {
		return 0, "", fmt.Errorf("unpacking request name: %w", err)
	}
	return id, name, nil
}

// PackResponse builds the Container that answers a Request by id; its
// body (if any) follows as a Packet stream.
func PackResponse(requestID uint32, kind ResponseKind, message string) Container {
	var buf bytes.Buffer
	putUint32(&buf, requestID)
	buf.WriteByte(byte(kind))
	putString(&buf, message)
	return Container{Kind: KindResponse, Payload: buf.Bytes()}
}

// UnpackResponse parses a Response container's payload.
func UnpackResponse(c Container) (requestID uint32, kind ResponseKind, message string, err error) {
	if c.Kind != KindResponse {
		return 0, 0, "", fmt.Errorf("unpacking response: unexpected kind %s", c.Kind)
	}
	r := bytes.NewReader(c.Payload)
	requestID, err = getUint32(r)
	if err != nil {
		return 0, 0, "", fmt.Errorf("unpacking response id: %w", err)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return 0, 0, "", fmt.Errorf("unpacking response kind: %w", err)
	}
	message, err = getString(r)
	if err != nil {
		return 0, 0, "", fmt.Errorf("unpacking response message: %w", err)
	}
	return requestID, ResponseKind(kindByte), message, nil
}
