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

// Kind identifies the type of payload carried by a Container. Values
// are stable on the wire; never renumber an existing entry.
type Kind byte

const (
	// KindIntroduction carries the sender's NodeID and public address,
	// exchanged once at the start of a handshake.
	KindIntroduction Kind = iota + 1
	// KindPeers carries the sender's known (NodeID, public address)
	// pairs, sent once during the handshake to seed discovery.
	KindPeers
	// KindAddServices announces service names newly available locally
	// at the sender.
	KindAddServices
	// KindRemoveServices announces service names no longer available
	// locally at the sender.
	KindRemoveServices
	// KindAknowledge closes out the handshake; receiving one means the
	// counterpart has finished reading the introduction and peers.
	KindAknowledge
	// KindRequest opens an outbound request; its Packet stream carries
	// the request body.
	KindRequest
	// KindResponse answers a Request by id; its Packet stream carries
	// the response body, if any.
	KindResponse
)

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindIntroduction:
		return "Introduction"
	case KindPeers:
		return "Peers"
	case KindAddServices:
		return "AddServices"
	case KindRemoveServices:
		return "RemoveServices"
	case KindAknowledge:
		return "Aknowledge"
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	default:
		return "Unknown"
	}
}

// ResponseKind enumerates the outcome of a Response container.
type ResponseKind byte

const (
	ResponseOK ResponseKind = iota
	ResponseUnavailable
	ResponseTimeout
	ResponseInternal
)
