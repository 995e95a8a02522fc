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

package registry

import (
	"io"

	"github.com/delix/delix/internal/wire"
)

// Handler answers one inbound request. It receives the request body as
// a reader and returns either a reader over the response body or an
// error describing why the request could not be served. Handlers must
// be safe for concurrent invocation and may block; there is no
// back-pressure or cancellation beyond the caller giving up on reading
// the result.
type Handler func(reader io.Reader) (io.Reader, error)

// Link routes to a service: either a local handler, or a remote peer
// known to offer the same service name.
type Link struct {
	// Local holds the handler when this Link is a local link, and is
	// nil for a remote Link.
	Local Handler
	// Remote holds the peer NodeID when this Link is a remote link.
	Remote wire.NodeID
	// IsLocal distinguishes the two variants (Remote's zero value is a
	// valid NodeID, so a bool tag is needed rather than a nil check).
	IsLocal bool
}

// LocalLink builds a Link wrapping a local handler.
func LocalLink(h Handler) Link {
	return Link{Local: h, IsLocal: true}
}

// RemoteLink builds a Link pointing at a remote peer.
func RemoteLink(id wire.NodeID) Link {
	return Link{Remote: id, IsLocal: false}
}
