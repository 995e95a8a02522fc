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

// Package relay exposes local TCP/HTTP backends as mesh services and
// relays inbound HTTP requests into the mesh by service name.
package relay

import (
	"fmt"
	"io"
	"net"

	"github.com/delix/delix/internal/registry"
)

// Registrar is the subset of transport.Direct that RegisterBackend
// needs: installing a local handler under a service name.
type Registrar interface {
	Register(name string, handler registry.Handler) error
}

// RegisterBackend installs a local handler for name that forwards
// every request body byte-for-byte to backendAddress over a fresh TCP
// connection and returns the backend's raw response as the request's
// result — turning any TCP/HTTP service already running on this host
// into a mesh service.
func RegisterBackend(registrar Registrar, name, backendAddress string) error {
	return registrar.Register(name, func(request io.Reader) (io.Reader, error) {
		conn, err := net.Dial("tcp", backendAddress)
		if err != nil {
			return nil, fmt.Errorf("relay: dialing backend %s for %q: %w", backendAddress, name, err)
		}

		if _, err := io.Copy(conn, request); err != nil {
			conn.Close()
			return nil, fmt.Errorf("relay: forwarding request to backend %s for %q: %w", backendAddress, name, err)
		}
		if c, ok := conn.(*net.TCPConn); ok {
			c.CloseWrite()
		}

		return closeOnEOF{conn}, nil
	})
}

// closeOnEOF closes the wrapped connection once it has been fully
// drained, so a request handler's caller that only reads to EOF
// (rather than explicitly closing) doesn't leak the backend socket.
type closeOnEOF struct {
	net.Conn
}

func (c closeOnEOF) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		c.Conn.Close()
	}
	return n, err
}
