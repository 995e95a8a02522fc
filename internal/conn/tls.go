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
	"crypto/tls"
	"fmt"
	"net"
	"strings"
)

// wrapTLSClient wraps raw in a TLS client handshake when tlsConfig is
// non-nil, deriving ServerName from address when the config doesn't
// already pin one. A nil tlsConfig is a no-op: the mesh's own framed
// cipher stream is the only encryption applied.
func wrapTLSClient(raw net.Conn, address string, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig == nil {
		return raw, nil
	}

	cfg := tlsConfig
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = hostOf(address)
	}

	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("tls client handshake with %s: %w", address, err)
	}
	return tlsConn, nil
}

// wrapTLSServer wraps raw in a TLS server handshake when tlsConfig is
// non-nil, requiring the dialer to present a certificate the mesh CA
// signed.
func wrapTLSServer(raw net.Conn, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig == nil {
		return raw, nil
	}

	tlsConn := tls.Server(raw, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("tls server handshake with %s: %w", raw.RemoteAddr(), err)
	}
	return tlsConn, nil
}

func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return strings.TrimSpace(address)
	}
	return host
}
