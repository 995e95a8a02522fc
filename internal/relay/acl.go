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

package relay

import (
	"fmt"
	"net"
	"net/http"
)

// ACL restricts the relay's ingress HTTP server by client IP or CIDR,
// deny-by-default: a client is allowed only if its address falls
// inside at least one configured network. An ACL with no networks
// allows every client.
type ACL struct {
	nets []*net.IPNet
}

// NewACL parses cidrs (e.g. "10.0.1.0/24", "127.0.0.1/32") into an
// ACL.
func NewACL(cidrs []string) (*ACL, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("relay: parsing allowed CIDR %q: %w", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	return &ACL{nets: nets}, nil
}

// Middleware wraps next with a check that rejects disallowed clients
// with 403 Forbidden.
func (a *ACL) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allowed(r.RemoteAddr) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allowed reports whether remoteAddr (host:port, or a bare host) is
// permitted.
func (a *ACL) Allowed(remoteAddr string) bool {
	if len(a.nets) == 0 {
		return true
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
