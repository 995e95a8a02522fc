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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"

	"github.com/delix/delix/internal/transport"
)

// Requester is the subset of transport.Direct a Server dispatches
// requests through.
type Requester interface {
	Request(name string, body io.Reader) (io.Reader, error)
}

// Server is an HTTP ingress that relays each inbound request into the
// mesh as a Request named by a header, forwarding the request
// byte-for-byte (headers included) and streaming the response back
// raw, the way the source's HTTP relay proxies a request to whatever
// speaks the wire protocol the target service expects.
type Server struct {
	requester   Requester
	headerField string
	logger      *slog.Logger
}

// NewServer builds a Server that reads the target service name from
// headerField on every inbound request.
func NewServer(requester Requester, headerField string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{requester: requester, headerField: headerField, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get(s.headerField)
	if name == "" {
		http.Error(w, fmt.Sprintf("missing %s header", s.headerField), http.StatusBadRequest)
		return
	}

	raw, err := httputil.DumpRequest(r, true)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusInternalServerError)
		return
	}

	response, err := s.requester.Request(name, bytes.NewReader(raw))
	if err != nil {
		s.writeError(w, name, err)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		s.logger.Warn("hijacking connection", "service", name, "error", err)
		return
	}
	defer conn.Close()

	if _, err := io.Copy(bufrw, response); err != nil {
		s.logger.Warn("streaming response", "service", name, "error", err)
		return
	}
	bufrw.Flush()
}

func (s *Server) writeError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, transport.ErrServiceNotFound):
		http.Error(w, fmt.Sprintf("service %q not found", name), http.StatusBadGateway)
	default:
		http.Error(w, fmt.Sprintf("service %q unavailable: %v", name, err), http.StatusServiceUnavailable)
	}
}
