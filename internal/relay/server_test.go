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
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/delix/delix/internal/transport"
)

type fakeRequester struct {
	response string
	err      error
	gotName  string
	gotBody  string
}

func (f *fakeRequester) Request(name string, body io.Reader) (io.Reader, error) {
	f.gotName = name
	if data, err := io.ReadAll(body); err == nil {
		f.gotBody = string(data)
	}
	if f.err != nil {
		return nil, f.err
	}
	return strings.NewReader(f.response), nil
}

func TestServerMissingHeaderRejected(t *testing.T) {
	listener := startServer(t, &fakeRequester{}, "X-Delix-Service")
	defer listener.Close()

	resp, err := http.Get("http://" + listener.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestServerServiceNotFound(t *testing.T) {
	requester := &fakeRequester{err: transport.ErrServiceNotFound}
	listener := startServer(t, requester, "X-Delix-Service")
	defer listener.Close()

	req, err := http.NewRequest("GET", "http://"+listener.Addr().String()+"/", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Delix-Service", "unknown")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	if requester.gotName != "unknown" {
		t.Errorf("requested service = %q, want %q", requester.gotName, "unknown")
	}
}

func startServer(t *testing.T, requester Requester, headerField string) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	srv := &http.Server{Handler: NewServer(requester, headerField, nil)}
	go srv.Serve(listener)
	t.Cleanup(func() { srv.Close() })

	time.Sleep(10 * time.Millisecond)
	return listener
}
