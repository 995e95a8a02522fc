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
	"io"
	"net"
	"testing"

	"github.com/delix/delix/internal/registry"
)

type fakeRegistrar struct {
	handler registry.Handler
}

func (f *fakeRegistrar) Register(name string, handler registry.Handler) error {
	f.handler = handler
	return nil
}

func TestRegisterBackendForwardsAndReturnsResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 5)
		io.ReadFull(conn, buf)
		if string(buf) != "hello" {
			t.Errorf("backend received %q, want %q", buf, "hello")
		}
		conn.Write([]byte("world"))
	}()

	reg := &fakeRegistrar{}
	if err := RegisterBackend(reg, "echo", listener.Addr().String()); err != nil {
		t.Fatalf("RegisterBackend: %v", err)
	}

	response, err := reg.handler(bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	got, err := io.ReadAll(response)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("response = %q, want %q", got, "world")
	}
}

func TestRegisterBackendFailsOnUnreachableAddress(t *testing.T) {
	reg := &fakeRegistrar{}
	if err := RegisterBackend(reg, "echo", "127.0.0.1:0"); err != nil {
		t.Fatalf("RegisterBackend: %v", err)
	}

	if _, err := reg.handler(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected an error dialing an unreachable backend")
	}
}
