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
	"crypto/x509"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/delix/delix/internal/ca"
)

func TestWrapTLSNilConfigIsNoOp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer raw.Close()
		_, err = wrapTLSServer(raw, nil)
		serverErr <- err
	}()

	raw, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer raw.Close()

	wrapped, err := wrapTLSClient(raw, listener.Addr().String(), nil)
	if err != nil {
		t.Fatalf("wrapTLSClient(nil): %v", err)
	}
	if wrapped != raw {
		t.Error("expected a nil tlsConfig to return the raw connection unchanged")
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("wrapTLSServer(nil): %v", err)
	}
}

func newTestMeshTLSConfig(t *testing.T, commonName string) *tls.Config {
	t.Helper()

	authority, err := ca.Generate(time.Hour)
	if err != nil {
		t.Fatalf("ca.Generate: %v", err)
	}
	certPEM, keyPEM, err := authority.IssueNodeCertificate(commonName, time.Hour)
	if err != nil {
		t.Fatalf("IssueNodeCertificate: %v", err)
	}

	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.pem")
	certPath := filepath.Join(dir, "node.pem")
	keyPath := filepath.Join(dir, "node-key.pem")
	if err := os.WriteFile(caPath, authority.CertPEM, 0644); err != nil {
		t.Fatalf("writing CA: %v", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		t.Fatalf("writing cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0644); err != nil {
		t.Fatalf("writing key: %v", err)
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadX509KeyPair: %v", err)
	}
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		t.Fatalf("reading CA: %v", err)
	}
	pool := newCertPool(t, caCert)

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
}

func newCertPool(t *testing.T, pem []byte) *x509.CertPool {
	t.Helper()
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		t.Fatal("failed to parse CA certificate")
	}
	return pool
}

func TestWrapTLSHandshakeBothDirections(t *testing.T) {
	serverCfg := newTestMeshTLSConfig(t, "127.0.0.1")
	clientCfg := newTestMeshTLSConfig(t, "node-b")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer raw.Close()

		wrapped, err := wrapTLSServer(raw, serverCfg)
		if err != nil {
			serverErr <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(wrapped, buf); err != nil {
			serverErr <- err
			return
		}
		_, err = wrapped.Write(buf)
		serverErr <- err
	}()

	raw, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer raw.Close()

	wrapped, err := wrapTLSClient(raw, listener.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("wrapTLSClient: %v", err)
	}
	if _, err := wrapped.Write([]byte("hello")); err != nil {
		t.Fatalf("writing: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(wrapped, buf); err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("got %q, want %q", buf, "hello")
	}

	if err := <-serverErr; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestWrapTLSClientRejectsUntrustedServer(t *testing.T) {
	serverCfg := newTestMeshTLSConfig(t, "127.0.0.1")
	otherCfg := newTestMeshTLSConfig(t, "node-c")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	go func() {
		raw, err := listener.Accept()
		if err != nil {
			return
		}
		defer raw.Close()
		wrapTLSServer(raw, serverCfg)
	}()

	raw, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer raw.Close()

	if _, err := wrapTLSClient(raw, listener.Addr().String(), otherCfg); err == nil {
		t.Fatal("expected the handshake against a CA-foreign server to fail")
	}
}
