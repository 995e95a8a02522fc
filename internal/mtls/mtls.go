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

// Package mtls builds the TLS 1.3 mutual-auth configuration used by the
// mesh's optional mTLS transport mode.
//
// Unlike a conventional client/server split, every mesh node both dials
// outbound connections to peers and accepts inbound ones, so a single
// node certificate and a single tls.Config shape serve both directions:
// RootCAs and ClientCAs point at the same mesh certificate authority,
// and ClientAuth is always required, since a node accepting a
// connection wants the same peer-identity guarantee a node dialing one
// does.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewConfig builds a TLS 1.3 configuration for a mesh node from its
// node certificate/key pair and the mesh certificate authority. The
// returned config is suitable both for dialing peers (tls.Dial, with
// ServerName set to the target peer) and for accepting connections
// from them (tls.Listen); ClientAuth is always required since a mesh
// node's identity matters in either direction.
func NewConfig(caCertPath, nodeCertPath, nodeKeyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(nodeCertPath, nodeKeyPath)
	if err != nil {
		return nil, fmt.Errorf("mtls: loading node certificate: %w", err)
	}

	caPool, err := loadCACertPool(caCertPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}

func loadCACertPool(caCertPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("mtls: reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("mtls: failed to parse CA certificate from %s", caCertPath)
	}

	return pool, nil
}
