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

package ca

import (
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerateAndIssueNodeCertificate(t *testing.T) {
	authority, err := Generate(365 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	certPEM, keyPEM, err := authority.IssueNodeCertificate("node-a", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("IssueNodeCertificate: %v", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("parsing issued certificate/key pair: %v", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(authority.CertPEM) {
		t.Fatal("failed to add CA certificate to pool")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parsing leaf certificate: %v", err)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}}); err != nil {
		t.Errorf("leaf certificate did not verify against CA: %v", err)
	}
	if leaf.Subject.CommonName != "node-a" {
		t.Errorf("CommonName = %q, want %q", leaf.Subject.CommonName, "node-a")
	}
}

func TestLoadAuthorityRoundTrips(t *testing.T) {
	authority, err := Generate(24 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	loaded, err := LoadAuthority(authority.CertPEM, authority.KeyPEM)
	if err != nil {
		t.Fatalf("LoadAuthority: %v", err)
	}

	if _, _, err := loaded.IssueNodeCertificate("node-b", time.Hour); err != nil {
		t.Errorf("IssueNodeCertificate after reload: %v", err)
	}
}
