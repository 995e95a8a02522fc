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

// Package cipher implements the framed cipher stream: a
// length-prefixed record layer over a byte-oriented full-duplex
// stream, with AEAD applied per record by a pluggable Cipher.
package cipher

// Cipher is the capability set the framed stream requires of its
// encryption collaborator. TLS/AEAD primitives themselves are an
// external concern (see the core's Non-goals); Delix consumes any
// implementation of this small interface, including a stub for tests.
type Cipher interface {
	// Encrypt returns the ciphertext for plaintext. It may append a
	// nonce and/or authentication tag to the returned slice; the exact
	// framing is the cipher's concern.
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt returns the plaintext for ciphertext produced by
	// Encrypt, or an error if authentication fails.
	Decrypt(ciphertext []byte) ([]byte, error)
	// Clone returns a Cipher with independent internal state (e.g. a
	// fresh nonce counter) suitable for a second, concurrently used
	// stream direction.
	Clone() Cipher
}
