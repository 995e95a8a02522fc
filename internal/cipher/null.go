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

package cipher

// Null is a pass-through Cipher used in tests and in configurations
// that delegate confidentiality to an outer transport (e.g. a TLS
// listener terminated ahead of the mesh). It performs no
// transformation, so a Stream built over it degrades to plain framing.
type Null struct{}

// Encrypt implements Cipher.
func (Null) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Decrypt implements Cipher.
func (Null) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

// Clone implements Cipher.
func (n Null) Clone() Cipher { return n }
