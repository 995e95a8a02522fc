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

import (
	stdcipher "crypto/cipher"
	"crypto/rand"

	"crypto/aes"
	"fmt"
	"io"
)

// AESGCM is the reference Cipher implementation: AES in Galois/Counter
// Mode, keyed from transport.cipher.key (16, 24, or 32 bytes selecting
// AES-128/192/256). Each Encrypt call generates a fresh random nonce
// and prefixes it to the ciphertext; Decrypt reads it back off the
// front of the buffer.
type AESGCM struct {
	gcm stdcipher.AEAD
	key []byte
}

// NewAESGCM builds an AESGCM cipher from a raw key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: building aes block: %w", err)
	}
	gcm, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: building gcm: %w", err)
	}
	return &AESGCM{gcm: gcm, key: key}, nil
}

// Encrypt implements Cipher.
func (c *AESGCM) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cipher: generating nonce: %w", err)
	}
	ciphertext := c.gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt implements Cipher.
func (c *AESGCM) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("cipher: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: authentication failed: %w", err)
	}
	return plaintext, nil
}

// Clone returns an AESGCM sharing the same key and AEAD construction;
// GCM instances carry no mutable nonce state (the nonce is generated
// fresh per Encrypt call), so Clone simply returns c.
func (c *AESGCM) Clone() Cipher {
	return c
}
