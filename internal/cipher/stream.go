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
	"encoding/binary"
	"fmt"
	"io"
)

// maxRecordSize bounds the length field read off the wire, so a
// corrupt or hostile length prefix cannot force an unbounded
// allocation.
const maxRecordSize = 64 * 1024 * 1024

// Stream wraps a byte-oriented io.ReadWriteCloser and transmits each
// logical record as an 8-byte big-endian length followed by the AEAD
// ciphertext of the payload (see spec §4.1/§6). Reads buffer one
// decrypted record at a time; a Read call returns bytes from the
// current record, fetching the next record off the wire once the
// current one is exhausted. Writes are atomic per record: one Write
// call produces one frame.
type Stream struct {
	rw     io.ReadWriteCloser
	cipher Cipher
	buf    []byte
}

// NewStream wraps rw with cipher. cipher.Clone is not called here:
// callers that need independent read/write cipher state (e.g. separate
// nonce counters per direction) should pass already-cloned ciphers for
// the read and write sides via two Streams sharing the same rw, or a
// Cipher implementation that manages its own per-direction state
// internally.
func NewStream(rw io.ReadWriteCloser, cipher Cipher) *Stream {
	return &Stream{rw: rw, cipher: cipher}
}

// Write implements io.Writer. One call encrypts buffer, prefixes it
// with its length, and writes both in a single underlying Write where
// possible.
func (s *Stream) Write(buffer []byte) (int, error) {
	ciphertext, err := s.cipher.Encrypt(buffer)
	if err != nil {
		return 0, fmt.Errorf("cipher: encrypting record: %w", err)
	}

	frame := make([]byte, 8+len(ciphertext))
	binary.BigEndian.PutUint64(frame[:8], uint64(len(ciphertext)))
	copy(frame[8:], ciphertext)

	if _, err := s.rw.Write(frame); err != nil {
		return 0, fmt.Errorf("cipher: writing record: %w", err)
	}
	return len(buffer), nil
}

// Read implements io.Reader. It returns bytes from the current
// decrypted record, reading and decrypting the next length-prefixed
// record once the current one is exhausted.
func (s *Stream) Read(buffer []byte) (int, error) {
	if len(s.buf) == 0 {
		record, err := s.readRecord()
		if err != nil {
			return 0, err
		}
		s.buf = record
	}

	n := copy(buffer, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *Stream) readRecord() ([]byte, error) {
	var lengthBytes [8]byte
	if _, err := io.ReadFull(s.rw, lengthBytes[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("cipher: truncated record length: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("cipher: reading record length: %w", err)
	}
	length := binary.BigEndian.Uint64(lengthBytes[:])
	if length > maxRecordSize {
		return nil, fmt.Errorf("cipher: record length %d exceeds maximum: %w", length, io.ErrUnexpectedEOF)
	}

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(s.rw, ciphertext); err != nil {
		return nil, fmt.Errorf("cipher: reading record body: %w", io.ErrUnexpectedEOF)
	}

	plaintext, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("cipher: decrypting record: %w", err)
	}
	return plaintext, nil
}

// ReadRecord returns the next full decrypted record in one call,
// regardless of its size. Unlike Read, which copies at most
// len(buffer) bytes and buffers any remainder for the next call,
// ReadRecord never splits a record across two returns — callers that
// need an entire record intact (internal/wire's Container and Packet
// codecs) must use this instead of Read.
func (s *Stream) ReadRecord() ([]byte, error) {
	if len(s.buf) > 0 {
		record := s.buf
		s.buf = nil
		return record, nil
	}
	return s.readRecord()
}

// Close closes the underlying stream.
func (s *Stream) Close() error {
	return s.rw.Close()
}
