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

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Container is the tagged wire envelope: a Kind plus an opaque payload.
// On the wire a Container is written as one record of the underlying
// framed cipher stream (see internal/cipher), so ReadContainer and
// WriteContainer operate on a plain io.Reader/io.Writer — whatever
// framing and encryption happens below is transparent here.
type Container struct {
	Kind    Kind
	Payload []byte
}

// WriteContainer serializes c as [Kind 1B][Payload] and writes it as a
// single call to w. Callers typically pass one cipher.Stream frame per
// call so that one Container becomes one on-wire record.
func WriteContainer(w io.Writer, c Container) error {
	buf := make([]byte, 1+len(c.Payload))
	buf[0] = byte(c.Kind)
	copy(buf[1:], c.Payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing container: %w", err)
	}
	return nil
}

// ReadContainer reads exactly one record from r and decodes it as a
// Container. r must yield one complete record per Read the way
// cipher.Stream does.
func ReadContainer(r io.Reader) (Container, error) {
	buf, err := readFullRecord(r)
	if err != nil {
		return Container{}, fmt.Errorf("reading container: %w", err)
	}
	if len(buf) < 1 {
		return Container{}, fmt.Errorf("reading container: %w", io.ErrUnexpectedEOF)
	}
	payload := make([]byte, len(buf)-1)
	copy(payload, buf[1:])
	return Container{Kind: Kind(buf[0]), Payload: payload}, nil
}

// fullRecordReader is implemented by readers, such as cipher.Stream,
// that can hand back an entire decrypted record in one call. A plain
// io.Reader's Read may return fewer bytes than requested even mid
// record, so readFullRecord prefers this whenever the underlying
// reader offers it rather than trusting a single fixed-size Read to
// have captured a whole record — a record bigger than the scratch
// buffer (e.g. a full PacketChunkSize OK packet) would otherwise be
// truncated, permanently desyncing every later Container/Packet parsed
// off the same stream.
type fullRecordReader interface {
	ReadRecord() ([]byte, error)
}

// readFullRecord drains one logical record from r. When r implements
// fullRecordReader, the record is returned whole regardless of size.
// Otherwise r is assumed to hand back one complete record per Read
// call, which holds for the small, fully-buffered readers wire's own
// tests construct directly (e.g. bytes.Buffer over a single write).
func readFullRecord(r io.Reader) ([]byte, error) {
	if fr, ok := r.(fullRecordReader); ok {
		return fr.ReadRecord()
	}
	chunk := make([]byte, 64*1024)
	n, err := r.Read(chunk)
	if err != nil {
		return nil, err
	}
	return chunk[:n], nil
}

func putUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func putString(buf *bytes.Buffer, s string) {
	b := []byte(s)
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(b)))
	buf.Write(length[:])
	buf.Write(b)
}

func getString(r io.Reader) (string, error) {
	var length [2]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(length[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
