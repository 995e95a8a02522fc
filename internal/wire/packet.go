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
	"fmt"
	"io"
)

// PacketChunkSize is the size of the buffer CopyAsPackets copies
// source bytes into before emitting one Packet per buffer.
const PacketChunkSize = 64 * 1024

// Packet is one record of a streamed request or response body.
// Result == PacketOK with an empty Payload marks end-of-stream; any
// other Result terminates the stream with the mapped error.
type Packet struct {
	Result  PacketResult
	Message string
	Payload []byte
}

// WritePacket serializes p as [Result 1B][Message][Payload] and writes
// it as one call to w, so that — like Container — one Packet becomes
// one record of the underlying framed cipher stream.
func WritePacket(w io.Writer, p Packet) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Result))
	putString(&buf, p.Message)
	putUint32(&buf, uint32(len(p.Payload)))
	buf.Write(p.Payload)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// ReadPacket reads exactly one record from r and decodes it as a
// Packet.
func ReadPacket(r io.Reader) (Packet, error) {
	buf, err := readFullRecord(r)
	if err != nil {
		return Packet{}, fmt.Errorf("reading packet: %w", err)
	}
	br := bytes.NewReader(buf)
	resultByte, err := br.ReadByte()
	if err != nil {
		return Packet{}, fmt.Errorf("reading packet result: %w", err)
	}
	message, err := getString(br)
	if err != nil {
		return Packet{}, fmt.Errorf("reading packet message: %w", err)
	}
	length, err := getUint32(br)
	if err != nil {
		return Packet{}, fmt.Errorf("reading packet length: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return Packet{}, fmt.Errorf("reading packet payload: %w", err)
	}
	return Packet{Result: PacketResult(resultByte), Message: message, Payload: payload}, nil
}

// CopyAsPackets copies src into w as a sequence of PacketChunkSize OK
// Packets followed by a terminal empty OK Packet. If src.Read fails
// partway through, the error is not dropped: it is transmitted as one
// Packet carrying the mapped error kind, which terminates the stream
// on the receiving side instead of a successful close.
func CopyAsPackets(w io.Writer, src io.Reader) error {
	buf := make([]byte, PacketChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := WritePacket(w, Packet{Result: PacketOK, Payload: append([]byte(nil), buf[:n]...)}); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return WritePacket(w, Packet{Result: PacketOK})
			}
			result := ErrorToPacketResult(err)
			return WritePacket(w, Packet{Result: result, Message: err.Error()})
		}
	}
}

// PacketReader presents an incoming Packet stream as a blocking
// io.Reader: Read returns bytes of the current Packet, fetching the
// next Packet off next() on exhaustion. A terminal empty OK Packet
// yields io.EOF; a non-OK Packet yields the mapped error.
type PacketReader struct {
	next func() (Packet, error)
	buf  []byte
	done bool
	err  error
}

// NewPacketReader builds a PacketReader that calls next to obtain
// successive Packets — typically wired to read the next frame off a
// cipher.Stream, or to drain a channel fed by a Dispatcher.
func NewPacketReader(next func() (Packet, error)) *PacketReader {
	return &PacketReader{next: next}
}

// Read implements io.Reader.
func (r *PacketReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.done {
			if r.err != nil {
				return 0, r.err
			}
			return 0, io.EOF
		}
		packet, err := r.next()
		if err != nil {
			r.done = true
			r.err = err
			return 0, err
		}
		if packet.Result != PacketOK {
			r.done = true
			r.err = PacketResultToError(packet.Result, packet.Message)
			return 0, r.err
		}
		if len(packet.Payload) == 0 {
			r.done = true
			return 0, io.EOF
		}
		r.buf = packet.Payload
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
