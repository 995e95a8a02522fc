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
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrTruncated is returned when a container or packet payload is
// shorter than its declared fields require.
var ErrTruncated = errors.New("wire: truncated payload")

// PacketResult mirrors the standard io.Error kinds so that a Reader on
// either side of a connection can reconstruct a faithful error without
// a lossy translation. PacketOK paired with an empty payload marks
// end-of-stream; any other PacketResult terminates the stream with the
// corresponding error.
type PacketResult byte

const (
	PacketOK PacketResult = iota
	PacketNotFound
	PacketPermissionDenied
	PacketConnectionRefused
	PacketConnectionReset
	PacketConnectionAborted
	PacketNotConnected
	PacketAddrInUse
	PacketAddrNotAvailable
	PacketBrokenPipe
	PacketAlreadyExists
	PacketWouldBlock
	PacketInvalidInput
	PacketInvalidData
	PacketTimedOut
	PacketWriteZero
	PacketInterrupted
	PacketUnexpectedEOF
	PacketOther
)

// ErrorToPacketResult maps a Go error (as produced by net.Conn I/O) to
// the PacketResult kind that best preserves its meaning across the
// wire.
func ErrorToPacketResult(err error) PacketResult {
	if err == nil {
		return PacketOK
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return PacketUnexpectedEOF
	case errors.Is(err, io.ErrClosedPipe):
		return PacketBrokenPipe
	case errors.Is(err, syscall.ECONNRESET):
		return PacketConnectionReset
	case errors.Is(err, syscall.EPIPE):
		return PacketBrokenPipe
	case errors.Is(err, syscall.ECONNREFUSED):
		return PacketConnectionRefused
	case errors.Is(err, syscall.ECONNABORTED):
		return PacketConnectionAborted
	case errors.Is(err, syscall.ENOTCONN):
		return PacketNotConnected
	case errors.Is(err, syscall.EADDRINUSE):
		return PacketAddrInUse
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return PacketAddrNotAvailable
	case errors.Is(err, syscall.EEXIST):
		return PacketAlreadyExists
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		return PacketWouldBlock
	case errors.Is(err, syscall.EINTR):
		return PacketInterrupted
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return PacketPermissionDenied
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return PacketTimedOut
	}
	return PacketOther
}

// PacketResultToError maps a PacketResult received off the wire back
// to a Go error, the inverse of ErrorToPacketResult. PacketOK always
// maps to nil; end-of-stream (PacketOK plus an empty payload) is
// handled by the Packet reader, not here.
func PacketResultToError(result PacketResult, message string) error {
	if result == PacketOK {
		return nil
	}
	kind := packetResultKind(result)
	if message == "" {
		message = kind.String()
	}
	return &net.OpError{Op: "read", Err: &wireError{kind: kind, message: message}}
}

func packetResultKind(result PacketResult) PacketResultKind {
	if m, ok := packetResultKinds[result]; ok {
		return m
	}
	return KindOther
}

// PacketResultKind names the I/O-error-shaped category a PacketResult
// belongs to, for logging and tests.
type PacketResultKind int

const (
	KindOther PacketResultKind = iota
	KindNotFound
	KindPermissionDenied
	KindConnectionRefused
	KindConnectionReset
	KindConnectionAborted
	KindNotConnected
	KindAddrInUse
	KindAddrNotAvailable
	KindBrokenPipe
	KindAlreadyExists
	KindWouldBlock
	KindInvalidInput
	KindInvalidData
	KindTimedOut
	KindWriteZero
	KindInterrupted
	KindUnexpectedEOF
)

func (k PacketResultKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindConnectionRefused:
		return "connection refused"
	case KindConnectionReset:
		return "connection reset"
	case KindConnectionAborted:
		return "connection aborted"
	case KindNotConnected:
		return "not connected"
	case KindAddrInUse:
		return "address in use"
	case KindAddrNotAvailable:
		return "address not available"
	case KindBrokenPipe:
		return "broken pipe"
	case KindAlreadyExists:
		return "already exists"
	case KindWouldBlock:
		return "would block"
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidData:
		return "invalid data"
	case KindTimedOut:
		return "timed out"
	case KindWriteZero:
		return "write zero"
	case KindInterrupted:
		return "interrupted"
	case KindUnexpectedEOF:
		return "unexpected eof"
	default:
		return "other"
	}
}

var packetResultKinds = map[PacketResult]PacketResultKind{
	PacketNotFound:           KindNotFound,
	PacketPermissionDenied:   KindPermissionDenied,
	PacketConnectionRefused:  KindConnectionRefused,
	PacketConnectionReset:    KindConnectionReset,
	PacketConnectionAborted:  KindConnectionAborted,
	PacketNotConnected:       KindNotConnected,
	PacketAddrInUse:          KindAddrInUse,
	PacketAddrNotAvailable:   KindAddrNotAvailable,
	PacketBrokenPipe:         KindBrokenPipe,
	PacketAlreadyExists:      KindAlreadyExists,
	PacketWouldBlock:         KindWouldBlock,
	PacketInvalidInput:       KindInvalidInput,
	PacketInvalidData:        KindInvalidData,
	PacketTimedOut:           KindTimedOut,
	PacketWriteZero:          KindWriteZero,
	PacketInterrupted:        KindInterrupted,
	PacketUnexpectedEOF:      KindUnexpectedEOF,
}

// wireError is a minimal error carrying a PacketResultKind, so callers
// can recover it with errors.As.
type wireError struct {
	kind    PacketResultKind
	message string
}

func (e *wireError) Error() string { return e.message }

// ResultKindOf returns the PacketResultKind of err if it (or something
// it wraps) is a wire error produced from a remote Packet failure.
func ResultKindOf(err error) (PacketResultKind, bool) {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var we *wireError
		if errors.As(opErr.Err, &we) {
			return we.kind, true
		}
	}
	var we *wireError
	if errors.As(err, &we) {
		return we.kind, true
	}
	return KindOther, false
}
