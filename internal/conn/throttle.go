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
	"context"
	"io"
	"net"

	"golang.org/x/time/rate"
)

// maxThrottleBurst bounds a single throttled write's token reservation
// so a large outbound Packet doesn't block waiting on one huge burst.
const maxThrottleBurst = 256 * 1024

// throttledWriter is an io.Writer that limits outbound bytes on one
// connection to a token-bucket rate, so a single large response
// stream cannot starve a node's other peers of outbound bandwidth.
type throttledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
}

// newThrottledWriter wraps w with a bytesPerSec token-bucket limit. A
// bytesPerSec of zero disables throttling and returns w unwrapped.
func newThrottledWriter(w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	burst := int(bytesPerSec)
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}
	return &throttledWriter{w: w, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(context.Background(), chunk); err != nil {
			return written, err
		}
		n, err := tw.w.Write(p[:chunk])
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}

// throttledConn is a net.Conn whose Write side is bandwidth-limited,
// used to cap one connection's outbound rate without affecting reads
// or the connection's other net.Conn methods.
type throttledConn struct {
	net.Conn
	w io.Writer
}

func (c *throttledConn) Write(p []byte) (int, error) { return c.w.Write(p) }

// withOutboundThrottle wraps raw so writes to it are limited to
// bytesPerSec bytes per second. A bytesPerSec of zero returns raw
// unwrapped.
func withOutboundThrottle(raw net.Conn, bytesPerSec int64) net.Conn {
	if bytesPerSec <= 0 {
		return raw
	}
	return &throttledConn{Conn: raw, w: newThrottledWriter(raw, bytesPerSec)}
}
