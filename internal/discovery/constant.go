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

package discovery

import "sync"

// Constant cycles forever through a fixed address list, handing one
// address back on every Next call. It is the discovery mode for a
// mesh whose membership is known up front.
type Constant struct {
	mu      sync.Mutex
	address []string
	next    int
}

// NewConstant creates a Constant cycling through addresses in order.
func NewConstant(addresses []string) *Constant {
	return &Constant{address: append([]string(nil), addresses...)}
}

// Next returns the next address in the list, wrapping around, or
// ok=false if the list is empty.
func (c *Constant) Next() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.address) == 0 {
		return "", false
	}
	address := c.address[c.next]
	c.next++
	if c.next >= len(c.address) {
		c.next = 0
	}
	return address, true
}

// Close is a no-op; Constant holds no background resources.
func (c *Constant) Close() error { return nil }
