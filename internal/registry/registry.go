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

// Package registry implements the service registry: the mapping from
// service name to an ordered sequence of local/remote Links.
package registry

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/delix/delix/internal/wire"
)

// ErrServiceAlreadyExists is returned by InsertLocal when a local link
// already exists for the name, and by InsertRemote when the exact
// (name, peer) pair is already registered.
var ErrServiceAlreadyExists = errors.New("registry: service already exists")

// Registry maps service names to their ordered Links. At most one
// Local link may exist per name; a given Remote(peer) link may appear
// at most once per name. Removing a name's last link removes the name
// entry entirely. Reads and writes are mutually exclusive.
type Registry struct {
	mu    sync.RWMutex
	links map[string][]Link
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{links: make(map[string][]Link)}
}

// InsertLocal adds a local handler for name. It fails with
// ErrServiceAlreadyExists if a local link already exists for name; it
// does not conflict with existing remote links for the same name.
func (r *Registry) InsertLocal(name string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, link := range r.links[name] {
		if link.IsLocal {
			return fmt.Errorf("registry: inserting local link for %q: %w", name, ErrServiceAlreadyExists)
		}
	}
	r.links[name] = append(r.links[name], LocalLink(handler))
	return nil
}

// InsertRemote records that peer offers name. It is idempotent with
// respect to retries by a caller that does not track state itself, but
// fails with ErrServiceAlreadyExists on an exact duplicate
// (name, peer) pair, per spec.
func (r *Registry) InsertRemote(name string, peer wire.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, link := range r.links[name] {
		if !link.IsLocal && link.Remote == peer {
			return fmt.Errorf("registry: inserting remote link for %q from %s: %w", name, peer, ErrServiceAlreadyExists)
		}
	}
	r.links[name] = append(r.links[name], RemoteLink(peer))
	return nil
}

// RemoveLocal drops the local link for name, if any. If the name's
// link list becomes empty, the name entry is removed. Reports whether
// a link was removed.
func (r *Registry) RemoveLocal(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.links[name]
	for i, link := range links {
		if link.IsLocal {
			r.links[name] = append(links[:i], links[i+1:]...)
			r.pruneLocked(name)
			return true
		}
	}
	return false
}

// RemoveRemote drops every link pointing at peer, across all service
// names. Names whose link list becomes empty are removed. Reports the
// service names that were affected.
func (r *Registry) RemoveRemote(peer wire.NodeID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for name, links := range r.links {
		kept := links[:0]
		changed := false
		for _, link := range links {
			if !link.IsLocal && link.Remote == peer {
				changed = true
				continue
			}
			kept = append(kept, link)
		}
		if changed {
			r.links[name] = kept
			affected = append(affected, name)
			r.pruneLocked(name)
		}
	}
	return affected
}

// RemoveRemoteLink drops the single link for (name, peer), if any,
// leaving peer's other service names untouched. Reports whether a
// link was removed.
func (r *Registry) RemoveRemoteLink(name string, peer wire.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.links[name]
	for i, link := range links {
		if !link.IsLocal && link.Remote == peer {
			r.links[name] = append(links[:i], links[i+1:]...)
			r.pruneLocked(name)
			return true
		}
	}
	return false
}

// pruneLocked removes name's entry entirely once its link list is
// empty. Must be called with r.mu held.
func (r *Registry) pruneLocked(name string) {
	if len(r.links[name]) == 0 {
		delete(r.links, name)
	}
}

// LocalServiceNames returns the names that currently have a local
// link, in no particular order.
func (r *Registry) LocalServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, links := range r.links {
		for _, link := range links {
			if link.IsLocal {
				names = append(names, name)
				break
			}
		}
	}
	return names
}

// Links returns the ordered link list for name, the view the Balancer
// builds rounds from. The returned slice is a copy and safe to retain.
func (r *Registry) Links(name string) []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := r.links[name]
	out := make([]Link, len(links))
	copy(out, links)
	return out
}

// CallLocalOr invokes the local handler for name inline if one exists;
// otherwise it delegates to notLocal, typically a closure that routes
// the request remotely.
func (r *Registry) CallLocalOr(name string, reader io.Reader, notLocal func() (io.Reader, error)) (io.Reader, error) {
	r.mu.RLock()
	var handler Handler
	for _, link := range r.links[name] {
		if link.IsLocal {
			handler = link.Local
			break
		}
	}
	r.mu.RUnlock()

	if handler != nil {
		return handler(reader)
	}
	return notLocal()
}
