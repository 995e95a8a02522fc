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

// Package tracker implements per-request tracking (Tracker), latency
// history (Statistic) and the underlying id-keyed Store.
package tracker

import "github.com/delix/delix/internal/wire"

// Subject is a (service name, link) pair: the key latency statistics
// and in-flight bookkeeping are kept under. It is a plain comparable
// value so it can be used directly as a map key.
type Subject struct {
	Name    string
	IsLocal bool
	Remote  wire.NodeID
}

// LocalSubject builds the Subject for a local link to name.
func LocalSubject(name string) Subject {
	return Subject{Name: name, IsLocal: true}
}

// RemoteSubject builds the Subject for a remote link to name via peer.
func RemoteSubject(name string, peer wire.NodeID) Subject {
	return Subject{Name: name, Remote: peer}
}
