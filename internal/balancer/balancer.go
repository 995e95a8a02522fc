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

// Package balancer implements the Balancer: given a service name
// and its candidate Links, it produces a dispatch round weighted by
// observed latency.
package balancer

import "github.com/delix/delix/internal/registry"

// Balancer builds a dispatch round for name from links. The Transport
// draws from the round one Link per request, recomputing a fresh round
// once the current one is exhausted — not per request — so that
// mid-round registry changes are observed at most one round later.
type Balancer interface {
	BuildRound(name string, links []registry.Link) []registry.Link
}
