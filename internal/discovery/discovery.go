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

// Package discovery supplies addresses for a node to Join beyond the
// ones it was started with: a fixed, cycling list, or peers found by
// asking a multicast group.
package discovery

// Discovery yields peer addresses one at a time.
type Discovery interface {
	// Next blocks until another address is available or Discovery is
	// closed, in which case ok is false.
	Next() (address string, ok bool)
	Close() error
}
