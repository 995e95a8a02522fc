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

package balancer

import (
	"github.com/delix/delix/internal/registry"
	"github.com/delix/delix/internal/tracker"
)

// DynamicRoundRobin is the default Balancer policy: round-robin
// weighted by inverse observed latency. Links with zero recorded
// average (including newly added ones) are probed once per round so
// their statistics converge; the slowest observed link anchors the
// weights, receiving one dispatch per round while faster links get
// proportionally more.
type DynamicRoundRobin struct {
	statistic *tracker.Statistic
}

// NewDynamicRoundRobin builds a DynamicRoundRobin reading latency
// history from statistic.
func NewDynamicRoundRobin(statistic *tracker.Statistic) *DynamicRoundRobin {
	return &DynamicRoundRobin{statistic: statistic}
}

// BuildRound implements Balancer.
func (b *DynamicRoundRobin) BuildRound(name string, links []registry.Link) []registry.Link {
	if len(links) == 0 {
		return nil
	}

	averagesMs := make([]int64, len(links))
	var longestMs int64
	for i, link := range links {
		averagesMs[i] = b.averageMillis(name, link)
		if averagesMs[i] > longestMs {
			longestMs = averagesMs[i]
		}
	}

	if longestMs == 0 {
		// Unbiased first pass: no statistics anywhere yet.
		round := make([]registry.Link, len(links))
		copy(round, links)
		return round
	}

	var round []registry.Link
	for i, link := range links {
		weight := int64(1)
		if averagesMs[i] > 0 {
			weight = longestMs / averagesMs[i]
			if weight < 1 {
				weight = 1
			}
		}
		for n := int64(0); n < weight; n++ {
			round = append(round, link)
		}
	}
	return round
}

func (b *DynamicRoundRobin) averageMillis(name string, link registry.Link) int64 {
	subject := subjectFor(name, link)
	return b.statistic.Average(subject).Milliseconds()
}

func subjectFor(name string, link registry.Link) tracker.Subject {
	if link.IsLocal {
		return tracker.LocalSubject(name)
	}
	return tracker.RemoteSubject(name, link.Remote)
}
