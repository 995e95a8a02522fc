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

package metrics

import "testing"

func TestHostMonitorCollectsOnStart(t *testing.T) {
	m := NewHostMonitor(nil)
	m.collect()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("collect panicked: %v", r)
		}
	}()

	stats := m.Stats()
	if stats.CPUPercent < 0 || stats.MemoryPercent < 0 || stats.LoadAverage < 0 {
		t.Errorf("expected non-negative stats, got %+v", stats)
	}
}

func TestHostMonitorStartStop(t *testing.T) {
	m := NewHostMonitor(nil)
	m.Start()
	m.Stop()
}
