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

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the machine a node runs on. HostMonitor
// keeps the latest one for Stats; it is not part of the Metrics HTTP
// output.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	LoadAverage   float64
}

// HostMonitor samples HostStats on a fixed interval.
type HostMonitor struct {
	logger *slog.Logger
	close  chan struct{}
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats HostStats
}

// NewHostMonitor creates a HostMonitor; call Start to begin sampling.
func NewHostMonitor(logger *slog.Logger) *HostMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostMonitor{
		logger: logger.With("component", "host_monitor"),
		close:  make(chan struct{}),
	}
}

// Start begins periodic sampling on a background goroutine.
func (m *HostMonitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts sampling and waits for the background goroutine to
// exit.
func (m *HostMonitor) Stop() {
	close(m.close)
	m.wg.Wait()
}

// Stats returns the most recently collected sample.
func (m *HostMonitor) Stats() HostStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *HostMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	m.collect()
	for {
		select {
		case <-m.close:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *HostMonitor) collect() {
	stats := HostStats{}

	if percentage, err := cpu.Percent(0, false); err == nil && len(percentage) > 0 {
		stats.CPUPercent = percentage[0]
	} else {
		m.logger.Debug("collecting cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = v.UsedPercent
	} else {
		m.logger.Debug("collecting memory stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		stats.LoadAverage = l.Load1
	} else {
		m.logger.Debug("collecting load stats", "error", err)
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}
