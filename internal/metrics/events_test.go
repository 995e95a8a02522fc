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
	"fmt"
	"sync"
	"testing"
)

func TestEventRingBasicPushRecent(t *testing.T) {
	r := NewEventRing(5)

	r.PushEvent("info", "join", "node-a", "peer joined")
	r.PushEvent("warn", "lost", "node-a", "connection lost")

	events := r.Recent(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "join" {
		t.Errorf("expected first event %q, got %q", "join", events[0].Type)
	}
	if events[1].Type != "lost" {
		t.Errorf("expected second event %q, got %q", "lost", events[1].Type)
	}
}

func TestEventRingWrap(t *testing.T) {
	r := NewEventRing(3)

	for i := 0; i < 5; i++ {
		r.PushEvent("info", "test", "", fmt.Sprintf("event-%d", i))
	}

	events := r.Recent(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events after wrap, got %d", len(events))
	}
	if events[0].Message != "event-2" {
		t.Errorf("expected %q, got %q", "event-2", events[0].Message)
	}
	if events[2].Message != "event-4" {
		t.Errorf("expected %q, got %q", "event-4", events[2].Message)
	}
}

func TestEventRingLimit(t *testing.T) {
	r := NewEventRing(10)
	for i := 0; i < 8; i++ {
		r.PushEvent("info", "test", "", fmt.Sprintf("e%d", i))
	}

	events := r.Recent(3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events with limit, got %d", len(events))
	}
	if events[0].Message != "e5" {
		t.Errorf("expected %q, got %q", "e5", events[0].Message)
	}
}

func TestEventRingEmpty(t *testing.T) {
	r := NewEventRing(10)
	events := r.Recent(0)
	if len(events) != 0 {
		t.Errorf("expected empty, got %d", len(events))
	}
}

func TestEventRingLen(t *testing.T) {
	r := NewEventRing(5)
	if r.Len() != 0 {
		t.Errorf("expected len 0, got %d", r.Len())
	}
	r.PushEvent("info", "test", "", "msg")
	if r.Len() != 1 {
		t.Errorf("expected len 1, got %d", r.Len())
	}
	for i := 0; i < 10; i++ {
		r.PushEvent("info", "test", "", "msg")
	}
	if r.Len() != 5 {
		t.Errorf("expected len capped at 5, got %d", r.Len())
	}
}

func TestEventRingConcurrent(t *testing.T) {
	r := NewEventRing(100)
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.PushEvent("info", "test", "", fmt.Sprintf("g%d-e%d", g, i))
			}
		}(g)
	}

	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = r.Recent(10)
			}
		}()
	}

	wg.Wait()

	if r.Len() != 100 {
		t.Errorf("expected len 100 after 500 pushes in cap 100, got %d", r.Len())
	}
}

func TestEventRingTimestampAutoFilled(t *testing.T) {
	r := NewEventRing(5)
	r.Push(Event{Level: "info", Message: "no timestamp"})
	events := r.Recent(1)
	if events[0].Timestamp == "" {
		t.Error("expected auto-filled timestamp")
	}
}
