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

package tracker

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestBeginEndDeliversResult(t *testing.T) {
	tr := New(0)
	defer tr.Close()

	subject := LocalSubject("echo")
	id, done := tr.Begin(subject)

	if !tr.End(id, Result{Reader: bytes.NewReader([]byte("ok"))}) {
		t.Fatal("End reported no tracked request for id")
	}

	select {
	case result := <-done:
		if result.Err != nil {
			t.Errorf("result.Err = %v, want nil", result.Err)
		}
	default:
		t.Fatal("expected a result on the Done channel")
	}
}

func TestEndUnknownIDIsNoOp(t *testing.T) {
	tr := New(0)
	defer tr.Close()

	if tr.End(999, Result{}) {
		t.Error("End on an unknown id reported a tracked request")
	}
}

func TestEndPushesLatencySampleOnSuccess(t *testing.T) {
	tr := New(0)
	defer tr.Close()

	subject := LocalSubject("echo")
	id, _ := tr.Begin(subject)
	tr.End(id, Result{Reader: bytes.NewReader(nil)})

	if avg := tr.Statistic().Average(subject); avg <= 0 {
		t.Errorf("Average after a successful End = %v, want > 0", avg)
	}
}

func TestEndOnErrorDoesNotPushLatencySample(t *testing.T) {
	tr := New(0)
	defer tr.Close()

	subject := LocalSubject("echo")
	id, _ := tr.Begin(subject)
	tr.End(id, Result{Err: errors.New("boom")})

	if avg := tr.Statistic().Average(subject); avg != 0 {
		t.Errorf("Average after a failed End = %v, want 0", avg)
	}
}

func TestTrackerTimesOutUnansweredRequest(t *testing.T) {
	tr := New(20 * time.Millisecond)
	defer tr.Close()

	_, done := tr.Begin(LocalSubject("echo"))

	select {
	case result := <-done:
		if !errors.Is(result.Err, ErrTimeout) {
			t.Errorf("result.Err = %v, want ErrTimeout", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the tracker's own timeout to fire")
	}
}

func TestCloseStopsTimeoutWorker(t *testing.T) {
	tr := New(time.Hour)
	tr.Close()
	tr.Close() // Close must be idempotent.
}

func TestStoreRemoveAllStartedBeforeReportsNextDeadline(t *testing.T) {
	s := NewStore()
	now := time.Now()

	old := &Entry{ID: 1, StartedAt: now.Add(-time.Minute), Done: make(chan Result, 1)}
	recent := &Entry{ID: 2, StartedAt: now, Done: make(chan Result, 1)}
	s.Insert(old)
	s.Insert(recent)

	expired, nextDeadline, hasNext := s.RemoveAllStartedBefore(now.Add(-time.Second))
	if got, want := len(expired), 1; got != want {
		t.Fatalf("len(expired) = %d, want %d", got, want)
	}
	if expired[0].ID != 1 {
		t.Errorf("expired entry ID = %d, want 1", expired[0].ID)
	}
	if !hasNext {
		t.Fatal("expected hasNext, the recent entry is still tracked")
	}
	if !nextDeadline.Equal(recent.StartedAt) {
		t.Errorf("nextDeadline = %v, want %v", nextDeadline, recent.StartedAt)
	}
	if got, want := s.Len(), 1; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

func TestStatisticAverageIncludesInFlightPenalty(t *testing.T) {
	stat := NewStatistic()
	subject := LocalSubject("echo")

	startedAt := time.Now().Add(-100 * time.Millisecond)
	stat.BeginInFlight(subject, startedAt)

	if avg := stat.Average(subject); avg < 100*time.Millisecond {
		t.Errorf("Average with an in-flight request = %v, want >= 100ms", avg)
	}

	stat.EndInFlight(subject, startedAt)
	if avg := stat.Average(subject); avg != 0 {
		t.Errorf("Average after EndInFlight with no samples = %v, want 0", avg)
	}
}

func TestStatisticPushEvictsOldestPastCapacity(t *testing.T) {
	stat := NewStatistic()
	subject := LocalSubject("echo")

	for i := 0; i < statisticCapacity+5; i++ {
		stat.Push(subject, time.Duration(i+1)*time.Millisecond)
	}

	samples := stat.samples[subject]
	if got, want := len(samples), statisticCapacity; got != want {
		t.Fatalf("len(samples) = %d, want %d", got, want)
	}
	if samples[0] != 6*time.Millisecond {
		t.Errorf("oldest remaining sample = %v, want %v", samples[0], 6*time.Millisecond)
	}
}
