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
	"errors"
	"sync/atomic"
	"time"
)

// ErrTimeout is delivered on an Entry's Done channel when its deadline
// elapses with no End call.
var ErrTimeout = errors.New("tracker: timeout")

// Tracker pairs outbound requests with their eventual responses or
// timeouts. Begin allocates an id and starts tracking; End delivers
// the result and stops tracking. If a non-zero timeout is configured,
// a dedicated goroutine expires entries whose deadline has elapsed.
type Tracker struct {
	store     *Store
	statistic *Statistic
	nextID    atomic.Uint32
	timeout   time.Duration

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a Tracker backed by its own Store and Statistic. A
// timeout of zero disables the timeout worker entirely — requests then
// complete only via End or never.
func New(timeout time.Duration) *Tracker {
	t := &Tracker{
		store:     NewStore(),
		statistic: NewStatistic(),
		timeout:   timeout,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if timeout > 0 {
		go t.runTimeoutWorker()
	} else {
		close(t.done)
	}
	return t
}

// Statistic returns the Statistic backing this Tracker's latency
// history, for the Balancer to query.
func (t *Tracker) Statistic() *Statistic {
	return t.statistic
}

// Begin allocates the next monotonically increasing request id, starts
// tracking a request against subject, and returns the id and the
// channel its Result will eventually arrive on. The channel has
// capacity 1 so End never blocks on a caller that has stopped
// listening (e.g. after a timeout already delivered a result).
func (t *Tracker) Begin(subject Subject) (uint32, <-chan Result) {
	id := t.nextID.Add(1)
	startedAt := time.Now()

	entry := &Entry{
		ID:        id,
		Subject:   subject,
		StartedAt: startedAt,
		Done:      make(chan Result, 1),
	}

	wasEmpty := t.store.Insert(entry)
	t.statistic.BeginInFlight(subject, startedAt)

	if wasEmpty && t.timeout > 0 {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}

	return id, entry.Done
}

// End completes the request tracked under id: it removes the Store
// entry, records the measured latency (on success) into Statistic,
// and delivers result on the completion channel. Ending an id that is
// no longer tracked (already expired, or unknown) is a no-op and
// returns false; completion channel send failures (the receiver
// already gave up) are ignored, not reported as an error — the caller
// already saw a result.
func (t *Tracker) End(id uint32, result Result) bool {
	entry, ok := t.store.Remove(id)
	if !ok {
		return false
	}

	t.statistic.EndInFlight(entry.Subject, entry.StartedAt)
	if result.Err == nil {
		t.statistic.Push(entry.Subject, time.Since(entry.StartedAt))
	}

	select {
	case entry.Done <- result:
	default:
	}
	return true
}

// Close stops the timeout worker, if running.
func (t *Tracker) Close() {
	select {
	case <-t.done:
		return
	default:
	}
	close(t.stop)
	<-t.done
}

func (t *Tracker) runTimeoutWorker() {
	defer close(t.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	var timerC <-chan time.Time

	for {
		select {
		case <-t.stop:
			return
		case <-t.wake:
		case <-timerC:
		}

		now := time.Now()
		expired, nextDeadline, hasNext := t.store.RemoveAllStartedBefore(now.Add(-t.timeout))
		for _, entry := range expired {
			t.statistic.EndInFlight(entry.Subject, entry.StartedAt)
			select {
			case entry.Done <- Result{Err: ErrTimeout}:
			default:
			}
		}

		if hasNext {
			d := nextDeadline.Add(t.timeout).Sub(now)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			timerC = timer.C
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timerC = nil
		}
	}
}
