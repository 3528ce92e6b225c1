/*
	bridge-fwuploader
	Copyright (c) 2024 The bridge-fwuploader Authors.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler() (*Scheduler, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestScheduleOnceFiresWhenDue(t *testing.T) {
	s, clock := newTestScheduler()
	fired := 0
	s.ScheduleOnce(500*time.Millisecond, func() { fired++ })

	s.Poll()
	require.Equal(t, 0, fired)

	clock.Advance(499 * time.Millisecond)
	s.Poll()
	require.Equal(t, 0, fired)

	clock.Advance(time.Millisecond)
	s.Poll()
	require.Equal(t, 1, fired)
	require.Empty(t, s.events)

	s.Poll()
	require.Equal(t, 1, fired)
}

func TestPollOrder(t *testing.T) {
	s, clock := newTestScheduler()
	var calls []string
	s.ScheduleRecurring(func() bool { calls = append(calls, "r1"); return true })
	s.ScheduleOnce(0, func() { calls = append(calls, "o1") })
	s.ScheduleRecurring(func() bool { calls = append(calls, "r2"); return true })
	s.ScheduleOnce(0, func() { calls = append(calls, "o2") })

	clock.Advance(time.Millisecond)
	s.Poll()
	require.Equal(t, []string{"o1", "o2", "r1", "r2"}, calls)
}

func TestRecurringDeregisters(t *testing.T) {
	s, _ := newTestScheduler()
	n := 0
	s.ScheduleRecurring(func() bool {
		n++
		return n < 3
	})
	for i := 0; i < 10; i++ {
		s.Poll()
	}
	require.Equal(t, 3, n)
	require.Empty(t, s.events)
}

func TestScheduleEvery(t *testing.T) {
	s, clock := newTestScheduler()
	n := 0
	s.ScheduleEvery(time.Second, func() bool {
		n++
		return true
	})

	s.Poll()
	require.Equal(t, 0, n)
	clock.Advance(time.Second)
	s.Poll()
	s.Poll()
	require.Equal(t, 1, n)
	clock.Advance(time.Second)
	s.Poll()
	require.Equal(t, 2, n)
}

func TestPanickingActionDoesNotAbortTick(t *testing.T) {
	s, _ := newTestScheduler()
	after := 0
	s.ScheduleOnce(0, func() { panic("boom") })
	s.ScheduleRecurring(func() bool { panic("boom") })
	s.ScheduleRecurring(func() bool { after++; return true })

	require.NotPanics(t, s.Poll)
	require.Equal(t, 1, after)
	// The panicking recurring action stays registered.
	require.Len(t, s.events, 2)
}

func TestEventsAddedDuringPollWaitForNextTick(t *testing.T) {
	s, _ := newTestScheduler()
	inner := 0
	s.ScheduleOnce(0, func() {
		s.ScheduleOnce(0, func() { inner++ })
	})
	s.Poll()
	require.Equal(t, 0, inner)
	s.Poll()
	require.Equal(t, 1, inner)
}

func TestCancel(t *testing.T) {
	s, clock := newTestScheduler()
	fired := false
	ev := s.ScheduleOnce(time.Second, func() { fired = true })
	ev.Cancel()
	clock.Advance(2 * time.Second)
	s.Poll()
	require.False(t, fired)
	require.Empty(t, s.events)
}
