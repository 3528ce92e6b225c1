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
	"time"

	"github.com/sirupsen/logrus"
)

// ScheduledEvent is an action owned by a Scheduler.
type ScheduledEvent struct {
	FireAt    time.Time
	Recurring bool
	// Interval is zero for recurring events that fire on every poll.
	Interval time.Duration
	// Action returns false to deregister a recurring event. The result of a
	// one-shot action is ignored.
	Action func() bool

	cancelled bool
}

// Cancel prevents the event from firing again.
func (ev *ScheduledEvent) Cancel() {
	ev.cancelled = true
}

// Scheduler is a single threaded cooperative scheduler. Nothing runs unless
// Poll is called, and every action runs on the goroutine calling Poll.
type Scheduler struct {
	now    func() time.Time
	events []*ScheduledEvent
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now as the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates an empty Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time according to the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// ScheduleOnce runs action once, on the first poll after delay has elapsed.
func (s *Scheduler) ScheduleOnce(delay time.Duration, action func()) *ScheduledEvent {
	return s.add(&ScheduledEvent{
		FireAt: s.now().Add(delay),
		Action: func() bool {
			action()
			return false
		},
	})
}

// ScheduleRecurring runs action on every poll until it returns false.
func (s *Scheduler) ScheduleRecurring(action func() bool) *ScheduledEvent {
	return s.add(&ScheduledEvent{
		FireAt:    s.now(),
		Recurring: true,
		Action:    action,
	})
}

// ScheduleEvery runs action every interval until it returns false. The first
// run happens one interval from now.
func (s *Scheduler) ScheduleEvery(interval time.Duration, action func() bool) *ScheduledEvent {
	return s.add(&ScheduledEvent{
		FireAt:    s.now().Add(interval),
		Recurring: true,
		Interval:  interval,
		Action:    action,
	})
}

func (s *Scheduler) add(ev *ScheduledEvent) *ScheduledEvent {
	s.events = append(s.events, ev)
	return ev
}

// Poll fires every due one-shot event in scheduling order, then every
// recurring event once, in registration order. Events scheduled by an action
// are first considered on the next poll.
func (s *Scheduler) Poll() {
	now := s.now()
	current := s.events
	s.events = nil

	var keep []*ScheduledEvent
	for _, ev := range current {
		if ev.Recurring || ev.cancelled {
			continue
		}
		if ev.FireAt.After(now) {
			keep = append(keep, ev)
			continue
		}
		s.run(ev)
	}
	for _, ev := range current {
		if !ev.Recurring || ev.cancelled {
			continue
		}
		if ev.Interval > 0 && ev.FireAt.After(now) {
			keep = append(keep, ev)
			continue
		}
		if !s.run(ev) || ev.cancelled {
			continue
		}
		if ev.Interval > 0 {
			ev.FireAt = now.Add(ev.Interval)
		}
		keep = append(keep, ev)
	}
	s.events = append(keep, s.events...)
}

// run executes the action of ev. A panicking action is logged; recurring
// events stay registered.
func (s *Scheduler) run(ev *ScheduledEvent) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("scheduler: action failed: %v", r)
			again = ev.Recurring
		}
	}()
	return ev.Action()
}
