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

package flasher

import (
	"time"

	"go.bug.st/serial"
)

// scriptedTransport is an in-memory Transport. Replies produced by respond
// are delivered on the next ReadPoll, one callback per reply.
type scriptedTransport struct {
	writes  [][]byte
	pending [][]byte
	respond func(data []byte) [][]byte

	parity   serial.Parity
	parities []serial.Parity
	baud     int
	reopens  int
	polls    int
	closed   bool
}

func (t *scriptedTransport) Write(data []byte) error {
	if t.closed {
		return ErrClosed
	}
	t.writes = append(t.writes, append([]byte{}, data...))
	if t.respond != nil {
		t.pending = append(t.pending, t.respond(data)...)
	}
	return nil
}

func (t *scriptedTransport) ReadPoll(onData func([]byte)) error {
	t.polls++
	if t.closed {
		return ErrClosed
	}
	pending := t.pending
	t.pending = nil
	for _, p := range pending {
		onData(p)
	}
	return nil
}

func (t *scriptedTransport) SetParity(parity serial.Parity) error {
	t.parity = parity
	t.parities = append(t.parities, parity)
	return nil
}

func (t *scriptedTransport) Reopen(baudRate int) error {
	t.baud = baudRate
	t.reopens++
	return nil
}

func (t *scriptedTransport) Close() error {
	t.closed = true
	return nil
}

// commands returns the first byte of every write.
func (t *scriptedTransport) commands() string {
	var s []byte
	for _, w := range t.writes {
		s = append(s, w[0])
	}
	return string(s)
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
