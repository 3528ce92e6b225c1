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
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/bridgeflash/bridge-fwuploader/scheduler"
	"github.com/sirupsen/logrus"
)

// timeoutCheckInterval is how often a session looks for a silent device.
const timeoutCheckInterval = 50 * time.Millisecond

// State is the position of a session in its bootloader conversation.
type State int

const (
	StateIdle State = iota
	StateIncomingWait
	StateBlockCmdResponse
	StateSignatureResponse
	StateInfoResponse
	StateAddressResponse
	StateDataResponse
	StateExitResponse
	StateTimeout
	StateIdentResponse
	StateEraseResponse
	StateWriteResponse
	StateReadResponse
)

var stateNames = map[State]string{
	StateIdle:              "IDLE",
	StateIncomingWait:      "INCOMING_WAIT",
	StateBlockCmdResponse:  "BLOCK_CMD_RESPONSE",
	StateSignatureResponse: "SIGNATURE_RESPONSE",
	StateInfoResponse:      "INFO_RESPONSE",
	StateAddressResponse:   "ADDRESS_RESPONSE",
	StateDataResponse:      "DATA_RESPONSE",
	StateExitResponse:      "EXIT_RESPONSE",
	StateTimeout:           "TIMEOUT",
	StateIdentResponse:     "IDENT_RESPONSE",
	StateEraseResponse:     "ERASE_RESPONSE",
	StateWriteResponse:     "WRITE_RESPONSE",
	StateReadResponse:      "READ_RESPONSE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// EventKind tells what an Event reports.
type EventKind int

const (
	EventProgress EventKind = iota
	EventError
	EventFinished
)

// Event is a notification queued by the session and handed to the callbacks
// by DispatchEvents, outside of any protocol handler.
type Event struct {
	Kind     EventKind
	Progress int
	Max      int
	Err      error
}

// protocol is the per family part of a session: a state table and the wire
// framing behind it.
type protocol interface {
	handlers() map[State]func()
	// begin is called when the session starts, before any byte is received.
	begin()
}

// Flasher drives one flashing session over a Transport. All of its work
// happens inside scheduler polls.
type Flasher struct {
	family    Family
	transport Transport
	image     *firmware.Image
	sched     *scheduler.Scheduler
	cfg       Config

	proto    protocol
	handlers map[State]func()

	pollEvent    *scheduler.ScheduledEvent
	timeoutEvent *scheduler.ScheduledEvent

	state    State
	input    []byte
	lastData time.Time
	window   time.Duration
	retries  int
	progress int

	started bool
	closed  bool
	done    bool
	err     error
	events  []Event
}

// New prepares a session that programs image into a device of family
// reachable through transport. Nothing is sent before Start.
func New(family Family, transport Transport, image *firmware.Image, sched *scheduler.Scheduler, opts ...Option) (*Flasher, error) {
	if image == nil || len(image.Records) == 0 {
		err := fmt.Errorf("no firmware data to flash")
		logrus.Error(err)
		return nil, err
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.WriteRetries < 0 {
		return nil, fmt.Errorf("invalid write retries %d", cfg.WriteRetries)
	}

	f := &Flasher{
		family:    family,
		transport: transport,
		image:     image,
		sched:     sched,
		cfg:       cfg,
		state:     StateIdle,
	}
	switch family {
	case RF100:
		proto, err := newHCS08Protocol(f)
		if err != nil {
			logrus.Error(err)
			return nil, err
		}
		f.proto = proto
	case RF200:
		f.proto = newBlockProtocol(f, rf200Variant)
	case RF300:
		f.proto = newBlockProtocol(f, rf300Variant)
	default:
		return nil, fmt.Errorf("unsupported device family %s", family)
	}
	f.handlers = f.proto.handlers()
	return f, nil
}

// Start arms the session: the transport is polled on every scheduler tick and
// the device has HelloTimeout to announce itself.
func (f *Flasher) Start() {
	if f.started {
		return
	}
	f.started = true
	f.state = StateIncomingWait
	f.lastData = f.sched.Now()
	f.window = f.cfg.HelloTimeout
	logrus.Infof("Waiting for %s bootloader", f.family.Description())
	f.proto.begin()
	f.pollEvent = f.sched.ScheduleRecurring(f.poll)
	f.timeoutEvent = f.sched.ScheduleEvery(timeoutCheckInterval, f.checkTimeout)
}

// Run starts the session and polls the scheduler until the session ends or
// ctx is cancelled. Cancelling closes the transport.
func (f *Flasher) Run(ctx context.Context) error {
	f.Start()
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	for {
		f.sched.Poll()
		f.DispatchEvents()
		if f.done {
			return f.err
		}
		select {
		case <-ctx.Done():
			f.fail(TransportError, ctx.Err())
			f.DispatchEvents()
			return f.err
		case <-ticker.C:
		}
	}
}

// DispatchEvents hands queued events to the configured callbacks.
func (f *Flasher) DispatchEvents() {
	events := f.events
	f.events = nil
	for _, ev := range events {
		f.dispatch(ev)
	}
}

func (f *Flasher) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("An error occurred while notifying a callback: %v", r)
		}
	}()
	switch ev.Kind {
	case EventProgress:
		if f.cfg.ProgressCallback != nil {
			f.cfg.ProgressCallback(ev.Progress, ev.Max)
		}
	case EventError:
		if f.cfg.ErrorCallback != nil {
			f.cfg.ErrorCallback(ev.Err)
		}
	case EventFinished:
		if f.cfg.FinishedCallback != nil {
			f.cfg.FinishedCallback()
		}
	}
}

// State returns the current protocol state.
func (f *Flasher) State() State {
	return f.state
}

// Done reports whether the session has ended.
func (f *Flasher) Done() bool {
	return f.done
}

// Err returns the error that ended the session, nil on success.
func (f *Flasher) Err() error {
	return f.err
}

// Close ends the session and releases the transport.
func (f *Flasher) Close() error {
	if !f.done {
		f.fail(TransportError, ErrClosed)
	}
	return nil
}

func (f *Flasher) poll() bool {
	if f.closed {
		return false
	}
	if err := f.transport.ReadPoll(f.onData); err != nil {
		f.fail(TransportError, err)
		return false
	}
	return !f.closed
}

func (f *Flasher) onData(data []byte) {
	if f.done {
		return
	}
	logrus.Tracef("onData: % X", data)
	f.lastData = f.sched.Now()
	f.input = append(f.input, data...)
	if h, ok := f.handlers[f.state]; ok {
		h()
		return
	}
	logrus.Debugf("Ignoring data in state %s: % X", f.state, f.input)
	f.input = nil
}

func (f *Flasher) checkTimeout() bool {
	if f.done || f.state == StateIdle {
		return false
	}
	if f.sched.Now().Sub(f.lastData) > f.window {
		f.state = StateTimeout
		f.fail(TimeoutError, ErrDataTimeout)
		return false
	}
	return true
}

// handshakeDone switches from the hello timeout to the reply timeout.
func (f *Flasher) handshakeDone() {
	f.window = f.cfg.Timeout
}

// touch restarts the timeout window after a slow local step.
func (f *Flasher) touch() {
	f.lastData = f.sched.Now()
}

func (f *Flasher) write(data []byte) bool {
	if f.closed {
		return false
	}
	logrus.Debugf("write: %s", hex.EncodeToString(data))
	if err := f.transport.Write(data); err != nil {
		f.fail(TransportError, err)
		return false
	}
	return true
}

// retry reports whether another attempt is allowed and counts it.
func (f *Flasher) retry() bool {
	if f.retries >= f.cfg.WriteRetries {
		return false
	}
	f.retries++
	return true
}

func (f *Flasher) setProgress(progress, max int) {
	f.progress = progress
	f.events = append(f.events, Event{Kind: EventProgress, Progress: progress, Max: max})
}

func (f *Flasher) finish() {
	if f.done {
		return
	}
	logrus.Info("Flasher finished")
	f.done = true
	f.state = StateIdle
	f.close()
	f.events = append(f.events, Event{Kind: EventFinished})
}

func (f *Flasher) fail(kind ErrorKind, err error) {
	if f.done {
		return
	}
	f.err = &FlasherError{Kind: kind, Err: err}
	logrus.Error(f.err)
	f.done = true
	if f.state != StateTimeout {
		f.state = StateIdle
	}
	f.close()
	f.events = append(f.events, Event{Kind: EventError, Err: f.err})
}

func (f *Flasher) close() {
	if f.closed {
		return
	}
	f.closed = true
	for _, ev := range []*scheduler.ScheduledEvent{f.pollEvent, f.timeoutEvent} {
		if ev != nil {
			ev.Cancel()
		}
	}
	if err := f.transport.Close(); err != nil {
		logrus.Debugf("An error occurred while closing the transport: %s", err)
	}
}
