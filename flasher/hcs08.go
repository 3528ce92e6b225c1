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
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/bridgeflash/bridge-fwuploader/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	hcs08BaudRate  = 9600
	hcs08TurboRate = 115200

	hcs08Ack          = 0xFC
	hcs08Calibration  = 0x00
	hcs08IdentCommand = 'I'
	hcs08EraseCommand = 'E'
	hcs08WriteCommand = 'W'
	hcs08ReadCommand  = 'R'
	hcs08QuitCommand  = 'Q'
	hcs08TurboCommand = 'T'

	hcs08BootloaderVersion = 2
	hcs08GenericIdent      = "GB/GT60"
	hcs08MinIdentLength    = 21

	hcs08VectorTable      = 0xFFC0
	hcs08VectorRelocation = 0x200
	hcs08EraseUnit        = 512
	// The first flash page below this address holds the bootloader registers.
	hcs08FirstBlock = 0x1080
	// SplitBoundary is the chunk alignment the RF100 bootloader writes with.
	SplitBoundary = 64

	hcs08CalibrationDelay = 500 * time.Millisecond
)

// Ident is the identification block of an HCS08 bootloader.
type Ident struct {
	ReadSupported bool
	Version       uint8
	SDID          uint16
	Areas         uint8
	Area1Start    uint16
	Area1End      uint16
	Area2Start    uint16
	Area2End      uint16
	VectorsReloc  uint16
	VectorTable   uint16
	EraseBlock    uint16
	WriteBlock    uint16
	Name          string
}

// ParseIdent decodes an identification block, NUL terminator included.
func ParseIdent(data []byte) (*Ident, error) {
	if len(data) < hcs08MinIdentLength || data[len(data)-1] != 0 {
		return nil, fmt.Errorf("incomplete identification block % X", data)
	}
	u16 := func(i int) uint16 { return binary.BigEndian.Uint16(data[i : i+2]) }
	return &Ident{
		ReadSupported: data[0]>>7 == 1,
		Version:       data[0] & 0x0F,
		SDID:          u16(1),
		Areas:         data[3],
		Area1Start:    u16(4),
		Area1End:      u16(6),
		Area2Start:    u16(8),
		Area2End:      u16(10),
		VectorsReloc:  u16(12),
		VectorTable:   u16(14),
		EraseBlock:    u16(16),
		WriteBlock:    u16(18),
		Name:          string(data[20 : len(data)-1]),
	}, nil
}

func (id *Ident) String() string {
	return fmt.Sprintf("%s (bootloader v%d, read %v, SDID %04X, areas %04X-%04X %04X-%04X, vectors %04X->%04X, erase %d, write %d)",
		id.Name, id.Version, id.ReadSupported, id.SDID,
		id.Area1Start, id.Area1End, id.Area2Start, id.Area2End,
		id.VectorTable, id.VectorsReloc, id.EraseBlock, id.WriteBlock)
}

type hcs08Protocol struct {
	f *Flasher

	chunks []*firmware.Record
	next   int
	// addr is where the chunk in flight goes once vectors are relocated.
	addr uint32

	fcCount      int
	turbo        bool
	calibration  *scheduler.ScheduledEvent
	ident        *Ident
	lastEraseLoc uint32
	erased       bool
}

func newHCS08Protocol(f *Flasher) (*hcs08Protocol, error) {
	chunks, err := f.image.Split(SplitBoundary)
	if err != nil {
		return nil, err
	}
	return &hcs08Protocol{
		f:      f,
		chunks: chunks,
		turbo:  true,
	}, nil
}

func (p *hcs08Protocol) handlers() map[State]func() {
	return map[State]func(){
		StateIncomingWait:  p.handleIncoming,
		StateIdentResponse: p.handleIdent,
		StateEraseResponse: p.handleEraseAck,
		StateWriteResponse: p.handleWriteAck,
		StateReadResponse:  p.handleRead,
	}
}

func (p *hcs08Protocol) begin() {}

func (p *hcs08Protocol) handleIncoming() {
	f := p.f
	if f.input[len(f.input)-1] != hcs08Ack {
		logrus.Debugf("Ignoring % X while waiting for the bootloader", f.input)
		f.input = nil
		return
	}
	f.input = nil
	if p.fcCount == 0 {
		p.fcCount++
		if f.write([]byte{hcs08Ack}) {
			p.calibration = f.sched.ScheduleOnce(hcs08CalibrationDelay, p.checkCalibration)
		}
		return
	}
	p.fcCount++
	if p.calibration != nil {
		p.calibration.Cancel()
		p.calibration = nil
	}
	if !p.turbo {
		if err := f.transport.SetParity(serial.NoParity); err != nil {
			f.fail(TransportError, err)
			return
		}
	}
	f.handshakeDone()
	if f.write([]byte{hcs08IdentCommand}) {
		f.state = StateIdentResponse
	}
}

// checkCalibration handles bootloaders that need a calibration pulse: when
// the second FC does not come, an even parity zero byte is sent and the turbo
// rate is left alone for this session.
func (p *hcs08Protocol) checkCalibration() {
	f := p.f
	if f.done || f.state != StateIncomingWait || p.fcCount != 1 {
		return
	}
	logrus.Info("Sending calibration pulse")
	if err := f.transport.SetParity(serial.EvenParity); err != nil {
		f.fail(TransportError, err)
		return
	}
	f.write([]byte{hcs08Calibration})
	p.turbo = false
}

func (p *hcs08Protocol) handleIdent() {
	f := p.f
	if len(f.input) < hcs08MinIdentLength || f.input[len(f.input)-1] != 0 {
		return
	}
	ident, err := ParseIdent(f.input)
	f.input = nil
	if err != nil {
		f.fail(ProtocolError, err)
		return
	}
	logrus.Debugf("Found: %s", ident)
	if ident.Version != hcs08BootloaderVersion {
		f.fail(ProtocolError, errors.Wrapf(ErrUnsupportedBootloader, "version %d", ident.Version))
		return
	}
	if f.cfg.ExpectedIdent != "" && ident.Name != hcs08GenericIdent && ident.Name != f.cfg.ExpectedIdent {
		f.fail(ProtocolError, errors.Wrapf(ErrIdentMismatch, "device is %q, image is for %q", ident.Name, f.cfg.ExpectedIdent))
		return
	}
	p.ident = ident

	if p.turbo {
		logrus.Debugf("Switching to %d baud", hcs08TurboRate)
		if !f.write([]byte{hcs08TurboCommand}) {
			return
		}
		if err := f.transport.Reopen(hcs08TurboRate); err != nil {
			f.fail(TransportError, err)
			return
		}
	}
	p.sendNext()
}

func (p *hcs08Protocol) handleEraseAck() {
	if !p.acked() {
		return
	}
	p.erased = true
	p.sendNext()
}

func (p *hcs08Protocol) handleWriteAck() {
	f := p.f
	if !p.acked() {
		return
	}
	if f.cfg.VerifyWrite && p.ident.ReadSupported {
		rec := p.chunks[p.next]
		cmd := []byte{hcs08ReadCommand, 0, 0, byte(rec.Len())}
		binary.BigEndian.PutUint16(cmd[1:3], uint16(p.addr))
		if f.write(cmd) {
			f.state = StateReadResponse
		}
		return
	}
	p.next++
	p.sendNext()
}

func (p *hcs08Protocol) handleRead() {
	f := p.f
	rec := p.chunks[p.next]
	if len(f.input) < rec.Len() {
		return
	}
	readBack := f.input[:rec.Len()]
	f.input = nil
	if bytes.Equal(readBack, rec.Data) {
		f.retries = 0
		p.next++
		p.sendNext()
		return
	}
	logrus.Errorf("%04X did not verify", p.addr)
	if !f.retry() {
		f.fail(RetryExhausted, errors.Wrapf(ErrMaxRetriesExceeded, "unable to write at memory location %04X", p.addr))
		return
	}
	p.sendWrite()
}

// acked consumes an FC acknowledge. Anything else is dropped.
func (p *hcs08Protocol) acked() bool {
	f := p.f
	ok := f.input[len(f.input)-1] == hcs08Ack
	if !ok {
		logrus.Warnf("Unexpected reply % X in state %s", f.input, f.state)
	}
	f.input = nil
	return ok
}

func (p *hcs08Protocol) sendNext() {
	f := p.f
	f.setProgress(p.next, len(p.chunks))

	if p.next >= len(p.chunks) {
		f.write([]byte{hcs08QuitCommand})
		logrus.Debug("DONE")
		f.finish()
		return
	}
	rec := p.chunks[p.next]
	p.addr = rec.Address
	if p.addr >= hcs08VectorTable {
		p.addr -= hcs08VectorRelocation
	}

	if !p.erased {
		if loc, ok := p.eraseLocation(p.addr, rec.Len()); ok {
			logrus.Debugf("Erasing @ %04X", loc)
			cmd := []byte{hcs08EraseCommand, 0, 0}
			binary.BigEndian.PutUint16(cmd[1:], uint16(loc))
			if f.write(cmd) {
				f.state = StateEraseResponse
			}
			return
		}
	}
	p.erased = false
	p.sendWrite()
}

func (p *hcs08Protocol) sendWrite() {
	f := p.f
	rec := p.chunks[p.next]
	logrus.Debugf("Writing @ %04X with %02X bytes", p.addr, rec.Len())
	cmd := []byte{hcs08WriteCommand, 0, 0, byte(rec.Len())}
	binary.BigEndian.PutUint16(cmd[1:3], uint16(p.addr))
	if f.write(append(cmd, rec.Data...)) {
		f.state = StateWriteResponse
	}
}

// eraseLocation returns the erase unit to clear before writing length bytes
// at addr, or false when the last erased unit already covers them. An erase
// landing between the two reprogrammable areas is moved to the start of the
// second one, and nothing below the first block is ever erased.
func (p *hcs08Protocol) eraseLocation(addr uint32, length int) (uint32, bool) {
	if p.lastEraseLoc != 0 && addr+uint32(length) <= p.lastEraseLoc+hcs08EraseUnit {
		return 0, false
	}
	loc := addr / hcs08EraseUnit * hcs08EraseUnit
	if loc >= uint32(p.ident.Area1End) && loc <= uint32(p.ident.Area2Start) {
		logrus.Infof("Erase @ %04X falls between memory areas, erasing %04X", loc, p.ident.Area2Start)
		loc = uint32(p.ident.Area2Start)
	}
	if loc == p.lastEraseLoc {
		loc += hcs08EraseUnit
	}
	p.lastEraseLoc = loc
	if loc < hcs08FirstBlock {
		loc = hcs08FirstBlock
	}
	return loc, true
}
