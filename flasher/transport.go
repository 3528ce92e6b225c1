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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Transport is the byte link to the bootloader.
type Transport interface {
	// Write sends data in full.
	Write(data []byte) error
	// ReadPoll hands every byte received since the last call to onData. It
	// never waits for data to arrive.
	ReadPoll(onData func([]byte)) error
	// SetParity changes the parity without reopening the link.
	SetParity(parity serial.Parity) error
	// Reopen closes the link and opens it again at baudRate.
	Reopen(baudRate int) error
	Close() error
}

const (
	readPollTimeout = time.Millisecond
	readBufferSize  = 1024
)

// SerialTransport is a Transport over a local serial port.
type SerialTransport struct {
	portAddress string
	mode        serial.Mode
	port        serial.Port
	buf         []byte
}

// OpenSerial opens portAddress at baudRate, 8N1.
func OpenSerial(portAddress string, baudRate int) (*SerialTransport, error) {
	t := &SerialTransport{
		portAddress: portAddress,
		mode: serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		buf: make([]byte, readBufferSize),
	}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SerialTransport) open() error {
	port, err := serial.Open(t.portAddress, &t.mode)
	if err != nil {
		err = fmt.Errorf("opening %s: %w", t.portAddress, err)
		logrus.Error(err)
		return err
	}
	logrus.Infof("Opened port %s at %d", t.portAddress, t.mode.BaudRate)

	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		port.Close()
		err = fmt.Errorf("could not set timeout on serial port: %s", err)
		logrus.Error(err)
		return err
	}
	t.port = port
	return nil
}

func (t *SerialTransport) Write(data []byte) error {
	if t.port == nil {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := t.port.Write(data)
		if err != nil {
			logrus.Error(err)
			return err
		}
		data = data[n:]
	}
	return nil
}

func (t *SerialTransport) ReadPoll(onData func([]byte)) error {
	if t.port == nil {
		return ErrClosed
	}
	for {
		n, err := t.port.Read(t.buf)
		if err != nil {
			logrus.Error(err)
			return err
		}
		if n == 0 {
			return nil
		}
		data := make([]byte, n)
		copy(data, t.buf[:n])
		onData(data)
		if t.port == nil {
			// onData closed the port
			return nil
		}
	}
}

func (t *SerialTransport) SetParity(parity serial.Parity) error {
	if t.port == nil {
		return ErrClosed
	}
	t.mode.Parity = parity
	logrus.Debugf("Setting parity of %s to %d", t.portAddress, parity)
	return t.port.SetMode(&t.mode)
}

func (t *SerialTransport) Reopen(baudRate int) error {
	if t.port != nil {
		if err := t.port.Drain(); err != nil {
			logrus.Warnf("draining %s: %s", t.portAddress, err)
		}
		if err := t.Close(); err != nil {
			return err
		}
	}
	t.mode.BaudRate = baudRate
	return t.open()
}

func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
