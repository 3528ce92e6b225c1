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

	"github.com/pkg/errors"
)

// ErrorKind classifies a fatal session error.
type ErrorKind int

const (
	// ProtocolError is an unexpected or unsupported reply from the bootloader.
	ProtocolError ErrorKind = iota
	// TimeoutError means the device stopped answering.
	TimeoutError
	// RetryExhausted means a write kept failing verification.
	RetryExhausted
	// TransportError is a failure of the serial link itself.
	TransportError
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolError:
		return "protocol error"
	case TimeoutError:
		return "timeout"
	case RetryExhausted:
		return "retries exhausted"
	case TransportError:
		return "transport error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrEnterBlockModeFailed  = errors.New("could not enter block mode")
	ErrUnsupportedSignature  = errors.New("unsupported signature received")
	ErrUnsupportedVersion    = errors.New("device is running an unsupported version")
	ErrAddressChangeFailed   = errors.New("unit was unable to change block address")
	ErrUnsupportedBootloader = errors.New("unsupported bootloader version")
	ErrIdentMismatch         = errors.New("the selected file is not supported on this platform")
	ErrDataTimeout           = errors.New("data timeout")
	ErrMaxRetriesExceeded    = errors.New("maximum number of retries reached")
	ErrClosed                = errors.New("flasher closed")
)

// FlasherError is the error that ends a flashing session.
type FlasherError struct {
	Kind ErrorKind
	Err  error
}

func (e *FlasherError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *FlasherError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err when it is a FlasherError.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FlasherError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
