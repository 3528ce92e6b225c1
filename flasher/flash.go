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

	"github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/bridgeflash/bridge-fwuploader/scheduler"
	"github.com/sirupsen/logrus"
)

// Flash programs image into the family device on portAddress, blocking until
// the session ends or ctx is cancelled.
func Flash(ctx context.Context, family Family, portAddress string, image *firmware.Image, opts ...Option) error {
	transport, err := OpenSerial(portAddress, family.BaudRate())
	if err != nil {
		return &FlasherError{Kind: TransportError, Err: err}
	}
	f, err := New(family, transport, image, scheduler.New(), opts...)
	if err != nil {
		transport.Close()
		logrus.Error(err)
		return err
	}
	return f.Run(ctx)
}
