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

package firmware

import (
	"bytes"
	"fmt"
)

// MagicKeyCommand selects what the bootloader does when it sees the magic key.
type MagicKeyCommand byte

const (
	// MagicEraseScript erases the resident script.
	MagicEraseScript MagicKeyCommand = 'S'
	// MagicDefaultNV resets the NV parameters to factory defaults.
	MagicDefaultNV MagicKeyCommand = 'N'
)

// DefaultMagicAddress is where the bootloader looks for the magic key.
const DefaultMagicAddress = 0x02F0

// MagicKey is the sentinel pattern "RMDEMGKB" that precedes the command byte.
var MagicKey = []byte{0x52, 0x4D, 0x44, 0x45, 0x4D, 0x47, 0x4B, 0x42}

func (c MagicKeyCommand) String() string {
	switch c {
	case MagicEraseScript:
		return "erase-script"
	case MagicDefaultNV:
		return "default-nv"
	}
	return fmt.Sprintf("magic(%q)", byte(c))
}

// MagicKeyImage returns a one record image holding the magic key and cmd at
// addr.
func MagicKeyImage(format Format, cmd MagicKeyCommand, addr uint16) *Image {
	payload := append(append([]byte{}, MagicKey...), byte(cmd))
	checksum := IntelHexChecksum
	if format == SRecord {
		checksum = SRecordChecksum
	}
	return &Image{
		Format: format,
		Records: []*Record{{
			Address:  uint32(addr),
			Data:     payload,
			Checksum: checksum(uint32(addr), payload),
		}},
	}
}

// BuildMagicKey renders the magic key image as file text in the given format,
// end-of-file marker included.
func BuildMagicKey(format Format, cmd MagicKeyCommand, addr uint16) ([]byte, error) {
	img := MagicKeyImage(format, cmd, addr)
	var buf bytes.Buffer
	var err error
	if format == SRecord {
		err = img.WriteSRecord(&buf)
	} else {
		err = img.WriteIntelHex(&buf)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
