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
	"strings"

	"github.com/bridgeflash/bridge-fwuploader/firmware"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Family is a radio bridge microcontroller family.
type Family int

const (
	// RF100 is the HCS08 based bridge.
	RF100 Family = iota
	// RF200 is the ATmega128RFA1 based bridge.
	RF200
	// RF300 is the Si1000 based bridge.
	RF300
)

var familyNames = map[string]Family{
	"rf100": RF100,
	"rf200": RF200,
	"rf300": RF300,
}

// ParseFamily returns the family named s, case insensitively.
func ParseFamily(s string) (Family, error) {
	if f, ok := familyNames[strings.ToLower(s)]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown device family %q, valid families are %s", s, strings.Join(FamilyNames(), ", "))
}

// FamilyNames lists the known family names in sorted order.
func FamilyNames() []string {
	names := maps.Keys(familyNames)
	slices.Sort(names)
	return names
}

func (f Family) String() string {
	for name, family := range familyNames {
		if family == f {
			return name
		}
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Description names the microcontroller of the family.
func (f Family) Description() string {
	switch f {
	case RF100:
		return "HCS08"
	case RF200:
		return "ATmega128RFA1"
	case RF300:
		return "Si1000"
	}
	return "unknown"
}

// Format is the image format the family bootloader is fed with.
func (f Family) Format() firmware.Format {
	if f == RF100 {
		return firmware.SRecord
	}
	return firmware.IntelHex
}

// BaudRate is the rate the bootloader handshake starts at.
func (f Family) BaudRate() int {
	if f == RF100 {
		return hcs08BaudRate
	}
	return blockBaudRate
}

// MagicAddress is where the magic key record is written for this family.
func (f Family) MagicAddress() uint16 {
	return firmware.DefaultMagicAddress
}
