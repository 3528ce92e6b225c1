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
	"fmt"
)

// ErasedValue is the content of a flash byte that has never been programmed.
const ErasedValue = 0xFF

// Format identifies the text encoding a firmware image was read from.
type Format int

const (
	// IntelHex is the ":LLAAAATT<data>CC" line format.
	IntelHex Format = iota
	// SRecord is the Motorola "S1LLAAAA<data>CC" line format.
	SRecord
)

func (f Format) String() string {
	switch f {
	case IntelHex:
		return "intel-hex"
	case SRecord:
		return "s-record"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Record is a contiguous chunk of firmware data.
type Record struct {
	Address  uint32
	Data     []byte
	Checksum uint8
}

// Len returns the number of data bytes held by the record.
func (r *Record) Len() int {
	return len(r.Data)
}

// End returns the first address after the record.
func (r *Record) End() uint32 {
	return r.Address + uint32(len(r.Data))
}

func (r *Record) String() string {
	return fmt.Sprintf("%04X+%d (csum %02X)", r.Address, len(r.Data), r.Checksum)
}

// SegmentAddress is the CS:IP pair carried by an Intel HEX start segment record.
type SegmentAddress struct {
	CS uint16
	IP uint16
}

// Image is the ordered list of contiguous records read from a firmware file.
type Image struct {
	Format  Format
	Records []*Record

	// StartSegment is set by an Intel HEX "03" record.
	StartSegment *SegmentAddress
	// StartAddress is set by an S-record "S9" termination record.
	StartAddress *uint32
}

// Size returns the number of data bytes held by the image.
func (img *Image) Size() int {
	size := 0
	for _, r := range img.Records {
		size += r.Len()
	}
	return size
}

// appendData adds data at addr, extending the last record when the two are
// adjacent.
func (img *Image) appendData(addr uint32, data []byte, checksum func(uint32, []byte) uint8) {
	if n := len(img.Records); n > 0 {
		last := img.Records[n-1]
		if last.End() == addr {
			last.Data = append(last.Data, data...)
			last.Checksum = checksum(last.Address, last.Data)
			return
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	img.Records = append(img.Records, &Record{
		Address:  addr,
		Data:     buf,
		Checksum: checksum(addr, buf),
	})
}

// TwosComplement returns the value that brings the 8-bit sum of all the given
// byte slices to zero.
func TwosComplement(parts ...[]byte) uint8 {
	var sum uint8
	for _, p := range parts {
		for _, b := range p {
			sum += b
		}
	}
	return ^sum + 1
}

// OnesComplement returns the inverted 8-bit sum of all the given byte slices.
func OnesComplement(parts ...[]byte) uint8 {
	var sum uint8
	for _, p := range parts {
		for _, b := range p {
			sum += b
		}
	}
	return ^sum
}

// IntelHexChecksum computes the checksum of a data record the way an Intel HEX
// line carries it: length, address and payload bytes.
func IntelHexChecksum(addr uint32, data []byte) uint8 {
	n := len(data)
	header := []byte{
		byte(n >> 8), byte(n),
		byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr),
	}
	return TwosComplement(header, data)
}

// SRecordChecksum computes the checksum of an S1 line carrying data at addr.
// The byte count includes the two address bytes and the checksum itself.
func SRecordChecksum(addr uint32, data []byte) uint8 {
	header := []byte{byte(len(data) + 3), byte(addr >> 8), byte(addr)}
	return OnesComplement(header, data)
}

// Sum16 returns the plain 16-bit sum of data, the checksum the block
// bootloaders echo back after a write.
func Sum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

func isErased(data []byte) bool {
	for _, b := range data {
		if b != ErasedValue {
			return false
		}
	}
	return true
}
