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
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// https://en.wikipedia.org/wiki/Intel_HEX#Record_types
const (
	hexData                 = "00"
	hexEOF                  = "01"
	hexStartSegmentAddress  = "03"
	hexExtendedAddress      = "04"
	hexStartLinearAddress   = "05"
	hexMinLineLength        = 11
	hexDefaultRecordLength  = 16
	hexStartSegmentByteSize = "04"
)

// ReadIntelHex parses Intel HEX text into an Image. Adjacent data records are
// merged into a single Record. Parsing stops at the end-of-file record.
func ReadIntelHex(r io.Reader) (*Image, error) {
	img := &Image{Format: IntelHex}
	var offset uint32

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != ':' || len(line) < hexMinLineLength {
			return nil, formatErrorf(IntelHex, lineNum, ErrInvalidLine, "%q", line)
		}

		bin, err := hex.DecodeString(line[1:])
		if err != nil {
			return nil, formatErrorf(IntelHex, lineNum, ErrNonHex, "%s", err)
		}
		// bin: length, address (2), type, payload..., checksum
		payload := bin[4 : len(bin)-1]
		if int(bin[0]) != len(payload) {
			return nil, formatErrorf(IntelHex, lineNum, ErrLengthMismatch, "declared %d, found %d", bin[0], len(payload))
		}
		if crc := TwosComplement(bin[:len(bin)-1]); crc != bin[len(bin)-1] {
			return nil, formatErrorf(IntelHex, lineNum, ErrChecksumMismatch, "computed %02X, found %02X", crc, bin[len(bin)-1])
		}

		switch recType := line[7:9]; recType {
		case hexEOF:
			return img, nil
		case hexData:
			addr := offset + uint32(binary.BigEndian.Uint16(bin[1:3]))
			if uint64(addr)+uint64(len(payload)) > math.MaxUint32 {
				return nil, formatErrorf(IntelHex, lineNum, ErrImageTooLarge, "%d bytes at %08X wrap the address space", len(payload), addr)
			}
			img.appendData(addr, payload, IntelHexChecksum)
		case hexStartSegmentAddress:
			if line[1:3] != hexStartSegmentByteSize || line[3:7] != "0000" {
				return nil, formatErrorf(IntelHex, lineNum, ErrInvalidStartRecord, "%q", line)
			}
			if img.StartSegment != nil {
				return nil, formatErrorf(IntelHex, lineNum, ErrDuplicateStart, "%q", line)
			}
			img.StartSegment = &SegmentAddress{
				CS: binary.BigEndian.Uint16(payload[0:2]),
				IP: binary.BigEndian.Uint16(payload[2:4]),
			}
		case hexExtendedAddress:
			if len(payload) != 2 {
				return nil, formatErrorf(IntelHex, lineNum, ErrLengthMismatch, "extended address needs 2 bytes, found %d", len(payload))
			}
			offset = uint32(binary.BigEndian.Uint16(payload)) << 16
			logrus.Debugf("hex: address offset now %08X", offset)
		case hexStartLinearAddress:
		default:
			return nil, formatErrorf(IntelHex, lineNum, ErrUnsupportedRecord, "type %s", recType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading intel hex")
	}
	return img, nil
}

// WriteIntelHex serialises the image records as Intel HEX text, terminated by
// the end-of-file record.
func (img *Image) WriteIntelHex(w io.Writer) error {
	mem := gohex.NewMemory()
	for _, r := range img.Records {
		if err := mem.AddBinary(r.Address, r.Data); err != nil {
			return errors.Wrapf(err, "adding record at %04X", r.Address)
		}
	}
	return mem.DumpIntelHex(w, hexDefaultRecordLength)
}

// CombinedImage is the padded device image re-sliced into aligned blocks.
// Blocks made only of erased bytes are left out.
type CombinedImage struct {
	BlockLength int
	Blocks      []*Record

	// Checksum is the 8-bit sum of the whole padded image.
	Checksum uint8
}

// Combine lays every record into a fullSize buffer of erased bytes, later
// records overwriting earlier ones, then slices it into blockLength strides.
// Each emitted block is labelled with its byte offset divided by addrDivisor.
func (img *Image) Combine(blockLength, fullSize, addrDivisor int) (*CombinedImage, error) {
	if blockLength <= 0 {
		return nil, errors.Errorf("invalid block length %d", blockLength)
	}
	if addrDivisor <= 0 {
		return nil, errors.Errorf("invalid address divisor %d", addrDivisor)
	}

	all := make([]byte, fullSize)
	for i := range all {
		all[i] = ErasedValue
	}
	for _, r := range img.Records {
		if uint64(r.Address)+uint64(len(r.Data)) > uint64(fullSize) {
			return nil, &FormatError{
				Format: img.Format,
				Err:    errors.Wrapf(ErrImageTooLarge, "%s ends past %X", r, fullSize),
			}
		}
		copy(all[r.Address:], r.Data)
	}

	combined := &CombinedImage{BlockLength: blockLength}
	for index := 0; index < fullSize; index += blockLength {
		end := index + blockLength
		if end > fullSize {
			end = fullSize
		}
		data := all[index:end]
		addr := uint32(index / addrDivisor)
		if isErased(data) {
			logrus.Tracef("hex: dropping erased block @ %04X", addr)
			continue
		}
		block := make([]byte, len(data))
		copy(block, data)
		combined.Blocks = append(combined.Blocks, &Record{
			Address:  addr,
			Data:     block,
			Checksum: IntelHexChecksum(addr, block),
		})
	}

	var sum uint8
	for _, b := range all {
		sum += b
	}
	combined.Checksum = sum
	logrus.Debugf("hex: combined %d bytes into %d blocks of %d", fullSize, len(combined.Blocks), blockLength)
	return combined, nil
}
