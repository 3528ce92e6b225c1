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
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	srecMinLineLength     = 6
	srecMaxAddress        = 0x1000000
	srecMaxRecordLength   = 16
	srecTermination       = "S9030000FC"
	srecTerminationPrefix = "S903"
)

// ReadSRecord parses S19 text into an Image. Only S1 records carry data;
// header, count and termination records are accepted and skipped. The address
// of an S9 record becomes the image StartAddress.
func ReadSRecord(r io.Reader) (*Image, error) {
	img := &Image{Format: SRecord}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != 'S' || len(line) < srecMinLineLength {
			return nil, formatErrorf(SRecord, lineNum, ErrInvalidLine, "%q", line)
		}

		switch line[1] {
		case '0', '5', '6', '7', '8':
			continue
		case '1', '9':
		default:
			return nil, formatErrorf(SRecord, lineNum, ErrUnsupportedRecord, "type S%c", line[1])
		}

		bin, err := hex.DecodeString(line[2:])
		if err != nil {
			return nil, formatErrorf(SRecord, lineNum, ErrNonHex, "%s", err)
		}
		// bin: count, address (2), payload..., checksum
		if int(bin[0]) != len(bin)-1 || len(bin) < 4 {
			return nil, formatErrorf(SRecord, lineNum, ErrLengthMismatch, "declared %d, found %d", bin[0], len(bin)-1)
		}
		if crc := OnesComplement(bin[:len(bin)-1]); crc != bin[len(bin)-1] {
			return nil, formatErrorf(SRecord, lineNum, ErrChecksumMismatch, "computed %02X, found %02X", crc, bin[len(bin)-1])
		}

		addr := uint32(binary.BigEndian.Uint16(bin[1:3]))
		if line[1] == '9' {
			img.StartAddress = &addr
			continue
		}
		img.appendData(addr, bin[3:len(bin)-1], SRecordChecksum)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading s-record")
	}
	return img, nil
}

// nextBoundary returns the first multiple of boundary strictly above addr.
func nextBoundary(addr uint32, boundary int) uint32 {
	b := uint32(boundary)
	return addr + b - addr%b
}

// Split cuts every record so that no chunk crosses a byteBoundary aligned
// address. Chunks come out in the order of the source records.
func (img *Image) Split(byteBoundary int) ([]*Record, error) {
	if byteBoundary <= 0 || byteBoundary > srecMaxAddress {
		return nil, errors.Errorf("invalid split boundary %d", byteBoundary)
	}
	var chunks []*Record
	for _, r := range img.Records {
		addr := r.Address
		data := r.Data
		for len(data) > 0 {
			n := int(nextBoundary(addr, byteBoundary) - addr)
			if n > len(data) {
				n = len(data)
			}
			chunk := data[:n]
			chunks = append(chunks, &Record{
				Address:  addr,
				Data:     chunk,
				Checksum: SRecordChecksum(addr, chunk),
			})
			data = data[n:]
			addr += uint32(n)
		}
	}
	return chunks, nil
}

// WriteSRecord serialises the image as S1 records followed by an S9
// termination record.
func (img *Image) WriteSRecord(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, r := range img.Records {
		for off := 0; off < r.Len(); off += srecMaxRecordLength {
			end := off + srecMaxRecordLength
			if end > r.Len() {
				end = r.Len()
			}
			addr := r.Address + uint32(off)
			if addr > 0xFFFF {
				return errors.Errorf("address %X does not fit an S1 record", addr)
			}
			data := r.Data[off:end]
			fmt.Fprintf(bw, "S1%02X%04X%s%02X\n",
				len(data)+3, addr, strings.ToUpper(hex.EncodeToString(data)), SRecordChecksum(addr, data))
		}
	}
	if img.StartAddress != nil {
		start := []byte{byte(*img.StartAddress >> 8), byte(*img.StartAddress)}
		fmt.Fprintf(bw, "%s%04X%02X\n", srecTerminationPrefix, *img.StartAddress&0xFFFF, OnesComplement([]byte{3}, start))
	} else {
		fmt.Fprintln(bw, srecTermination)
	}
	return bw.Flush()
}
