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
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const sixteenBytesHex = ":100000000102030405060708090A0B0C0D0E0F1068\n:00000001FF\n"

func TestReadIntelHexSingleBlock(t *testing.T) {
	img, err := ReadIntelHex(strings.NewReader(sixteenBytesHex))
	require.NoError(t, err)
	require.Len(t, img.Records, 1)
	require.Equal(t, uint32(0), img.Records[0].Address)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, img.Records[0].Data)
	require.Equal(t, uint8(0x68), img.Records[0].Checksum)

	combined, err := img.Combine(16, 16*4, 1)
	require.NoError(t, err)
	require.Len(t, combined.Blocks, 1)
	block := combined.Blocks[0]
	require.Equal(t, uint32(0), block.Address)
	require.Equal(t, img.Records[0].Data, block.Data)

	sum := 16
	for _, b := range block.Data {
		sum += int(b)
	}
	require.Equal(t, uint8((^sum+1)&0xFF), block.Checksum)
}

func TestReadIntelHexMergesAdjacentRecords(t *testing.T) {
	text := ":100000000102030405060708090A0B0C0D0E0F1068\n" +
		":100010001112131415161718191A1B1C1D1E1F2058\n" +
		":00000001FF\n"
	img, err := ReadIntelHex(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, img.Records, 1)
	require.Equal(t, 32, img.Records[0].Len())
	require.Equal(t, IntelHexChecksum(0, img.Records[0].Data), img.Records[0].Checksum)
}

func TestReadIntelHexExtendedAddress(t *testing.T) {
	text := ":100000000102030405060708090A0B0C0D0E0F1068\n" +
		":020000040001F9\n" +
		":100000000102030405060708090A0B0C0D0E0F1068\n" +
		":00000001FF\n"
	img, err := ReadIntelHex(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, img.Records, 2)
	require.Equal(t, uint32(0x10000), img.Records[1].Address)
}

func TestReadIntelHexStopsAtEOF(t *testing.T) {
	img, err := ReadIntelHex(strings.NewReader(sixteenBytesHex + "garbage after the end\n"))
	require.NoError(t, err)
	require.Len(t, img.Records, 1)
}

func TestReadIntelHexStartSegment(t *testing.T) {
	start := ":0400000312345678E5\n"
	img, err := ReadIntelHex(strings.NewReader(start + sixteenBytesHex))
	require.NoError(t, err)
	require.Equal(t, &SegmentAddress{CS: 0x1234, IP: 0x5678}, img.StartSegment)

	_, err = ReadIntelHex(strings.NewReader(start + start + sixteenBytesHex))
	require.True(t, errors.Is(err, ErrDuplicateStart))
}

func TestReadIntelHexErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"no colon", "100000000102030405060708090A0B0C0D0E0F1068", ErrInvalidLine},
		{"too short", ":0000001", ErrInvalidLine},
		{"not hex", ":1000000001020304050607080Z0A0B0C0D0E0F1068", ErrNonHex},
		{"length", ":110000000102030405060708090A0B0C0D0E0F1068", ErrLengthMismatch},
		{"checksum", ":100000000102030405060708090A0B0C0D0E0F1069", ErrChecksumMismatch},
		{"record type", ":00000002FE", ErrUnsupportedRecord},
		{"start segment size", ":030000031234565E", ErrInvalidStartRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadIntelHex(strings.NewReader(tt.line + "\n:00000001FF\n"))
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, 1, fe.Line)
		})
	}
}

func TestReadIntelHexRejectsFlippedBits(t *testing.T) {
	line := strings.TrimSuffix(strings.SplitN(sixteenBytesHex, "\n", 2)[0], "\n")
	raw := []byte(line)
	// Flip every bit of every payload and checksum nibble, one at a time.
	for pos := 9; pos < len(raw); pos++ {
		for bit := 0; bit < 4; bit++ {
			v := hexNibble(raw[pos]) ^ (1 << bit)
			mutated := append([]byte{}, raw...)
			mutated[pos] = "0123456789ABCDEF"[v]
			_, err := ReadIntelHex(bytes.NewReader(mutated))
			require.Error(t, err, "pos %d bit %d", pos, bit)
			require.True(t, errors.Is(err, ErrChecksumMismatch), "pos %d bit %d: %v", pos, bit, err)
		}
	}
}

func hexNibble(c byte) byte {
	if c >= 'A' {
		return c - 'A' + 10
	}
	return c - '0'
}

func TestCombineDropsErasedBlocks(t *testing.T) {
	img := &Image{Format: IntelHex}
	img.appendData(0x00, bytes.Repeat([]byte{0xFF}, 32), IntelHexChecksum)
	img.appendData(0x40, []byte{0x01, 0x02}, IntelHexChecksum)
	img.appendData(0x7E, []byte{0x03, 0x04, 0x05, 0x06}, IntelHexChecksum)

	combined, err := img.Combine(32, 256, 1)
	require.NoError(t, err)

	var addrs []uint32
	for _, b := range combined.Blocks {
		require.False(t, isErased(b.Data))
		require.Len(t, b.Data, 32)
		require.Equal(t, IntelHexChecksum(b.Address, b.Data), b.Checksum)
		addrs = append(addrs, b.Address)
	}
	require.Equal(t, []uint32{0x40, 0x60, 0x80}, addrs)

	// The emitted blocks reconstruct every programmed byte.
	rebuilt := bytes.Repeat([]byte{0xFF}, 256)
	for _, b := range combined.Blocks {
		copy(rebuilt[b.Address:], b.Data)
	}
	require.Equal(t, []byte{0x01, 0x02}, rebuilt[0x40:0x42])
	require.Equal(t, []byte{0x03, 0x04, 0x05, 0x06}, rebuilt[0x7E:0x82])
}

func TestCombineAddressDivisorAndOverlap(t *testing.T) {
	img := &Image{Format: IntelHex}
	img.appendData(0x10, []byte{0x01, 0x01}, IntelHexChecksum)
	img.appendData(0x11, []byte{0x02}, IntelHexChecksum)

	combined, err := img.Combine(16, 64, 2)
	require.NoError(t, err)
	require.Len(t, combined.Blocks, 1)
	require.Equal(t, uint32(0x08), combined.Blocks[0].Address)
	require.Equal(t, []byte{0x01, 0x02}, combined.Blocks[0].Data[:2])
}

func TestCombineRejectsOversizedImage(t *testing.T) {
	img := &Image{Format: IntelHex}
	img.appendData(0xF0, bytes.Repeat([]byte{0}, 32), IntelHexChecksum)
	_, err := img.Combine(16, 0x100, 1)
	require.True(t, errors.Is(err, ErrImageTooLarge))

	// A record ending at 2^32 must not wrap past the bounds check.
	img = &Image{Format: IntelHex}
	img.appendData(0xFFFFFFF0, bytes.Repeat([]byte{0x11}, 16), IntelHexChecksum)
	_, err = img.Combine(16, 0x100, 1)
	require.True(t, errors.Is(err, ErrImageTooLarge))
}

func TestReadIntelHexRejectsWrappingRecord(t *testing.T) {
	const wrapping = ":02000004FFFFFC\n" +
		":10FFF000000102030405060708090A0B0C0D0E0F89\n" +
		":00000001FF\n"
	_, err := ReadIntelHex(strings.NewReader(wrapping))
	require.True(t, errors.Is(err, ErrImageTooLarge), "got %v", err)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, 2, fe.Line)
}

func TestCombineChecksum(t *testing.T) {
	img, err := ReadIntelHex(strings.NewReader(sixteenBytesHex))
	require.NoError(t, err)
	combined, err := img.Combine(16, 32, 1)
	require.NoError(t, err)
	// 1+2+...+16 = 136, plus sixteen erased bytes.
	require.Equal(t, uint8((136+16*0xFF)&0xFF), combined.Checksum)
}

func TestIntelHexRoundTrip(t *testing.T) {
	img := &Image{Format: IntelHex}
	img.appendData(0x0000, []byte{0xDE, 0xAD, 0xBE, 0xEF}, IntelHexChecksum)
	img.appendData(0x0123, bytes.Repeat([]byte{0x5A}, 40), IntelHexChecksum)
	img.appendData(0x1FFF0, []byte{0x01, 0x02, 0x03}, IntelHexChecksum)

	var buf bytes.Buffer
	require.NoError(t, img.WriteIntelHex(&buf))

	back, err := ReadIntelHex(&buf)
	require.NoError(t, err)
	require.Equal(t, flatten(img), flatten(back))
}

// flatten maps every programmed address to its byte.
func flatten(img *Image) map[uint32]byte {
	m := map[uint32]byte{}
	for _, r := range img.Records {
		for i, b := range r.Data {
			m[r.Address+uint32(i)] = b
		}
	}
	return m
}

func ExampleImage_Combine() {
	img, _ := ReadIntelHex(strings.NewReader(sixteenBytesHex))
	combined, _ := img.Combine(16, 1024, 1)
	for _, b := range combined.Blocks {
		fmt.Println(b)
	}
	// Output: 0000+16 (csum 68)
}
