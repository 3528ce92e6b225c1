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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMagicKeyImage(t *testing.T) {
	img := MagicKeyImage(IntelHex, MagicEraseScript, DefaultMagicAddress)
	require.Len(t, img.Records, 1)
	rec := img.Records[0]
	require.Equal(t, uint32(0x02F0), rec.Address)
	require.Equal(t, []byte("RMDEMGKBS"), rec.Data)
	require.Equal(t, uint8(0x69), TwosComplement([]byte{9, 0x02, 0xF0}, rec.Data))
}

func TestBuildMagicKeyIntelHex(t *testing.T) {
	for _, cmd := range []MagicKeyCommand{MagicEraseScript, MagicDefaultNV} {
		t.Run(cmd.String(), func(t *testing.T) {
			text, err := BuildMagicKey(IntelHex, cmd, DefaultMagicAddress)
			require.NoError(t, err)

			img, err := ReadIntelHex(bytes.NewReader(text))
			require.NoError(t, err)
			require.Len(t, img.Records, 1)
			require.Equal(t, uint32(DefaultMagicAddress), img.Records[0].Address)
			require.Equal(t, append([]byte{0x52, 0x4D, 0x44, 0x45, 0x4D, 0x47, 0x4B, 0x42}, byte(cmd)), img.Records[0].Data)
		})
	}
}

func TestBuildMagicKeySRecord(t *testing.T) {
	text, err := BuildMagicKey(SRecord, MagicDefaultNV, 0x1234)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")
	require.Equal(t, []string{"S10C1234524D44454D474B424E16", "S9030000FC"}, lines)

	img, err := ReadSRecord(bytes.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, []byte("RMDEMGKBN"), img.Records[0].Data)
}

func TestMagicKeyCommandString(t *testing.T) {
	require.Equal(t, "erase-script", MagicEraseScript.String())
	require.Equal(t, "default-nv", MagicDefaultNV.String())
	require.Equal(t, "magic('X')", MagicKeyCommand('X').String())
}
