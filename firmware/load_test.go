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
	"strings"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadIntelHex(t *testing.T) {
	for _, name := range []string{"small.hex", "small.hex.bz2"} {
		t.Run(name, func(t *testing.T) {
			img, err := Load(paths.New("testdata", name), IntelHex)
			require.NoError(t, err)
			require.Len(t, img.Records, 1)
			require.Equal(t, uint32(0x100), img.Records[0].Address)
			require.Equal(t, 16, img.Size())
		})
	}
}

func TestLoadSRecord(t *testing.T) {
	img, err := Load(paths.New("testdata", "rf100.s19"), SRecord)
	require.NoError(t, err)
	require.Len(t, img.Records, 2)
	require.Equal(t, uint32(0xEE00), img.Records[0].Address)
	require.Equal(t, 128, img.Records[0].Len())
	require.Equal(t, uint32(0xFFC0), img.Records[1].Address)
	require.Equal(t, 64, img.Records[1].Len())
	chunks, err := img.Split(64)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(paths.New("testdata", "missing.hex"), IntelHex)
	require.Error(t, err)
	var fe *FileError
	require.True(t, errors.As(err, &fe))
	require.Contains(t, fe.Path, "missing.hex")
}

func TestLoadEmptyImage(t *testing.T) {
	tmp, err := paths.MkTempDir("", "firmware")
	require.NoError(t, err)
	defer tmp.RemoveAll()
	empty := tmp.Join("empty.hex")
	require.NoError(t, empty.WriteFile([]byte(":00000001FF\n")))

	_, err = Load(empty, IntelHex)
	require.True(t, errors.Is(err, ErrEmptyImage))
}

func TestReadReportsFormatError(t *testing.T) {
	_, err := Read(strings.NewReader("S1"), SRecord)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
}
