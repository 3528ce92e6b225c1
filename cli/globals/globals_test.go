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

package globals

import (
	"testing"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) *paths.Path {
	tmp, err := paths.MkTempDir("", "globals")
	require.NoError(t, err)
	t.Cleanup(func() { tmp.RemoveAll() })
	cfg := tmp.Join("bridge.yaml")
	require.NoError(t, cfg.WriteFile([]byte(content)))
	return cfg
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
port: /dev/ttyUSB0
device: rf200
timeout: 3s
hello_timeout: 1m
write_retries: 5
verify: false
attempts: 2
magic_address: 0x0300
`))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", cfg.Port)
	require.Equal(t, "rf200", cfg.Device)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, time.Minute, cfg.HelloTimeout)
	require.Equal(t, 5, *cfg.WriteRetries)
	require.False(t, *cfg.Verify)
	require.Equal(t, 2, cfg.Attempts)
	require.Equal(t, uint16(0x0300), cfg.MagicAddress)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(paths.New("testdata", "missing.yaml"))
	require.ErrorContains(t, err, "reading config")

	_, err = LoadConfig(writeConfig(t, "port: [unclosed"))
	require.ErrorContains(t, err, "parsing config")

	_, err = LoadConfig(writeConfig(t, "write_retries: -1"))
	require.ErrorContains(t, err, "must not be negative")
}
