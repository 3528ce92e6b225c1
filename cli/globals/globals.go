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
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// Verbose is set by the --verbose flag.
	Verbose bool
	// LogLevel is set by the --log-level flag.
	LogLevel string
	// Settings holds the configuration file content, or the zero Config when
	// no file was given.
	Settings = &Config{}
)

// Config is the content of a --config YAML file. Command line flags take
// precedence over every field.
type Config struct {
	Port          string        `yaml:"port"`
	Device        string        `yaml:"device"`
	Timeout       time.Duration `yaml:"timeout"`
	HelloTimeout  time.Duration `yaml:"hello_timeout"`
	WriteRetries  *int          `yaml:"write_retries"`
	Verify        *bool         `yaml:"verify"`
	Attempts      int           `yaml:"attempts"`
	ExpectedIdent string        `yaml:"expected_ident"`
	MagicAddress  uint16        `yaml:"magic_address"`
}

// LoadConfig reads the YAML configuration file at path.
func LoadConfig(path *paths.Path) (*Config, error) {
	data, err := path.ReadFile()
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if cfg.WriteRetries != nil && *cfg.WriteRetries < 0 {
		return nil, errors.Errorf("parsing config %s: write_retries must not be negative", path)
	}
	return cfg, nil
}
