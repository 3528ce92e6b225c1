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

package arguments

import (
	"time"

	"github.com/bridgeflash/bridge-fwuploader/cli/globals"
	"github.com/bridgeflash/bridge-fwuploader/flasher"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Flags contains the flags selecting the device to talk to.
// This is useful so all flags used by commands that need
// this information are consistent with each other.
type Flags struct {
	Address string
	Device  string
}

// AddToCommand adds the flags used to set address and device family to the specified Command
func (f *Flags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Device, "device", "d", "", "Bridge device family: rf100, rf200 or rf300")
	cmd.Flags().StringVarP(&f.Address, "address", "a", "", "Serial port of the bridge, e.g.: COM10, /dev/ttyUSB0")
}

// Resolve fills the flags left unset from cfg and returns the device family.
func (f *Flags) Resolve(cmd *cobra.Command, cfg *globals.Config) (flasher.Family, error) {
	if !cmd.Flags().Changed("address") && cfg.Port != "" {
		f.Address = cfg.Port
	}
	if !cmd.Flags().Changed("device") && cfg.Device != "" {
		f.Device = cfg.Device
	}
	if f.Device == "" {
		return 0, errors.New("missing device family")
	}
	if f.Address == "" {
		return 0, errors.New("missing serial port address")
	}
	return flasher.ParseFamily(f.Device)
}

// SessionFlags tune a flashing session.
type SessionFlags struct {
	Timeout       time.Duration
	HelloTimeout  time.Duration
	WriteRetries  int
	NoVerify      bool
	Attempts      int
	ExpectedIdent string
}

// AddToCommand adds the session flags to the specified Command
func (s *SessionFlags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&s.Timeout, "timeout", 2*time.Second, "Longest silence tolerated from the bootloader")
	cmd.Flags().DurationVar(&s.HelloTimeout, "hello-timeout", 10*time.Second, "How long to wait for the bootloader after reset")
	cmd.Flags().IntVar(&s.WriteRetries, "write-retries", 3, "Number of retries of a rejected write")
	cmd.Flags().BoolVar(&s.NoVerify, "no-verify", false, "Do not read back written data")
	cmd.Flags().IntVar(&s.Attempts, "attempts", 1, "Number of flashing sessions to try before giving up")
	cmd.Flags().StringVar(&s.ExpectedIdent, "ident", "", "Refuse RF100 devices not reporting this identification")
}

// Resolve fills the flags left unset from cfg and validates them.
func (s *SessionFlags) Resolve(cmd *cobra.Command, cfg *globals.Config) error {
	changed := cmd.Flags().Changed
	if !changed("timeout") && cfg.Timeout > 0 {
		s.Timeout = cfg.Timeout
	}
	if !changed("hello-timeout") && cfg.HelloTimeout > 0 {
		s.HelloTimeout = cfg.HelloTimeout
	}
	if !changed("write-retries") && cfg.WriteRetries != nil {
		s.WriteRetries = *cfg.WriteRetries
	}
	if !changed("no-verify") && cfg.Verify != nil {
		s.NoVerify = !*cfg.Verify
	}
	if !changed("attempts") && cfg.Attempts > 0 {
		s.Attempts = cfg.Attempts
	}
	if !changed("ident") && cfg.ExpectedIdent != "" {
		s.ExpectedIdent = cfg.ExpectedIdent
	}
	if s.Attempts < 1 {
		return errors.New("number of attempts should be at least 1")
	}
	if s.WriteRetries < 0 {
		return errors.New("number of write retries must not be negative")
	}
	return nil
}

// Options converts the flags into flasher options.
func (s *SessionFlags) Options() []flasher.Option {
	return []flasher.Option{
		flasher.WithTimeout(s.Timeout),
		flasher.WithHelloTimeout(s.HelloTimeout),
		flasher.WithWriteRetries(s.WriteRetries),
		flasher.WithVerifyWrite(!s.NoVerify),
		flasher.WithExpectedIdent(s.ExpectedIdent),
	}
}
