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

import "time"

// Config holds the settings of a flashing session.
type Config struct {
	// Timeout is the longest silence tolerated once the handshake has started.
	Timeout time.Duration
	// HelloTimeout is how long to wait for the bootloader to announce itself.
	HelloTimeout time.Duration
	// WriteRetries is how many times a rejected write is retried.
	WriteRetries int
	// VerifyWrite reads written data back when the device supports it.
	VerifyWrite bool
	// ExpectedIdent, when set, must match the identification string reported
	// by an RF100 bootloader.
	ExpectedIdent string
	// PollInterval is the pause between two scheduler ticks in Run.
	PollInterval time.Duration

	ProgressCallback func(progress, max int)
	ErrorCallback    func(err error)
	FinishedCallback func()
}

func defaultConfig() Config {
	return Config{
		Timeout:      2 * time.Second,
		HelloTimeout: 10 * time.Second,
		WriteRetries: 3,
		VerifyWrite:  true,
		PollInterval: 5 * time.Millisecond,
	}
}

// Option configures a Flasher.
type Option func(*Config)

// WithTimeout sets the reply timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithHelloTimeout sets how long to wait for the bootloader hello.
func WithHelloTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HelloTimeout = timeout
	}
}

// WithWriteRetries sets the retry budget for rejected writes.
func WithWriteRetries(retries int) Option {
	return func(c *Config) {
		c.WriteRetries = retries
	}
}

// WithVerifyWrite enables or disables read-back verification.
func WithVerifyWrite(verify bool) Option {
	return func(c *Config) {
		c.VerifyWrite = verify
	}
}

// WithExpectedIdent rejects RF100 devices reporting another identification.
func WithExpectedIdent(ident string) Option {
	return func(c *Config) {
		c.ExpectedIdent = ident
	}
}

// WithPollInterval sets the pause between scheduler ticks.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithProgressCallback is called as the session advances.
func WithProgressCallback(callback func(progress, max int)) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithErrorCallback is called once with the error ending the session.
func WithErrorCallback(callback func(err error)) Option {
	return func(c *Config) {
		c.ErrorCallback = callback
	}
}

// WithFinishedCallback is called once when the image is fully programmed.
func WithFinishedCallback(callback func()) Option {
	return func(c *Config) {
		c.FinishedCallback = callback
	}
}
