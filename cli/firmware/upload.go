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
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bridgeflash/bridge-fwuploader/cli/feedback"
	fw "github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/bridgeflash/bridge-fwuploader/flasher"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// FlashResult is the outcome of a flashing command.
type FlashResult struct {
	Device   string `json:"device"`
	Port     string `json:"port"`
	Image    string `json:"image,omitempty"`
	Records  int    `json:"records"`
	Bytes    int    `json:"bytes"`
	Attempts int    `json:"attempts"`
	Elapsed  string `json:"elapsed"`
}

func (r *FlashResult) String() string {
	what := r.Image
	if what == "" {
		what = fmt.Sprintf("%d bytes", r.Bytes)
	}
	return fmt.Sprintf("Flashed %s to %s on %s in %s (%d attempt(s))", what, r.Device, r.Port, r.Elapsed, r.Attempts)
}

// Data implements feedback.Result interface
func (r *FlashResult) Data() interface{} {
	return r
}

// upload flashes image, starting a new session after each failure until
// attempts is reached.
type upload struct {
	family   flasher.Family
	port     string
	image    *fw.Image
	attempts int
	options  []flasher.Option
	flash    func(ctx context.Context, family flasher.Family, port string, image *fw.Image, opts ...flasher.Option) error
	pause    time.Duration
}

func (u *upload) run(ctx context.Context) (int, error) {
	opts := u.options
	if feedback.GetFormat() == feedback.Text {
		opts = append(opts, flasher.WithProgressCallback(printProgress))
	}
	for attempt := 1; ; attempt++ {
		logrus.Infof("Uploading firmware (try %d of %d)", attempt, u.attempts)
		err := u.flash(ctx, u.family, u.port, u.image, opts...)
		if err == nil {
			feedback.Printf("\n")
			logrus.Info("Operation completed: success! :-)")
			return attempt, nil
		}
		feedback.Printf("\n")
		logrus.Error(err)
		if attempt >= u.attempts || ctx.Err() != nil {
			return attempt, err
		}
		logrus.Infof("Waiting %s before retrying...", u.pause)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(u.pause):
		}
	}
}

// runUpload performs u and prints the result, exiting on failure.
func runUpload(u *upload, result *FlashResult) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	attempts, err := u.run(ctx)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error during firmware flashing: %s", err), exitCode(err))
	}
	result.Device = u.family.String()
	result.Port = u.port
	result.Records = len(u.image.Records)
	result.Bytes = u.image.Size()
	result.Attempts = attempts
	result.Elapsed = time.Since(start).Round(time.Millisecond).String()
	feedback.PrintResult(result)
}

func exitCode(err error) feedback.ExitCode {
	if errors.Is(err, context.Canceled) {
		return feedback.ErrGeneric
	}
	kind, ok := flasher.KindOf(err)
	if !ok {
		return feedback.ErrGeneric
	}
	switch kind {
	case flasher.TimeoutError:
		return feedback.ErrTimeout
	case flasher.RetryExhausted:
		return feedback.ErrRetriesExhausted
	case flasher.TransportError:
		return feedback.ErrTransport
	}
	var formatErr *fw.FormatError
	if errors.As(err, &formatErr) {
		return feedback.ErrBadImage
	}
	return feedback.ErrProtocol
}

// callback used to print the progress
func printProgress(progress, max int) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		feedback.Printf("Flashing progress: %d/%d\r", progress, max)
		return
	}
	// Redirected output gets one line per block instead of carriage returns.
	feedback.Printf("Flashing progress: %d/%d\n", progress, max)
}
