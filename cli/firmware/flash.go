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
	"os"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/bridgeflash/bridge-fwuploader/cli/arguments"
	"github.com/bridgeflash/bridge-fwuploader/cli/feedback"
	"github.com/bridgeflash/bridge-fwuploader/cli/globals"
	fw "github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/bridgeflash/bridge-fwuploader/flasher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	commonFlags  arguments.Flags
	sessionFlags arguments.SessionFlags
	fwFile       string
)

// NewFlashCommand creates a new `flash` command
func NewFlashCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "flash",
		Short: "Flashes a firmware image to a bridge.",
		Long:  "Flashes an Intel HEX (rf200, rf300) or S-record (rf100) firmware image to the bridge bootloader on the given serial port. Reset the bridge once the command is waiting.",
		Example: "" +
			"  " + os.Args[0] + " flash --device rf200 --address /dev/ttyUSB0 -i RF200_AES128_SnapV2.4.9.hex\n" +
			"  " + os.Args[0] + " flash -d rf100 -a COM3 -i RF100_SNAP.S19 --attempts 3\n",
		Args: cobra.NoArgs,
		Run:  runFlash,
	}
	commonFlags.AddToCommand(command)
	sessionFlags.AddToCommand(command)
	command.Flags().StringVarP(&fwFile, "input-file", "i", "", "Path of the firmware to upload")
	return command
}

func runFlash(cmd *cobra.Command, args []string) {
	family := resolveFlags(cmd)
	if fwFile == "" {
		feedback.Fatal("Error during firmware flashing: missing input file", feedback.ErrBadArgument)
	}

	firmwareFilePath := paths.New(fwFile)
	image, err := fw.Load(firmwareFilePath, family.Format())
	if err != nil {
		feedback.Fatal(err.Error(), feedback.ErrBadImage)
	}
	logrus.Debugf("device: %s, address: %s, image: %s", family, commonFlags.Address, firmwareFilePath)

	runUpload(newUpload(family, image), &FlashResult{Image: firmwareFilePath.Base()})
}

func resolveFlags(cmd *cobra.Command) flasher.Family {
	family, err := commonFlags.Resolve(cmd, globals.Settings)
	if err != nil {
		feedback.Fatal(err.Error(), feedback.ErrBadArgument)
	}
	if err := sessionFlags.Resolve(cmd, globals.Settings); err != nil {
		feedback.Fatal(err.Error(), feedback.ErrBadArgument)
	}
	return family
}

func newUpload(family flasher.Family, image *fw.Image) *upload {
	return &upload{
		family:   family,
		port:     commonFlags.Address,
		image:    image,
		attempts: sessionFlags.Attempts,
		options:  sessionFlags.Options(),
		flash:    flasher.Flash,
		pause:    time.Second,
	}
}
