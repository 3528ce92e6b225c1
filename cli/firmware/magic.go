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
	"fmt"
	"os"

	"github.com/arduino/go-paths-helper"
	"github.com/bridgeflash/bridge-fwuploader/cli/feedback"
	"github.com/bridgeflash/bridge-fwuploader/cli/globals"
	fw "github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/spf13/cobra"
)

var (
	magicAddress uint16
	outputFile   string
)

// NewEraseScriptCommand creates a new `erase-script` command
func NewEraseScriptCommand() *cobra.Command {
	return newMagicCommand(fw.MagicEraseScript,
		"Erases the script stored on a bridge.",
		"Sends the magic key that makes the bridge bootloader erase the resident script.")
}

// NewDefaultNVCommand creates a new `default-nv` command
func NewDefaultNVCommand() *cobra.Command {
	return newMagicCommand(fw.MagicDefaultNV,
		"Resets the NV parameters of a bridge.",
		"Sends the magic key that makes the bridge bootloader restore the factory NV parameters.")
}

func newMagicCommand(key fw.MagicKeyCommand, short, long string) *cobra.Command {
	command := &cobra.Command{
		Use:   key.String(),
		Short: short,
		Long:  long,
		Example: "" +
			"  " + os.Args[0] + " " + key.String() + " --device rf200 --address /dev/ttyUSB0\n" +
			"  " + os.Args[0] + " " + key.String() + " --device rf100 --output magic.s19\n",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runMagic(cmd, key)
		},
	}
	commonFlags.AddToCommand(command)
	sessionFlags.AddToCommand(command)
	command.Flags().Uint16Var(&magicAddress, "magic-address", fw.DefaultMagicAddress, "Address the bootloader reads the magic key from")
	command.Flags().StringVarP(&outputFile, "output", "o", "", "Write the magic key image to this file instead of flashing it")
	return command
}

func runMagic(cmd *cobra.Command, key fw.MagicKeyCommand) {
	if outputFile != "" && !cmd.Flags().Changed("address") {
		// no port needed to write the file
		commonFlags.Address = "-"
	}
	family := resolveFlags(cmd)
	addr := magicAddress
	if !cmd.Flags().Changed("magic-address") {
		addr = family.MagicAddress()
		if globals.Settings.MagicAddress != 0 {
			addr = globals.Settings.MagicAddress
		}
	}

	if outputFile != "" {
		data, err := fw.BuildMagicKey(family.Format(), key, addr)
		if err != nil {
			feedback.Fatal(fmt.Sprintf("Error building magic key: %s", err), feedback.ErrGeneric)
		}
		if err := paths.New(outputFile).WriteFile(data); err != nil {
			feedback.Fatal(fmt.Sprintf("Error writing %s: %s", outputFile, err), feedback.ErrGeneric)
		}
		feedback.PrintResult(&magicFileResult{Command: key.String(), Path: outputFile, Address: fmt.Sprintf("%04X", addr)})
		return
	}

	image := fw.MagicKeyImage(family.Format(), key, addr)
	runUpload(newUpload(family, image), &FlashResult{Image: key.String() + " magic key"})
}

type magicFileResult struct {
	Command string `json:"command"`
	Path    string `json:"path"`
	Address string `json:"address"`
}

func (r *magicFileResult) String() string {
	return fmt.Sprintf("Wrote %s magic key @%s to %s", r.Command, r.Address, r.Path)
}

func (r *magicFileResult) Data() interface{} {
	return r
}
