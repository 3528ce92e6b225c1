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

// Package main generates Markdown and man page documentation for the
// bridge-fwuploader CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bridgeflash/bridge-fwuploader/cli"
	"github.com/spf13/cobra/doc"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: docsgen <output folder> [man]")
		os.Exit(1)
	}
	outDir := os.Args[1]

	// Create the output folder if it doesn't already exist
	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := cli.NewCommand()
	root.DisableAutoGenTag = true // Disable addition of auto-generated date stamp

	var err error
	if len(os.Args) > 2 && os.Args[2] == "man" {
		err = doc.GenManTree(root, &doc.GenManHeader{Title: "BRIDGE-FWUPLOADER", Section: "1"}, outDir)
	} else {
		err = doc.GenMarkdownTree(root, outDir)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
