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
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
)

var bzip2Magic = []byte("BZh")

// Read parses r in the given format. Input compressed with bzip2, as
// distribution images are, is decompressed on the fly.
func Read(r io.Reader, format Format) (*Image, error) {
	br := bufio.NewReader(r)
	var in io.Reader = br
	if head, err := br.Peek(len(bzip2Magic)); err == nil && bytes.Equal(head, bzip2Magic) {
		logrus.Debug("image is bzip2 compressed")
		in = bzip2.NewReader(br)
	}

	if format == SRecord {
		return ReadSRecord(in)
	}
	return ReadIntelHex(in)
}

// Load reads and parses the image file at path. Any failure to open or read
// the file is reported as a FileError.
func Load(path *paths.Path, format Format) (*Image, error) {
	logrus.Debugf("Reading file %s", path)
	f, err := path.Open()
	if err != nil {
		logrus.Error(err)
		return nil, &FileError{Path: path.String(), Err: err}
	}
	defer f.Close()

	img, err := Read(f, format)
	if err != nil {
		if _, ok := err.(*FormatError); !ok {
			err = &FileError{Path: path.String(), Err: err}
		}
		logrus.Error(err)
		return nil, err
	}
	if len(img.Records) == 0 {
		err = &FormatError{Format: format, Err: ErrEmptyImage}
		logrus.Error(err)
		return nil, err
	}
	logrus.Infof("Loaded %s: %d records, %d bytes", path, len(img.Records), img.Size())
	return img, nil
}
