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

	"github.com/pkg/errors"
)

var (
	ErrInvalidLine        = errors.New("invalid line")
	ErrNonHex             = errors.New("non-hex characters")
	ErrLengthMismatch     = errors.New("record length does not match")
	ErrChecksumMismatch   = errors.New("checksums do not match")
	ErrInvalidStartRecord = errors.New("invalid start segment address record")
	ErrDuplicateStart     = errors.New("duplicate start address")
	ErrUnsupportedRecord  = errors.New("unsupported record type")
	ErrImageTooLarge      = errors.New("record does not fit in the device image")
	ErrEmptyImage         = errors.New("image contains no data records")
)

// FormatError reports a malformed firmware file. Parsing stops at the first one.
type FormatError struct {
	Format Format
	Line   int
	Err    error
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Format, e.Err)
	}
	return fmt.Sprintf("%s line %d: %s", e.Format, e.Line, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// FileError reports an image that could not be opened or read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("reading image %s: %s", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func formatErrorf(format Format, line int, cause error, msg string, args ...interface{}) error {
	return &FormatError{
		Format: format,
		Line:   line,
		Err:    errors.Wrapf(cause, msg, args...),
	}
}
