// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fileutils checks files referenced by configuration before they are used.
package fileutils

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotRegularFile is returned by CheckFile for directories and special files.
var ErrNotRegularFile = errors.New("not a regular file")

// FileExists checks if specified file exists.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)

	return err == nil
}

// CheckFile returns an error describing why the file cannot be used as an input file.
func CheckFile(filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, filename)
	}

	return nil
}

// CheckOutputDir returns an error unless files can be written to the directory.
func CheckOutputDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}

	if !IsWritable(path) {
		return fmt.Errorf("directory is not writable: %s", path)
	}

	return nil
}
