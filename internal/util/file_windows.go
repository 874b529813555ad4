//go:build windows

package util

import (
	"os"

	"github.com/cockroachdb/errors"
)

// IsDirWritable returns true if path is a directory with the owner write bit set.
func IsDirWritable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(err, "stat")
	}
	if !info.IsDir() {
		return false, errors.Newf("%s is not a directory", path)
	}
	if info.Mode().Perm()&0200 == 0 {
		return false, errors.Newf("write permission bit is not set for %s", path)
	}
	return true, nil
}
