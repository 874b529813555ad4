//go:build !windows

package util

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// IsDirWritable returns true if path is a directory the current user owns and can write to.
func IsDirWritable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(err, "stat")
	}
	if !info.IsDir() {
		return false, errors.Newf("%s is not a directory", path)
	}
	// owner write bit
	if info.Mode().Perm()&0200 == 0 {
		return false, errors.Newf("write permission bit is not set for %s", path)
	}
	var stat syscall.Stat_t
	if err := syscall.Stat(path, &stat); err != nil {
		return false, errors.Wrap(err, "sysstat")
	}
	if uint32(os.Geteuid()) != stat.Uid && os.Geteuid() != 0 {
		return false, errors.Newf("user doesn't have permission to write to %s", path)
	}
	return true, nil
}
