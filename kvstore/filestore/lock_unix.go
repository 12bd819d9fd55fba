//go:build unix

package filestore

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile blocks until f holds an exclusive advisory lock. The kernel drops
// the lock if the process dies.
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
