//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package vfslog

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/vfslog/vfslog/backend"
)

// lockExclusive takes an advisory, non-blocking exclusive flock on storage's underlying file
// descriptor, enforcing a single writer per mounted backing file. This is advisory only: it does
// nothing to stop a process that doesn't check the lock, and nothing at all for writers on another
// host against a networked filesystem. It is not a distributed lock.
func lockExclusive(storage backend.Storage) error {
	osFile, err := storage.Sys()
	if err != nil {
		return fmt.Errorf("backing storage has no flock-able file descriptor: %w", err)
	}
	if err := unix.Flock(int(osFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("another mount already holds the backing file open: %w", err)
	}
	return nil
}
