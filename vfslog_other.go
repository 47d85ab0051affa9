//go:build !aix && !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd && !solaris
// +build !aix,!darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd,!solaris

package vfslog

import "github.com/vfslog/vfslog/backend"

// lockExclusive is a no-op on platforms with no flock equivalent wired up. The single-owner-per-mount
// model then relies entirely on callers not opening the same backing file twice.
func lockExclusive(storage backend.Storage) error {
	return nil
}
