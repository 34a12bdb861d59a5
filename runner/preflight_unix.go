//go:build !windows

package runner

import "golang.org/x/sys/unix"

func writeable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
