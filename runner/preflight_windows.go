//go:build windows

package runner

import (
	"os"
	"path/filepath"
)

// writeable tries to create a file in path; Windows ACLs are not reflected in
// mode bits.
func writeable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	f, err := os.CreateTemp(dir, ".webcept-write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
