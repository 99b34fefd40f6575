package utils

import (
	"fmt"
	"os"
)

// EnsureWritableDir creates dir if needed and proves it is writable by
// creating and removing a scratch file.
func EnsureWritableDir(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	scratch, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := scratch.Name()
	scratch.Close()
	return os.Remove(name)
}
