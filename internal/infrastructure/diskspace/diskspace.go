// Package diskspace reports free bytes on the filesystem holding a path.
package diskspace

import (
	"fmt"
	"os"
	"path/filepath"
)

type Probe struct{}

func New() Probe { return Probe{} }

// Free returns the bytes available to an unprivileged user on the filesystem
// containing path. A missing path is resolved against its nearest existing
// parent.
func (Probe) Free(path string) (uint64, error) {
	dir, err := existingDir(path)
	if err != nil {
		return 0, err
	}
	free, err := freeBytes(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read free space of %s: %w", dir, err)
	}
	return free, nil
}

func existingDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing directory for %s", path)
		}
		abs = parent
	}
}
