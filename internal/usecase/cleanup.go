package usecase

import (
	"errors"
	"io/fs"
	"os"
)

// Cleanup removes local scratch files once a run no longer needs them.
type Cleanup struct {
	logger    Logger
	keepLocal bool
}

func NewCleanup(logger Logger, keepLocal bool) *Cleanup {
	return &Cleanup{logger: logger, keepLocal: keepLocal}
}

// Execute deletes paths. Missing files are ignored and other failures are
// logged, never returned: a finished run is not undone by a stale file.
func (uc *Cleanup) Execute(paths ...string) int {
	if uc.keepLocal {
		uc.logger.Infof("keeping %d local files", len(paths))
		return 0
	}

	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				uc.logger.Warnf("failed to remove %s: %v", p, err)
			}
			continue
		}
		removed++
	}
	uc.logger.Infof("cleanup completed, %d local files removed", removed)
	return removed
}
