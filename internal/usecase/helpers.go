package usecase

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// backupTimestamp recovers the run timestamp from a dump key such as
// orders.20240101020000.sql.gz or orders.20240101020000_data.sql.gz.
func backupTimestamp(key string) (time.Time, error) {
	name := strings.TrimSuffix(path.Base(key), ".gz")
	name = strings.TrimSuffix(name, ".sql")
	name = strings.TrimSuffix(name, "_data")

	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("invalid dump name format: %s", key)
	}
	return time.Parse(domain.TimestampLayout, name[idx+1:])
}

func localPaths(artifacts []domain.Artifact) []string {
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		paths = append(paths, a.LocalPath)
	}
	return paths
}
