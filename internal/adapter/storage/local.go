package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage maps buckets to directories under a root. Keys may contain
// slashes and become nested paths.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) path(bucket, key string) (string, error) {
	p := filepath.Join(l.basePath, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(filepath.Join(l.basePath, bucket), p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

func (l *LocalStorage) ListBuckets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	var buckets []string
	for _, entry := range entries {
		if entry.IsDir() {
			buckets = append(buckets, entry.Name())
		}
	}
	return buckets, nil
}

func (l *LocalStorage) List(ctx context.Context, bucket string) ([]string, error) {
	root := filepath.Join(l.basePath, bucket)
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) Put(ctx context.Context, localPath, bucket, key string) error {
	if _, err := os.Stat(filepath.Join(l.basePath, bucket)); err != nil {
		return fmt.Errorf("bucket %s: %w", bucket, err)
	}
	dest, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	return copyFile(localPath, dest)
}

func (l *LocalStorage) Get(ctx context.Context, bucket, key, localPath string) error {
	src, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	return copyFile(src, localPath)
}

func (l *LocalStorage) Close() error { return nil }

// copyFile writes through a temporary sibling so a failed copy never leaves
// a partial object behind.
func copyFile(srcPath, destPath string) error {
	source, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("failed to move into place: %w", err)
	}
	return nil
}
