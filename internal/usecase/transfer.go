package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// Location reports which of the required dumps a bucket holds.
type Location struct {
	HasSchema bool
	HasData   bool
}

func (l Location) Found() bool { return l.HasSchema && l.HasData }

// Transfer moves artifacts between the local workdir and the object store.
// Each call is all-or-nothing from the caller's view.
type Transfer struct {
	store  domain.ObjectStore
	logger Logger
}

func NewTransfer(store domain.ObjectStore, logger Logger) *Transfer {
	return &Transfer{store: store, logger: logger}
}

// BucketExists matches bucket against the accessible buckets by exact name.
func BucketExists(ctx context.Context, store domain.ObjectStore, bucket string) (bool, error) {
	buckets, err := store.ListBuckets(ctx)
	if err != nil {
		return false, fmt.Errorf("list buckets: %w", err)
	}
	for _, b := range buckets {
		if b == bucket {
			return true, nil
		}
	}
	return false, nil
}

// Upload ships artifacts in the given order and stops at the first failure.
func (t *Transfer) Upload(ctx context.Context, bucket string, artifacts ...domain.Artifact) error {
	for _, a := range artifacts {
		t.logger.Infof("uploading %s to %s/%s", a.LocalPath, bucket, a.RemoteKey)
		if err := t.store.Put(ctx, a.LocalPath, bucket, a.RemoteKey); err != nil {
			return &domain.CommandError{
				Command: fmt.Sprintf("put %s %s/%s", a.LocalPath, bucket, a.RemoteKey),
				Err:     err,
			}
		}
	}
	return nil
}

// Locate lists bucket and succeeds only when both keys are present verbatim.
func (t *Transfer) Locate(ctx context.Context, bucket, schemaKey, dataKey string) (Location, error) {
	keys, err := t.store.List(ctx, bucket)
	if err != nil {
		return Location{}, &domain.CommandError{Command: "list " + bucket, Err: err}
	}

	var loc Location
	for _, k := range keys {
		switch k {
		case schemaKey:
			loc.HasSchema = true
		case dataKey:
			loc.HasData = true
		}
	}
	if loc.Found() {
		return loc, nil
	}

	var missing []string
	if !loc.HasSchema {
		missing = append(missing, schemaKey)
	}
	if !loc.HasData {
		missing = append(missing, dataKey)
	}
	return loc, domain.NewError(domain.KindNotFound,
		fmt.Errorf("Cannot find the bucket: %s, all the required files (missing %s)",
			bucket, strings.Join(missing, ", ")))
}

// Download fetches every artifact. Any failure is fatal to the batch.
func (t *Transfer) Download(ctx context.Context, bucket string, artifacts ...domain.Artifact) error {
	for _, a := range artifacts {
		t.logger.Infof("downloading %s/%s to %s", bucket, a.RemoteKey, a.LocalPath)
		if err := t.store.Get(ctx, bucket, a.RemoteKey, a.LocalPath); err != nil {
			return &domain.CommandError{
				Command: fmt.Sprintf("get %s/%s %s", bucket, a.RemoteKey, a.LocalPath),
				Err:     err,
			}
		}
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
