package storage

import (
	"context"
	"fmt"

	"github.com/semmidev/dumpcycle/internal/domain"
)

type Options struct {
	Provider        string
	AccessKey       string
	Secret          string
	Region          string
	Endpoint        string
	PathStyle       bool
	CredentialsFile string
	ProjectID       string
	Account         string
	Root            string

	PartSize    int64
	Concurrency int
}

// New builds the object store for opts.Provider.
func New(ctx context.Context, opts Options) (domain.ObjectStore, error) {
	switch opts.Provider {
	case "s3", "":
		return NewS3(ctx, S3Options{
			Region:      opts.Region,
			AccessKey:   opts.AccessKey,
			SecretKey:   opts.Secret,
			Endpoint:    opts.Endpoint,
			PathStyle:   opts.PathStyle,
			PartSize:    opts.PartSize,
			Concurrency: opts.Concurrency,
		})
	case "gcs":
		return NewGCS(ctx, GCSOptions{
			CredentialsFile: opts.CredentialsFile,
			ProjectID:       opts.ProjectID,
			Endpoint:        opts.Endpoint,
			ChunkSize:       int(opts.PartSize),
		})
	case "azure":
		account := opts.Account
		if account == "" {
			account = opts.AccessKey
		}
		return NewAzure(AzureOptions{
			AccountName: account,
			AccountKey:  opts.Secret,
			Endpoint:    opts.Endpoint,
			BlockSize:   opts.PartSize,
			Parallelism: uint16(opts.Concurrency),
		})
	case "local":
		return NewLocal(opts.Root)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", opts.Provider)
	}
}
