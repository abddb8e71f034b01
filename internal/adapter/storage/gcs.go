package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSOptions struct {
	CredentialsFile string
	ProjectID       string
	Endpoint        string
	ChunkSize       int
}

type GCSStorage struct {
	client    *storage.Client
	projectID string
	chunkSize int
}

func NewGCS(ctx context.Context, opts GCSOptions) (*GCSStorage, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, projectID: opts.ProjectID, chunkSize: opts.ChunkSize}, nil
}

func (g *GCSStorage) ListBuckets(ctx context.Context) ([]string, error) {
	if g.projectID == "" {
		return nil, errors.New("listing GCS buckets requires a project id")
	}
	var names []string
	it := g.client.Buckets(ctx, g.projectID)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS buckets: %w", err)
		}
		names = append(names, attrs.Name)
	}
}

func (g *GCSStorage) List(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	it := g.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
}

// Put streams the file as a resumable upload in chunks.
func (g *GCSStorage) Put(ctx context.Context, localPath, bucket, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if g.chunkSize > 0 {
		w.ChunkSize = g.chunkSize
	}
	if _, err := io.Copy(w, file); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload to GCS: %w", err)
	}
	return nil
}

func (g *GCSStorage) Get(ctx context.Context, bucket, key, localPath string) error {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download from GCS: %w", err)
	}
	return nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}
