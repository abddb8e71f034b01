package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

type AzureOptions struct {
	AccountName string
	AccountKey  string
	// Endpoint overrides https://<account>.blob.core.windows.net, e.g. for Azurite.
	Endpoint    string
	BlockSize   int64
	Parallelism uint16
}

// AzureStorage treats containers as buckets.
type AzureStorage struct {
	serviceURL  azblob.ServiceURL
	blockSize   int64
	parallelism uint16
}

func NewAzure(opts AzureOptions) (*AzureStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", opts.AccountName)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Azure service URL: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	return &AzureStorage{
		serviceURL:  azblob.NewServiceURL(*u, pipeline),
		blockSize:   opts.BlockSize,
		parallelism: opts.Parallelism,
	}, nil
}

func (a *AzureStorage) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := a.serviceURL.ListContainersSegment(ctx, marker, azblob.ListContainersSegmentOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list Azure containers: %w", err)
		}
		for _, c := range resp.ContainerItems {
			names = append(names, c.Name)
		}
		marker = resp.NextMarker
	}
	return names, nil
}

func (a *AzureStorage) List(ctx context.Context, bucket string) ([]string, error) {
	containerURL := a.serviceURL.NewContainerURL(bucket)
	var keys []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list Azure blobs: %w", err)
		}
		for _, blob := range resp.Segment.BlobItems {
			keys = append(keys, blob.Name)
		}
		marker = resp.NextMarker
	}
	return keys, nil
}

func (a *AzureStorage) Put(ctx context.Context, localPath, bucket, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	blobURL := a.serviceURL.NewContainerURL(bucket).NewBlockBlobURL(key)
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   a.blockSize,
		Parallelism: a.parallelism,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Azure: %w", err)
	}
	return nil
}

func (a *AzureStorage) Get(ctx context.Context, bucket, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	blobURL := a.serviceURL.NewContainerURL(bucket).NewBlobURL(key)
	err = azblob.DownloadBlobToFile(ctx, blobURL, 0, azblob.CountToEnd, file, azblob.DownloadFromBlobOptions{
		BlockSize:   a.blockSize,
		Parallelism: a.parallelism,
	})
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download from Azure: %w", err)
	}
	return nil
}

func (a *AzureStorage) Close() error { return nil }
