package domain

import (
	"context"
	"io"
)

type DumpKind string

const (
	DumpSchema DumpKind = "schema"
	DumpData   DumpKind = "data"
)

// Dumper writes a logical dump of the configured schema to w.
type Dumper interface {
	Dump(ctx context.Context, kind DumpKind, w io.Writer) error
}

// Database is the native connection to the configured schema.
type Database interface {
	Probe(ctx context.Context) error
	Tables(ctx context.Context) (TableInventory, error)
	SizeEstimate(ctx context.Context) (int64, error)
	Session(ctx context.Context) (Session, error)
	Close() error
}

// Session pins one server connection so that session variables set through
// Exec apply to every statement run afterwards.
type Session interface {
	Exec(ctx context.Context, statement string) error
	ApplyScript(ctx context.Context, r io.Reader) (int, error)
	Close() error
}

type Compressor interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	Decompress(sourcePath, destPath string) error
}

type Checksummer interface {
	Sum(path string) (string, error)
	WriteSidecar(path, sidecarPath string) (string, error)
	Verify(path, sidecarPath string) error
}

// ObjectStore treats keys and bucket names as exact, case-sensitive strings.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]string, error)
	List(ctx context.Context, bucket string) ([]string, error)
	Put(ctx context.Context, localPath, bucket, key string) error
	Get(ctx context.Context, bucket, key, localPath string) error
	Close() error
}

type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}
