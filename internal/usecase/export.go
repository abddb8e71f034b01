package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// Exporter produces the compressed dumps of a schema and their checksum
// sidecars.
type Exporter struct {
	dumper     domain.Dumper
	compressor domain.Compressor
	checksum   domain.Checksummer
	logger     Logger
}

func NewExporter(dumper domain.Dumper, compressor domain.Compressor, checksum domain.Checksummer, logger Logger) *Exporter {
	return &Exporter{dumper: dumper, compressor: compressor, checksum: checksum, logger: logger}
}

// Export writes the schema dump and its checksum before starting the data
// dump. The returned set carries sizes and digests.
func (e *Exporter) Export(ctx context.Context, set domain.ArtifactSet) (domain.ArtifactSet, error) {
	if err := os.MkdirAll(filepath.Dir(set.Schema.LocalPath), 0o755); err != nil {
		return set, exportError(fmt.Errorf("create workdir: %w", err))
	}

	if err := e.dumpAndSum(ctx, domain.DumpSchema, &set.Schema, &set.SchemaChecksum); err != nil {
		return set, err
	}
	if err := e.dumpAndSum(ctx, domain.DumpData, &set.Data, &set.DataChecksum); err != nil {
		return set, err
	}
	return set, nil
}

func (e *Exporter) dumpAndSum(ctx context.Context, kind domain.DumpKind, dump, sidecar *domain.Artifact) error {
	e.logger.Infof("dumping %s to %s", kind, dump.LocalPath)
	if err := e.dump(ctx, kind, dump.LocalPath); err != nil {
		return exportError(fmt.Errorf("%s dump: %w", kind, err))
	}

	info, err := os.Stat(dump.LocalPath)
	if err != nil {
		return exportError(fmt.Errorf("stat %s dump: %w", kind, err))
	}
	dump.Size = info.Size()

	sum, err := e.checksum.WriteSidecar(dump.LocalPath, sidecar.LocalPath)
	if err != nil {
		return exportError(fmt.Errorf("%s checksum: %w", kind, err))
	}
	dump.Checksum = sum
	if info, err := os.Stat(sidecar.LocalPath); err == nil {
		sidecar.Size = info.Size()
	}

	e.logger.Infof("%s dump written: %s (%.2f MB, md5 %s)",
		kind, dump.Name, float64(dump.Size)/(1024*1024), sum)
	return nil
}

// dump streams the dumper output through the compressor into path. A
// partial file is removed on failure.
func (e *Exporter) dump(ctx context.Context, kind domain.DumpKind, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close dump file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	zw, err := e.compressor.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}

	dumpErr := e.dumper.Dump(ctx, kind, zw)
	closeErr := zw.Close()
	if dumpErr != nil {
		return dumpErr
	}
	if closeErr != nil {
		return fmt.Errorf("finish compression: %w", closeErr)
	}
	return nil
}

func exportError(err error) error {
	se := domain.NewError(domain.KindExport, err)
	var ce *domain.CommandError
	if errors.As(err, &ce) {
		se.Command = ce.Command
	}
	return se
}
