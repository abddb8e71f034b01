package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/dumpcycle/internal/domain"
)

type BackupParams struct {
	Schema  string
	Bucket  string
	Workdir string
}

// Backup runs health checks, export and upload as one linear workflow.
type Backup struct {
	params   BackupParams
	health   *HealthProber
	exporter *Exporter
	transfer *Transfer
	db       domain.Database
	cleanup  *Cleanup
	obs      Observers
	now      func() time.Time
}

func NewBackup(
	params BackupParams,
	health *HealthProber,
	exporter *Exporter,
	transfer *Transfer,
	db domain.Database,
	cleanup *Cleanup,
	obs Observers,
) *Backup {
	return &Backup{
		params:   params,
		health:   health,
		exporter: exporter,
		transfer: transfer,
		db:       db,
		cleanup:  cleanup,
		obs:      obs,
		now:      time.Now,
	}
}

func (uc *Backup) Execute(ctx context.Context) (*domain.Report, error) {
	r := newRun(domain.ModeBackup, uc.params.Schema, uc.params.Bucket, uc.obs)
	ctx, span := r.start(ctx)
	defer span.End()

	err := r.stage(ctx, domain.StageHealth, domain.KindHealth, func(ctx context.Context) error {
		return uc.health.Check(ctx, uc.params.Bucket)
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}

	set := domain.NewArtifactSet(uc.params.Schema, uc.now(), uc.params.Workdir)
	err = r.stage(ctx, domain.StageExport, domain.KindExport, func(ctx context.Context) error {
		var err error
		set, err = uc.exporter.Export(ctx, set)
		return err
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}
	r.report.Artifacts = set.UploadOrder()

	err = r.stage(ctx, domain.StageUpload, domain.KindTransfer, func(ctx context.Context) error {
		return uc.upload(ctx, &set)
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}

	r.report.Artifacts = set.UploadOrder()
	for _, a := range r.report.Artifacts {
		r.recorder.ObserveArtifact(string(domain.ModeBackup), string(a.Kind), a.Size)
	}
	r.succeed(ctx)

	uc.cleanup.Execute(localPaths(set.All())...)
	return r.report, nil
}

// upload ships the four dump artifacts, then snapshots the live table
// inventory and ships it last.
func (uc *Backup) upload(ctx context.Context, set *domain.ArtifactSet) error {
	if err := uc.transfer.Upload(ctx, uc.params.Bucket, set.Schema, set.Data, set.DataChecksum, set.SchemaChecksum); err != nil {
		return err
	}

	tables, err := uc.db.Tables(ctx)
	if err != nil {
		return fmt.Errorf("table inventory snapshot: %w", err)
	}
	if err := tables.WriteFile(set.Tables.LocalPath); err != nil {
		return err
	}
	set.Tables.Size = fileSize(set.Tables.LocalPath)
	uc.obs.Logger.Infof("table inventory captured: %d tables", len(tables))

	return uc.transfer.Upload(ctx, uc.params.Bucket, set.Tables)
}
