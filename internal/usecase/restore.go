package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/semmidev/dumpcycle/internal/domain"
)

type RestoreParams struct {
	Schema  string
	Bucket  string
	Workdir string
	Keys    domain.RemoteKeys
}

// Restore fetches a backup, proves its integrity, applies it and compares
// the resulting table inventory.
type Restore struct {
	params   RestoreParams
	transfer *Transfer
	checksum domain.Checksummer
	engine   *RestoreEngine
	verifier *Verifier
	cleanup  *Cleanup
	obs      Observers
}

func NewRestore(
	params RestoreParams,
	transfer *Transfer,
	checksum domain.Checksummer,
	engine *RestoreEngine,
	verifier *Verifier,
	cleanup *Cleanup,
	obs Observers,
) *Restore {
	return &Restore{
		params:   params,
		transfer: transfer,
		checksum: checksum,
		engine:   engine,
		verifier: verifier,
		cleanup:  cleanup,
		obs:      obs,
	}
}

func (uc *Restore) Execute(ctx context.Context) (*domain.Report, error) {
	r := newRun(domain.ModeRestore, uc.params.Schema, uc.params.Bucket, uc.obs)
	ctx, span := r.start(ctx)
	defer span.End()

	set := domain.ArtifactSetFromKeys(uc.params.Keys, uc.params.Workdir)
	if ts, err := backupTimestamp(set.Schema.RemoteKey); err == nil {
		r.logger.Infof("[%s] restoring backup taken at %s", r.mode, ts.Format("2006-01-02 15:04:05"))
	}

	err := r.stage(ctx, domain.StageLocate, domain.KindTransfer, func(ctx context.Context) error {
		_, err := uc.transfer.Locate(ctx, uc.params.Bucket, set.Schema.RemoteKey, set.Data.RemoteKey)
		return err
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}

	err = r.stage(ctx, domain.StageDownload, domain.KindTransfer, func(ctx context.Context) error {
		if err := os.MkdirAll(uc.params.Workdir, 0o755); err != nil {
			return fmt.Errorf("create workdir: %w", err)
		}
		return uc.transfer.Download(ctx, uc.params.Bucket, set.All()...)
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}
	for _, a := range []*domain.Artifact{&set.Schema, &set.Data, &set.SchemaChecksum, &set.DataChecksum, &set.Tables} {
		a.Size = fileSize(a.LocalPath)
	}
	r.report.Artifacts = set.All()

	err = r.stage(ctx, domain.StageIntegrity, domain.KindIntegrity, func(ctx context.Context) error {
		return uc.verifyIntegrity(set)
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}

	var scripts Scripts
	err = r.stage(ctx, domain.StageRestore, domain.KindRestoreApply, func(ctx context.Context) error {
		var err error
		if scripts, err = uc.engine.Decompress(set); err != nil {
			return err
		}
		return uc.engine.Apply(ctx, scripts)
	})
	if err != nil {
		return r.report, r.fail(ctx, err)
	}

	_ = r.stage(ctx, domain.StageVerify, domain.KindMismatch, func(ctx context.Context) error {
		uc.verify(ctx, r, set)
		return nil
	})

	for _, a := range r.report.Artifacts {
		r.recorder.ObserveArtifact(string(domain.ModeRestore), string(a.Kind), a.Size)
	}
	r.succeed(ctx)

	uc.cleanup.Execute(append(localPaths(set.All()), scripts.Paths()...)...)
	return r.report, nil
}

func (uc *Restore) verifyIntegrity(set domain.ArtifactSet) error {
	if err := uc.checksum.Verify(set.Schema.LocalPath, set.SchemaChecksum.LocalPath); err != nil {
		return domain.NewError(domain.KindIntegrity, fmt.Errorf("schema dump: %w", err))
	}
	if err := uc.checksum.Verify(set.Data.LocalPath, set.DataChecksum.LocalPath); err != nil {
		return domain.NewError(domain.KindIntegrity, fmt.Errorf("data dump: %w", err))
	}
	uc.obs.Logger.Infof("checksums verified for %s and %s", set.Schema.Name, set.Data.Name)
	return nil
}

// verify surfaces inventory differences as warnings. The restore itself has
// completed at this point, so nothing here fails the run.
func (uc *Restore) verify(ctx context.Context, r *run, set domain.ArtifactSet) {
	restored := filepath.Join(uc.params.Workdir, domain.RestoredTablesFile)
	warning, err := uc.verifier.Verify(ctx, set.Tables.LocalPath, restored)
	if err != nil {
		msg := fmt.Sprintf("table inventory could not be verified: %v", err)
		r.logger.Warnf("[%s] %s", r.mode, msg)
		r.report.Warn(msg)
		return
	}
	if warning != nil {
		r.logger.Warnf("[%s] %s", r.mode, warning.Error())
		r.report.Warn(warning.Error())
		return
	}
	r.logger.Infof("[%s] restored table inventory matches %s", r.mode, set.Tables.Name)
}
