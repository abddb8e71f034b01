package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// Session statements bracketing a restore.
const (
	stmtAutocommitOff  = "SET autocommit = 0"
	stmtForeignKeysOff = "SET foreign_key_checks = 0"
	stmtForeignKeysOn  = "SET foreign_key_checks = 1"
	stmtAutocommitOn   = "SET autocommit = 1"
	stmtCommit         = "COMMIT"
	stmtRollback       = "ROLLBACK"
)

// Scripts are the decompressed SQL files a restore applies.
type Scripts struct {
	Schema string
	Data   string
}

func (s Scripts) Paths() []string { return []string{s.Schema, s.Data} }

// RestoreEngine applies a schema script then a data script on one relaxed
// session. Strict settings are put back whatever the outcome.
type RestoreEngine struct {
	db         domain.Database
	compressor domain.Compressor
	logger     Logger
}

func NewRestoreEngine(db domain.Database, compressor domain.Compressor, logger Logger) *RestoreEngine {
	return &RestoreEngine{db: db, compressor: compressor, logger: logger}
}

// Decompress expands both dumps next to the downloaded files.
func (e *RestoreEngine) Decompress(set domain.ArtifactSet) (Scripts, error) {
	scripts := Scripts{
		Schema: decompressedPath(set.Schema.LocalPath),
		Data:   decompressedPath(set.Data.LocalPath),
	}
	pairs := [][2]string{
		{set.Schema.LocalPath, scripts.Schema},
		{set.Data.LocalPath, scripts.Data},
	}
	for _, p := range pairs {
		e.logger.Infof("decompressing %s", p[0])
		if err := e.compressor.Decompress(p[0], p[1]); err != nil {
			return scripts, restoreError("decompress "+p[0], err)
		}
	}
	return scripts, nil
}

// Apply runs relax, schema, data and strict phases on a single session.
// A failure to restore strictness is returned only when every earlier phase
// succeeded; otherwise it is logged.
func (e *RestoreEngine) Apply(ctx context.Context, scripts Scripts) (err error) {
	sess, err := e.db.Session(ctx)
	if err != nil {
		return restoreError("open session", err)
	}
	defer sess.Close()

	defer func() {
		if serr := e.strict(context.WithoutCancel(ctx), sess); serr != nil {
			if err == nil {
				err = serr
				return
			}
			e.logger.Errorf("restoring strict session settings after failure: %v", serr)
		}
	}()

	for _, stmt := range []string{stmtAutocommitOff, stmtForeignKeysOff} {
		if err := sess.Exec(ctx, stmt); err != nil {
			return restoreError(stmt, err)
		}
	}
	e.logger.Infof("session relaxed: autocommit and foreign key checks disabled")

	if err := e.applyScript(ctx, sess, "schema", scripts.Schema); err != nil {
		return err
	}

	if err := e.applyScript(ctx, sess, "data", scripts.Data); err != nil {
		// Discards only the table in flight; LOCK TABLES and DDL in the dump
		// commit implicitly.
		if rerr := sess.Exec(context.WithoutCancel(ctx), stmtRollback); rerr != nil {
			e.logger.Errorf("rollback of data phase failed: %v", rerr)
		}
		return err
	}
	if err := sess.Exec(ctx, stmtCommit); err != nil {
		return restoreError(stmtCommit, err)
	}
	return nil
}

func (e *RestoreEngine) applyScript(ctx context.Context, sess domain.Session, phase, path string) error {
	command := fmt.Sprintf("apply %s script %s", phase, path)

	f, err := os.Open(path)
	if err != nil {
		return restoreError(command, err)
	}
	defer f.Close()

	e.logger.Infof("applying %s script %s", phase, path)
	n, err := sess.ApplyScript(ctx, f)
	if err != nil {
		return restoreError(command, fmt.Errorf("%s phase after %d statements: %w", phase, n, err))
	}
	e.logger.Infof("%s script applied: %d statements", phase, n)
	return nil
}

func (e *RestoreEngine) strict(ctx context.Context, sess domain.Session) error {
	var errs []error
	for _, stmt := range []string{stmtForeignKeysOn, stmtAutocommitOn} {
		if err := sess.Exec(ctx, stmt); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return restoreError("restore strict mode", errors.Join(errs...))
	}
	e.logger.Infof("session strict mode restored")
	return nil
}

func restoreError(command string, err error) error {
	se := domain.NewError(domain.KindRestoreApply, err)
	se.Command = command
	return se
}

func decompressedPath(path string) string {
	if trimmed, ok := strings.CutSuffix(path, ".gz"); ok {
		return trimmed
	}
	return path + ".sql"
}
