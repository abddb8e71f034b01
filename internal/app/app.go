package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/dumpcycle/internal/adapter/checksum"
	"github.com/semmidev/dumpcycle/internal/adapter/compressor"
	"github.com/semmidev/dumpcycle/internal/adapter/database"
	"github.com/semmidev/dumpcycle/internal/adapter/notifier"
	"github.com/semmidev/dumpcycle/internal/config"
	"github.com/semmidev/dumpcycle/internal/domain"
	"github.com/semmidev/dumpcycle/internal/infrastructure/diskspace"
	"github.com/semmidev/dumpcycle/internal/infrastructure/logger"
	"github.com/semmidev/dumpcycle/internal/infrastructure/metrics"
	"github.com/semmidev/dumpcycle/internal/infrastructure/telemetry"
	"github.com/semmidev/dumpcycle/internal/usecase"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Runner executes one pipeline run.
type Runner interface {
	Execute(ctx context.Context) (*domain.Report, error)
}

type App struct {
	config   *config.Config
	mode     domain.Mode
	op       config.OperationConfig
	logger   *logger.Logger
	notifier *notifier.Multi
	metrics  *metrics.Metrics
	db       *database.MySQL
	store    domain.ObjectStore
	runner   Runner

	shutdownTracing func(context.Context) error

	mu         sync.Mutex
	lastReport *domain.Report
}

// New wires every collaborator of mode from cfg. Secrets from Vault are
// applied before validation. A validation failure is notified and written to
// the summary file before it is returned.
func New(ctx context.Context, cfg *config.Config, mode domain.Mode) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:  cfg.App.LogLevel,
		File:   cfg.LogFile(mode),
		Fields: map[string]any{"app": cfg.App.Name, "mode": string(mode)},
	})
	if err != nil {
		return nil, configError(fmt.Errorf("failed to initialize logger: %w", err))
	}
	log.Infof("Starting %s %s (%s)", cfg.App.Name, Version, mode)

	a := &App{
		config:          cfg,
		mode:            mode,
		logger:          log,
		metrics:         metrics.New(),
		shutdownTracing: func(context.Context) error { return nil },
	}

	if err := applyVaultSecrets(ctx, cfg, mode, log); err != nil {
		a.notifier = buildNotifier(cfg.Notify, log)
		return nil, a.failConfig(ctx, err)
	}
	a.notifier = buildNotifier(cfg.Notify, log)
	log.Infof("%d notification channel(s) configured", a.notifier.Len())

	op, err := cfg.Operation(mode)
	if err != nil {
		return nil, a.failConfig(ctx, err)
	}
	a.op = op

	shutdown, err := telemetry.Init(ctx, cfg.App.Name, Version, cfg.Tracing.Endpoint)
	if err != nil {
		log.Warnf("tracing disabled: %v", err)
	} else {
		a.shutdownTracing = shutdown
	}

	if err := a.wire(ctx); err != nil {
		return nil, a.failConfig(ctx, err)
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	db, err := database.Open(database.Options{
		Host:     a.op.MySQL.Host,
		Port:     a.op.MySQL.Port,
		User:     a.op.MySQL.User,
		Password: a.op.MySQL.Pass,
		Schema:   a.op.MySQL.Schema,
	})
	if err != nil {
		return err
	}
	a.db = db

	store, err := buildStore(ctx, a.op.Storage, a.config.Transfer)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", a.op.Storage.Provider, err)
	}
	a.store = store
	a.logger.Infof("Storage provider %s, bucket %s", a.op.Storage.Provider, a.op.Storage.Bucket)

	obs := usecase.Observers{Logger: a.logger, Notifier: a.notifier, Recorder: a.metrics}
	gz := compressor.NewGzip()
	md5 := checksum.NewMD5()
	transfer := usecase.NewTransfer(store, a.logger)
	cleanup := usecase.NewCleanup(a.logger, a.config.App.KeepLocal)

	switch a.mode {
	case domain.ModeBackup:
		dumper := database.NewMySQLDump(database.DumpOptions{
			Binary:   a.op.MySQL.DumpBinary,
			Host:     a.op.MySQL.Host,
			Port:     a.op.MySQL.Port,
			User:     a.op.MySQL.User,
			Password: a.op.MySQL.Pass,
			Schema:   a.op.MySQL.Schema,
		})
		policy := usecase.DiskPolicy{
			Check:        a.config.Disk.Check,
			Dir:          a.config.App.Workdir,
			SafetyFactor: a.config.Disk.SafetyFactor,
			MinFreeBytes: a.config.Disk.MinFreeBytes,
		}
		a.runner = usecase.NewBackup(
			usecase.BackupParams{Schema: a.op.MySQL.Schema, Bucket: a.op.Storage.Bucket, Workdir: a.config.App.Workdir},
			usecase.NewHealthProber(db, store, diskspace.New(), policy, a.logger),
			usecase.NewExporter(dumper, gz, md5, a.logger),
			transfer,
			db,
			cleanup,
			obs,
		)
	case domain.ModeRestore:
		a.runner = usecase.NewRestore(
			usecase.RestoreParams{
				Schema:  a.op.MySQL.Schema,
				Bucket:  a.op.Storage.Bucket,
				Workdir: a.config.App.Workdir,
				Keys:    a.op.Keys,
			},
			transfer,
			md5,
			usecase.NewRestoreEngine(db, gz, a.logger),
			usecase.NewVerifier(db, a.logger),
			cleanup,
			obs,
		)
	}
	return nil
}

// Run executes the pipeline once, writes the summary and flushes metrics.
func (a *App) Run(ctx context.Context) (*domain.Report, error) {
	report, err := a.runner.Execute(ctx)
	a.finish(ctx, report)
	return report, err
}

func (a *App) finish(ctx context.Context, report *domain.Report) {
	if report != nil {
		a.mu.Lock()
		a.lastReport = report
		a.mu.Unlock()

		path := a.config.SummaryFile(a.mode)
		if err := report.WriteFile(path); err != nil {
			a.logger.Warnf("failed to write summary %s: %v", path, err)
		} else {
			a.logger.Infof("Summary written to %s", path)
		}
	}
	a.flushMetrics(ctx)
}

func (a *App) flushMetrics(ctx context.Context) {
	if url := a.config.Metrics.Pushgateway; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.metrics.Push(pushCtx, url, a.config.App.Name+"_"+string(a.mode)); err != nil {
			a.logger.Warnf("%v", err)
		}
	}
	if path := a.config.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Warnf("%v", err)
		}
	}
}

func (a *App) LastReport() *domain.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReport
}

// failConfig reports a configuration failure the same way a pipeline
// failure is reported.
func (a *App) failConfig(ctx context.Context, err error) error {
	err = configError(err)

	report := domain.NewReport(a.mode, a.config.Section(a.mode).MySQL.Schema, a.config.Section(a.mode).AWS.Bucket)
	report.AddStage(domain.StageConfig, 0, err)
	report.Fail(err)

	a.logger.Errorf("[%s] configuration invalid: %v", a.mode, err)
	if a.notifier != nil && a.notifier.Len() > 0 {
		subject := fmt.Sprintf("%s Notification", modeTitle(a.mode))
		body := fmt.Sprintf("%s Operation failed at stage config\n\ncause: %v\n", modeTitle(a.mode), err)
		if nerr := a.notifier.Notify(context.WithoutCancel(ctx), subject, body); nerr != nil {
			a.logger.Warnf("[%s] notification failed: %v", a.mode, nerr)
		}
	}
	a.finish(ctx, report)
	a.Close()
	return err
}

func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warnf("failed to close storage: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warnf("failed to close database: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warnf("failed to flush traces: %v", err)
	}
	a.logger.Close()
}

func configError(err error) error {
	var se *domain.StageError
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = domain.StageConfig
		}
		return se
	}
	return &domain.StageError{Stage: domain.StageConfig, Kind: domain.KindConfig, Cause: err}
}

func modeTitle(m domain.Mode) string {
	if m == domain.ModeRestore {
		return "Restore"
	}
	return "Backup"
}
