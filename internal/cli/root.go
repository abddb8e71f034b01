// Package cli holds the dumpcycle command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/semmidev/dumpcycle/internal/app"
	"github.com/semmidev/dumpcycle/internal/config"
	"github.com/semmidev/dumpcycle/internal/domain"
)

type options struct {
	configPath string
	envFile    string
	logLevel   string
	workdir    string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dumpcycle",
		Short: "Back up and restore a MySQL schema through object storage",
		Long: `dumpcycle dumps a MySQL schema to compressed, checksummed artifacts,
ships them to an object store and restores them on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.json", "path to the configuration file (json, yaml or toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with DUMPCYCLE_* overrides")
	flags.StringVar(&opts.logLevel, "log-level", "", "override app.log_level")
	flags.StringVar(&opts.workdir, "workdir", "", "override app.workdir")

	cmd.AddCommand(
		newBackupCommand(opts),
		newRestoreCommand(opts),
		newScheduleCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command tree. The returned error maps to the exit code
// through domain.ExitCode.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &domain.StageError{Stage: domain.StageConfig, Kind: domain.KindConfig, Cause: fmt.Errorf("load env file: %w", err)}
	}
	return nil
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.App.LogLevel = o.logLevel
	}
	if o.workdir != "" {
		cfg.App.Workdir = o.workdir
	}
	return cfg, nil
}

func runOnce(ctx context.Context, cfg *config.Config, mode domain.Mode) error {
	a, err := app.New(ctx, cfg, mode)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.Run(ctx)
	return err
}

func newBackupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the backup schema and upload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, domain.ModeBackup)
		},
	}
}

func newRestoreCommand(opts *options) *cobra.Command {
	var timestamp string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Download a backup, verify it and apply it to the restore schema",
		Long: `Download a backup, verify it and apply it to the restore schema.

Object keys come from restore.aws.{filedata,fileschema,md5data,md5schema}.
With --timestamp they are derived from restore.mysql.schema and the run
timestamp instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if timestamp != "" {
				if err := applyTimestamp(cfg, timestamp); err != nil {
					return err
				}
			}
			return runOnce(cmd.Context(), cfg, domain.ModeRestore)
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "backup run timestamp (YYYYMMDDhhmmss) to restore")
	return cmd
}

// applyTimestamp fills the restore object keys from the naming scheme.
func applyTimestamp(cfg *config.Config, value string) error {
	ts, err := time.Parse(domain.TimestampLayout, value)
	if err != nil {
		return &domain.StageError{Stage: domain.StageConfig, Kind: domain.KindConfig, Cause: fmt.Errorf("invalid --timestamp %q: %w", value, err)}
	}
	schema := cfg.Restore.MySQL.Schema
	if schema == "" {
		return &domain.StageError{Stage: domain.StageConfig, Kind: domain.KindConfig, Cause: errors.New("--timestamp needs restore.mysql.schema")}
	}
	aws := &cfg.Restore.AWS
	aws.FileSchema = domain.SchemaDumpName(schema, ts)
	aws.FileData = domain.DataDumpName(schema, ts)
	aws.MD5Schema = domain.SchemaChecksumName(schema, ts)
	aws.MD5Data = domain.DataChecksumName(schema, ts)
	return nil
}

func newScheduleCommand(opts *options) *cobra.Command {
	var cronSpec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on a cron schedule and serve /healthz and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, domain.ModeBackup)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Schedule(cmd.Context(), cronSpec)
		},
	}
	cmd.Flags().StringVar(&cronSpec, "cron", "", "six-field cron spec, overrides schedule.cron")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.Version)
		},
	}
}
