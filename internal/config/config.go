package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/semmidev/dumpcycle/internal/domain"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backup   SectionConfig  `mapstructure:"backup"`
	Restore  SectionConfig  `mapstructure:"restore"`
	Disk     DiskConfig     `mapstructure:"disk"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	Workdir     string `mapstructure:"workdir"`
	KeepLocal   bool   `mapstructure:"keep_local"`
	SummaryFile string `mapstructure:"summary_file"`
}

// SectionConfig is the document shape shared by the backup and restore sections.
type SectionConfig struct {
	MySQL MySQLConfig   `mapstructure:"mysql"`
	AWS   StorageConfig `mapstructure:"aws"`
}

type MySQLConfig struct {
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	Schema     string `mapstructure:"schema"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DumpBinary string `mapstructure:"dump_bin"`

	// passMissing is set by Load when the document has no pass key at all.
	// An explicitly empty password is valid.
	passMissing bool
}

type StorageConfig struct {
	Provider        string `mapstructure:"provider"`
	AccessKey       string `mapstructure:"access_key"`
	Secret          string `mapstructure:"secret"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
	Account         string `mapstructure:"account"`
	Root            string `mapstructure:"root"`

	// restore only
	FileData   string `mapstructure:"filedata"`
	FileSchema string `mapstructure:"fileschema"`
	MD5Data    string `mapstructure:"md5data"`
	MD5Schema  string `mapstructure:"md5schema"`
	Tables     string `mapstructure:"tables"`
}

type DiskConfig struct {
	Check        bool    `mapstructure:"check"`
	SafetyFactor float64 `mapstructure:"safety_factor"`
	MinFreeBytes uint64  `mapstructure:"min_free_bytes"`
}

type TransferConfig struct {
	PartSizeMB  int64 `mapstructure:"part_size_mb"`
	Concurrency int   `mapstructure:"concurrency"`
}

type NotifyConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type VaultConfig struct {
	Address         string `mapstructure:"address"`
	Token           string `mapstructure:"token"`
	NotifyPath      string `mapstructure:"notify_path"`
	CredentialsPath string `mapstructure:"credentials_path"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Textfile    string `mapstructure:"textfile"`
	Listen      string `mapstructure:"listen"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

const DefaultLogFile = "dumpcycle.log"

// Load reads the configuration document at path. The format follows the
// file extension and defaults to JSON. Environment variables prefixed with
// DUMPCYCLE_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	v.SetEnvPrefix("DUMPCYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &domain.StageError{
			Stage: domain.StageConfig,
			Kind:  domain.KindConfig,
			Cause: fmt.Errorf("failed to read config: %w", err),
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &domain.StageError{
			Stage: domain.StageConfig,
			Kind:  domain.KindConfig,
			Cause: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	cfg.Backup.MySQL.passMissing = !v.IsSet("backup.mysql.pass")
	cfg.Restore.MySQL.passMissing = !v.IsSet("restore.mysql.pass")

	return &cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// envKeys have no default, so AutomaticEnv alone would not surface them
// through Unmarshal when the document omits them.
var envKeys = []string{
	"mysql.user", "mysql.pass", "mysql.schema",
	"aws.access_key", "aws.secret", "aws.bucket", "aws.endpoint",
	"aws.credentials_file", "aws.project_id", "aws.account", "aws.root",
	"aws.filedata", "aws.fileschema", "aws.md5data", "aws.md5schema",
}

var ambientEnvKeys = []string{
	"app.log_file", "app.summary_file",
	"notify.email.host", "notify.email.username", "notify.email.password", "notify.email.from",
	"notify.telegram.bot_token", "notify.telegram.chat_id",
	"notify.webhook.url", "notify.nats.url",
	"vault.address", "vault.token", "vault.notify_path", "vault.credentials_path",
	"metrics.pushgateway", "metrics.textfile", "tracing.endpoint",
}

func bindEnv(v *viper.Viper) {
	for _, section := range []string{"backup", "restore"} {
		for _, key := range envKeys {
			_ = v.BindEnv(section + "." + key)
		}
	}
	for _, key := range ambientEnvKeys {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dumpcycle")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.workdir", ".")
	v.SetDefault("app.keep_local", false)

	for _, section := range []string{"backup", "restore"} {
		v.SetDefault(section+".mysql.host", "localhost")
		v.SetDefault(section+".mysql.port", 3306)
		v.SetDefault(section+".mysql.dump_bin", "mysqldump")
		v.SetDefault(section+".aws.provider", "s3")
		v.SetDefault(section+".aws.region", "us-east-1")
	}
	v.SetDefault("restore.aws.tables", domain.TablesFile)

	v.SetDefault("disk.check", true)
	v.SetDefault("disk.safety_factor", 1.0)
	v.SetDefault("disk.min_free_bytes", 0)

	v.SetDefault("transfer.part_size_mb", 8)
	v.SetDefault("transfer.concurrency", 10)

	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.nats.subject", "dumpcycle.events")

	v.SetDefault("metrics.listen", ":9102")
	v.SetDefault("schedule.cron", "0 0 2 * * *")
}

// Section returns the raw section for mode.
func (c *Config) Section(mode domain.Mode) SectionConfig {
	if mode == domain.ModeRestore {
		return c.Restore
	}
	return c.Backup
}

// LogFile defaults to dumpcycle.log inside the work directory.
func (c *Config) LogFile(mode domain.Mode) string {
	if c.App.LogFile != "" {
		return c.App.LogFile
	}
	return filepath.Join(c.App.Workdir, DefaultLogFile)
}

func (c *Config) SummaryFile(mode domain.Mode) string {
	if c.App.SummaryFile != "" {
		return c.App.SummaryFile
	}
	return filepath.Join(c.App.Workdir, string(mode)+"_summary.json")
}
