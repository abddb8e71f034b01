package config

import (
	"fmt"
	"strings"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// OperationConfig is the validated parameter set of one run. It is built
// once and handed to components by value.
type OperationConfig struct {
	Mode    domain.Mode
	MySQL   MySQLConfig
	Storage StorageConfig
	Keys    domain.RemoteKeys
}

// Credentials override the secrets of an OperationConfig, typically from Vault.
type Credentials struct {
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	AccessKey string `mapstructure:"access_key"`
	Secret    string `mapstructure:"secret"`
}

// Operation validates the section for mode and returns the run parameters.
func (c *Config) Operation(mode domain.Mode) (OperationConfig, error) {
	if mode != domain.ModeBackup && mode != domain.ModeRestore {
		return OperationConfig{}, configError(fmt.Errorf("unknown mode %q", mode))
	}

	section := c.Section(mode)
	if err := section.Validate(mode); err != nil {
		return OperationConfig{}, configError(err)
	}
	if err := c.validateAmbient(); err != nil {
		return OperationConfig{}, configError(err)
	}

	op := OperationConfig{
		Mode:    mode,
		MySQL:   section.MySQL,
		Storage: section.AWS,
	}
	if mode == domain.ModeRestore {
		op.Keys = domain.RemoteKeys{
			DataFile:       section.AWS.FileData,
			SchemaFile:     section.AWS.FileSchema,
			DataChecksum:   section.AWS.MD5Data,
			SchemaChecksum: section.AWS.MD5Schema,
			Tables:         section.AWS.Tables,
		}
	}
	return op, nil
}

// Validate reports every required field of mode that is missing.
func (s SectionConfig) Validate(mode domain.Mode) error {
	prefix := string(mode)
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, prefix+"."+key)
		}
	}

	require("mysql.user", s.MySQL.User)
	if s.MySQL.passMissing {
		missing = append(missing, prefix+".mysql.pass")
	}
	require("mysql.schema", s.MySQL.Schema)
	require("aws.bucket", s.AWS.Bucket)

	switch s.AWS.Provider {
	case "s3", "":
		require("aws.access_key", s.AWS.AccessKey)
		require("aws.secret", s.AWS.Secret)
	case "azure":
		require("aws.secret", s.AWS.Secret)
	case "gcs":
	case "local":
		require("aws.root", s.AWS.Root)
	default:
		return fmt.Errorf("%s.aws.provider: unsupported provider %q", prefix, s.AWS.Provider)
	}

	if mode == domain.ModeRestore {
		require("aws.filedata", s.AWS.FileData)
		require("aws.fileschema", s.AWS.FileSchema)
		require("aws.md5data", s.AWS.MD5Data)
		require("aws.md5schema", s.AWS.MD5Schema)
	}

	if s.MySQL.Port < 0 || s.MySQL.Port > 65535 {
		return fmt.Errorf("%s.mysql.port: out of range: %d", prefix, s.MySQL.Port)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validateAmbient() error {
	if c.Disk.SafetyFactor < 0 {
		return fmt.Errorf("disk.safety_factor must not be negative")
	}
	if c.Transfer.Concurrency < 1 {
		return fmt.Errorf("transfer.concurrency must be at least 1")
	}
	if c.Transfer.PartSizeMB < 5 {
		return fmt.Errorf("transfer.part_size_mb must be at least 5")
	}
	return nil
}

// ApplyCredentials overlays the non-empty fields of creds onto the section
// for mode. It must run before Operation so that validation sees them.
func (c *Config) ApplyCredentials(mode domain.Mode, creds Credentials) {
	section := &c.Backup
	if mode == domain.ModeRestore {
		section = &c.Restore
	}
	if creds.User != "" {
		section.MySQL.User = creds.User
	}
	if creds.Pass != "" {
		section.MySQL.Pass = creds.Pass
		section.MySQL.passMissing = false
	}
	if creds.AccessKey != "" {
		section.AWS.AccessKey = creds.AccessKey
	}
	if creds.Secret != "" {
		section.AWS.Secret = creds.Secret
	}
}

func configError(err error) error {
	return &domain.StageError{Stage: domain.StageConfig, Kind: domain.KindConfig, Cause: err}
}
