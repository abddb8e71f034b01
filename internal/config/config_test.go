package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpcycle/internal/domain"
)

const sampleJSON = `{
  "backup": {
    "mysql": {"user": "dumper", "pass": "s3cret", "schema": "orders"},
    "aws": {"access_key": "AKIA", "secret": "shh", "bucket": "backups-co"}
  },
  "restore": {
    "mysql": {"user": "loader", "pass": "p4ss", "schema": "orders_copy", "host": "db.internal", "port": 3307},
    "aws": {
      "access_key": "AKIB", "secret": "hush", "bucket": "backups-co",
      "filedata": "orders.20240309070501_data.sql.gz",
      "fileschema": "orders.20240309070501.sql.gz",
      "md5data": "md5sum_orders.20240309070501_data",
      "md5schema": "md5sum_orders.20240309070501"
    }
  },
  "disk": {"safety_factor": 1.5, "min_free_bytes": 1048576}
}`

func writeConfig(dir, name, body string) string {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a configuration document", t, func() {
		dir := t.TempDir()

		Convey("When it is valid JSON", func() {
			cfg, err := Load(writeConfig(dir, "config.json", sampleJSON))
			So(err, ShouldBeNil)

			Convey("Backup fields equal the document fields", func() {
				op, err := cfg.Operation(domain.ModeBackup)
				So(err, ShouldBeNil)
				So(op.Mode, ShouldEqual, domain.ModeBackup)
				So(op.MySQL.User, ShouldEqual, "dumper")
				So(op.MySQL.Pass, ShouldEqual, "s3cret")
				So(op.MySQL.Schema, ShouldEqual, "orders")
				So(op.Storage.AccessKey, ShouldEqual, "AKIA")
				So(op.Storage.Secret, ShouldEqual, "shh")
				So(op.Storage.Bucket, ShouldEqual, "backups-co")
				So(op.MySQL.Host, ShouldEqual, "localhost")
				So(op.MySQL.Port, ShouldEqual, 3306)
			})

			Convey("Restore fields equal the document fields", func() {
				op, err := cfg.Operation(domain.ModeRestore)
				So(err, ShouldBeNil)
				So(op.MySQL.Host, ShouldEqual, "db.internal")
				So(op.MySQL.Port, ShouldEqual, 3307)
				So(op.Keys, ShouldResemble, domain.RemoteKeys{
					DataFile:       "orders.20240309070501_data.sql.gz",
					SchemaFile:     "orders.20240309070501.sql.gz",
					DataChecksum:   "md5sum_orders.20240309070501_data",
					SchemaChecksum: "md5sum_orders.20240309070501",
					Tables:         domain.TablesFile,
				})
			})

			Convey("Ambient defaults are applied", func() {
				So(cfg.App.Name, ShouldEqual, "dumpcycle")
				So(cfg.Transfer.Concurrency, ShouldEqual, 10)
				So(cfg.Disk.Check, ShouldBeTrue)
				So(cfg.Disk.SafetyFactor, ShouldEqual, 1.5)
				So(cfg.Disk.MinFreeBytes, ShouldEqual, 1048576)
				So(cfg.LogFile(domain.ModeRestore), ShouldEqual, filepath.Join(".", "dumpcycle.log"))
				So(cfg.SummaryFile(domain.ModeBackup), ShouldEqual, filepath.Join(".", "backup_summary.json"))
			})
		})

		Convey("When it is YAML", func() {
			cfg, err := Load(writeConfig(dir, "config.yaml", `
backup:
  mysql: {user: dumper, pass: x, schema: orders}
  aws: {provider: local, root: /srv/objects, bucket: backups-co}
`))
			So(err, ShouldBeNil)
			op, err := cfg.Operation(domain.ModeBackup)
			So(err, ShouldBeNil)
			So(op.Storage.Provider, ShouldEqual, "local")
			So(op.Storage.Root, ShouldEqual, "/srv/objects")
		})

		Convey("When the JSON is malformed", func() {
			_, err := Load(writeConfig(dir, "config.json", `{"backup": {`))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
			So(domain.ExitCode(err), ShouldEqual, domain.ExitConfig)
		})

		Convey("When the file does not exist", func() {
			_, err := Load(filepath.Join(dir, "missing.json"))
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
		})

		Convey("When required restore keys are missing", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "restore": {
    "mysql": {"user": "loader", "schema": "orders"},
    "aws": {"access_key": "a", "secret": "b", "bucket": "c", "filedata": "d"}
  }
}`))
			So(err, ShouldBeNil)
			_, err = cfg.Operation(domain.ModeRestore)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "restore.aws.fileschema")
			So(err.Error(), ShouldContainSubstring, "restore.aws.md5data")
			So(err.Error(), ShouldContainSubstring, "restore.aws.md5schema")
			So(err.Error(), ShouldNotContainSubstring, "restore.aws.filedata")
		})

		Convey("When the pass key is absent", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "backup": {"mysql": {"user": "u", "schema": "s"}, "aws": {"access_key": "a", "secret": "b", "bucket": "c"}}
}`))
			So(err, ShouldBeNil)
			_, err = cfg.Operation(domain.ModeBackup)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "backup.mysql.pass")
		})

		Convey("When the pass key is present but empty", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "backup": {"mysql": {"user": "u", "pass": "", "schema": "s"}, "aws": {"access_key": "a", "secret": "b", "bucket": "c"}}
}`))
			So(err, ShouldBeNil)
			op, err := cfg.Operation(domain.ModeBackup)
			So(err, ShouldBeNil)
			So(op.MySQL.Pass, ShouldEqual, "")
		})

		Convey("When the backup section is absent", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{"restore": {}}`))
			So(err, ShouldBeNil)
			_, err = cfg.Operation(domain.ModeBackup)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "backup.mysql.user")
		})

		Convey("When the provider is unknown", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "backup": {"mysql": {"user": "u", "schema": "s"}, "aws": {"provider": "ftp", "bucket": "b"}}
}`))
			So(err, ShouldBeNil)
			_, err = cfg.Operation(domain.ModeBackup)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unsupported provider")
		})

		Convey("When credentials are overlaid", func() {
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "backup": {"mysql": {"schema": "orders"}, "aws": {"bucket": "backups-co"}}
}`))
			So(err, ShouldBeNil)
			_, err = cfg.Operation(domain.ModeBackup)
			So(err, ShouldNotBeNil)

			cfg.ApplyCredentials(domain.ModeBackup, Credentials{User: "vaultuser", Pass: "vp", AccessKey: "ak", Secret: "sk"})
			op, err := cfg.Operation(domain.ModeBackup)
			So(err, ShouldBeNil)
			So(op.MySQL.User, ShouldEqual, "vaultuser")
			So(op.Storage.Secret, ShouldEqual, "sk")
		})
	})
}

func TestLoadEnvironment(t *testing.T) {
	Convey("Given DUMPCYCLE_ environment variables", t, func() {
		dir := t.TempDir()

		Convey("When secrets come from the environment", func() {
			t.Setenv("DUMPCYCLE_BACKUP_MYSQL_PASS", "fromenv")
			t.Setenv("DUMPCYCLE_BACKUP_AWS_SECRET", "envsecret")
			t.Setenv("DUMPCYCLE_NOTIFY_TELEGRAM_BOT_TOKEN", "bot:token")
			cfg, err := Load(writeConfig(dir, "config.json", `{
  "backup": {"mysql": {"user": "u", "schema": "s"}, "aws": {"access_key": "a", "bucket": "c"}}
}`))
			So(err, ShouldBeNil)
			op, err := cfg.Operation(domain.ModeBackup)
			So(err, ShouldBeNil)
			So(op.MySQL.Pass, ShouldEqual, "fromenv")
			So(op.Storage.Secret, ShouldEqual, "envsecret")
			So(cfg.Notify.Telegram.BotToken, ShouldEqual, "bot:token")
		})

		Convey("When the environment overrides a document value", func() {
			t.Setenv("DUMPCYCLE_BACKUP_MYSQL_SCHEMA", "billing")
			cfg, err := Load(writeConfig(dir, "config.json", sampleJSON))
			So(err, ShouldBeNil)
			So(cfg.Backup.MySQL.Schema, ShouldEqual, "billing")
		})
	})
}
