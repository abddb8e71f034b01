package database

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// DumpOptions describes how to reach the source schema with mysqldump.
type DumpOptions struct {
	Binary   string
	Host     string
	Port     int
	User     string
	Password string
	Schema   string
}

// MySQLDump runs mysqldump and streams its output to the caller. The
// password travels in MYSQL_PWD so it never shows up in the process list.
type MySQLDump struct {
	opts DumpOptions
}

func NewMySQLDump(opts DumpOptions) *MySQLDump {
	if opts.Binary == "" {
		opts.Binary = "mysqldump"
	}
	return &MySQLDump{opts: opts}
}

func (m *MySQLDump) args(kind domain.DumpKind) []string {
	args := []string{
		fmt.Sprintf("--host=%s", m.opts.Host),
		fmt.Sprintf("--port=%d", m.opts.Port),
		fmt.Sprintf("--user=%s", m.opts.User),
	}
	switch kind {
	case domain.DumpSchema:
		args = append(args, "--no-data", "--routines", "--triggers")
	default:
		args = append(args, "--single-transaction", "--quick", "--lock-tables=false")
	}
	// "--" keeps a schema name starting with a dash from being read as a flag.
	return append(args, "--", m.opts.Schema)
}

// Command renders the invocation for logs and error reports.
func (m *MySQLDump) Command(kind domain.DumpKind) string {
	return m.opts.Binary + " " + strings.Join(m.args(kind), " ")
}

func (m *MySQLDump) Dump(ctx context.Context, kind domain.DumpKind, w io.Writer) error {
	cmd := exec.CommandContext(ctx, m.opts.Binary, m.args(kind)...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+m.opts.Password)
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &domain.CommandError{
			Command: m.Command(kind),
			Output:  stderr.String(),
			Err:     err,
		}
	}
	return nil
}
