package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/dumpcycle/internal/domain"
)

const (
	tablesQuery = "SELECT table_name FROM information_schema.tables " +
		"WHERE table_type = 'BASE TABLE' AND table_schema = ? ORDER BY table_name"
	sizeQuery = "SELECT COALESCE(SUM(data_length + index_length), 0) " +
		"FROM information_schema.tables WHERE table_schema = ?"
)

type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Schema   string
}

// DSN builds the driver connection string. Credentials are escaped by the
// driver, never spliced in by hand.
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// MySQL is the native connection used for probes, inventory queries and
// script application.
type MySQL struct {
	db     *sql.DB
	schema string
}

func Open(opts Options) (*MySQL, error) {
	db, err := sql.Open("mysql", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return NewMySQL(db, opts.Schema), nil
}

// NewMySQL wraps an existing handle.
func NewMySQL(db *sql.DB, schema string) *MySQL {
	return &MySQL{db: db, schema: schema}
}

// QuoteIdent escapes name for use as a MySQL identifier.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Probe checks that the server answers and the schema can be selected.
// No data is read or written.
func (m *MySQL) Probe(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE "+QuoteIdent(m.schema)); err != nil {
		return fmt.Errorf("select schema %s: %w", m.schema, err)
	}
	return nil
}

func (m *MySQL) Tables(ctx context.Context) (domain.TableInventory, error) {
	rows, err := m.db.QueryContext(ctx, tablesQuery, m.schema)
	if err != nil {
		return nil, fmt.Errorf("query table inventory: %w", err)
	}
	defer rows.Close()

	var inv domain.TableInventory
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		inv = append(inv, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table inventory: %w", err)
	}
	return inv, nil
}

// SizeEstimate sums data and index length of every table in the schema.
// InnoDB reports approximate figures.
func (m *MySQL) SizeEstimate(ctx context.Context) (int64, error) {
	var size int64
	if err := m.db.QueryRowContext(ctx, sizeQuery, m.schema).Scan(&size); err != nil {
		return 0, fmt.Errorf("estimate schema size: %w", err)
	}
	return size, nil
}

// Session pins a single connection with the schema selected.
func (m *MySQL) Session(ctx context.Context) (domain.Session, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "USE "+QuoteIdent(m.schema)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("select schema %s: %w", m.schema, err)
	}
	return &session{conn: conn}, nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

type session struct {
	conn *sql.Conn
}

func (s *session) Exec(ctx context.Context, statement string) error {
	if _, err := s.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("exec %q: %w", abbreviate(statement), err)
	}
	return nil
}

// ApplyScript runs every statement of the script in order and stops at the
// first failure. It returns the number of statements that succeeded.
func (s *session) ApplyScript(ctx context.Context, r io.Reader) (int, error) {
	scanner := NewScriptScanner(r)
	applied := 0
	for scanner.Scan() {
		stmt := scanner.Statement()
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return applied, fmt.Errorf("statement %d %q: %w", applied+1, abbreviate(stmt), err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("read script: %w", err)
	}
	return applied, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

func abbreviate(stmt string) string {
	const limit = 120
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) <= limit {
		return stmt
	}
	return stmt[:limit] + "..."
}
