package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/semmidev/dumpcycle/internal/adapter/checksum"
	"github.com/semmidev/dumpcycle/internal/adapter/compressor"
	"github.com/semmidev/dumpcycle/internal/domain"
)

type recLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *recLogger) Infof(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(template, args...))
}

func (l *recLogger) Warnf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(template, args...))
}

func (l *recLogger) Errorf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(template, args...))
}

func (l *recLogger) joined(lines []string) string { return strings.Join(lines, "\n") }

type fakeNotifier struct {
	subjects []string
	bodies   []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return n.err
}

type fakeRecorder struct {
	stages    []string
	failures  []string
	artifacts map[string]int64
	runs      []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{artifacts: map[string]int64{}}
}

func (r *fakeRecorder) ObserveStage(mode, stage string, d time.Duration, err error) {
	r.stages = append(r.stages, stage)
	if err != nil {
		r.failures = append(r.failures, stage)
	}
}

func (r *fakeRecorder) ObserveArtifact(mode, kind string, size int64) {
	r.artifacts[kind] = size
}

func (r *fakeRecorder) ObserveRun(mode, status string, finished time.Time) {
	r.runs = append(r.runs, mode+":"+status)
}

type fakeDumper struct {
	sql   map[domain.DumpKind]string
	errs  map[domain.DumpKind]error
	calls []domain.DumpKind
}

func (d *fakeDumper) Dump(ctx context.Context, kind domain.DumpKind, w io.Writer) error {
	d.calls = append(d.calls, kind)
	if _, err := io.WriteString(w, d.sql[kind]); err != nil {
		return err
	}
	if err := d.errs[kind]; err != nil {
		return &domain.CommandError{
			Command: "mysqldump --host=db --user=backup " + string(kind) + " orders",
			Output:  "mysqldump: Got error: 1045: Access denied",
			Err:     err,
		}
	}
	return nil
}

type fakeSession struct {
	statements []string
	scripts    []string
	execErrs   map[string]error
	scriptErrs map[int]error
	closed     bool
}

func (s *fakeSession) Exec(ctx context.Context, statement string) error {
	s.statements = append(s.statements, statement)
	return s.execErrs[statement]
}

func (s *fakeSession) ApplyScript(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	idx := len(s.scripts)
	s.scripts = append(s.scripts, string(data))
	s.statements = append(s.statements, fmt.Sprintf("<script %d>", idx))
	if err := s.scriptErrs[idx]; err != nil {
		return 0, err
	}
	return strings.Count(string(data), ";"), nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDB struct {
	probeErr   error
	tablesErr  error
	sizeErr    error
	sessionErr error
	tables     domain.TableInventory
	size       int64
	session    *fakeSession
	sessions   int
}

func (db *fakeDB) Probe(ctx context.Context) error { return db.probeErr }

func (db *fakeDB) Tables(ctx context.Context) (domain.TableInventory, error) {
	return db.tables, db.tablesErr
}

func (db *fakeDB) SizeEstimate(ctx context.Context) (int64, error) { return db.size, db.sizeErr }

func (db *fakeDB) Session(ctx context.Context) (domain.Session, error) {
	db.sessions++
	if db.sessionErr != nil {
		return nil, db.sessionErr
	}
	return db.session, nil
}

func (db *fakeDB) Close() error { return nil }

// memStore is an in-memory object store keyed by bucket then key.
type memStore struct {
	buckets map[string]map[string][]byte
	listErr error
	putErrs map[string]error
	getErrs map[string]error
	puts    []string
	gets    []string
}

func newMemStore(buckets ...string) *memStore {
	s := &memStore{buckets: map[string]map[string][]byte{}, putErrs: map[string]error{}, getErrs: map[string]error{}}
	for _, b := range buckets {
		s.buckets[b] = map[string][]byte{}
	}
	return s
}

func (s *memStore) ListBuckets(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for b := range s.buckets {
		names = append(names, b)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) List(ctx context.Context, bucket string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, errors.New("NoSuchBucket")
	}
	var keys []string
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) Put(ctx context.Context, localPath, bucket, key string) error {
	if err := s.putErrs[key]; err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	objects, ok := s.buckets[bucket]
	if !ok {
		return errors.New("NoSuchBucket")
	}
	objects[key] = data
	s.puts = append(s.puts, key)
	return nil
}

func (s *memStore) Get(ctx context.Context, bucket, key, localPath string) error {
	if err := s.getErrs[key]; err != nil {
		return err
	}
	data, ok := s.buckets[bucket][key]
	if !ok {
		return errors.New("NoSuchKey")
	}
	s.gets = append(s.gets, key)
	return os.WriteFile(localPath, data, 0o644)
}

func (s *memStore) Close() error { return nil }

type fakeDisk struct {
	free uint64
	err  error
}

func (d fakeDisk) Free(path string) (uint64, error) { return d.free, d.err }

// seedBackup stores a complete, valid backup of sql under bucket using the
// real gzip and md5 adapters.
func seedBackup(store *memStore, bucket, dir string, set domain.ArtifactSet, schemaSQL, dataSQL string, tables domain.TableInventory) error {
	gz := compressor.NewGzip()
	sum := checksum.NewMD5()

	write := func(a domain.Artifact, sql string) error {
		var buf bytes.Buffer
		zw, err := gz.NewWriter(&buf)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(zw, sql); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		return os.WriteFile(a.LocalPath, buf.Bytes(), 0o644)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := write(set.Schema, schemaSQL); err != nil {
		return err
	}
	if err := write(set.Data, dataSQL); err != nil {
		return err
	}
	if _, err := sum.WriteSidecar(set.Schema.LocalPath, set.SchemaChecksum.LocalPath); err != nil {
		return err
	}
	if _, err := sum.WriteSidecar(set.Data.LocalPath, set.DataChecksum.LocalPath); err != nil {
		return err
	}
	if err := tables.WriteFile(set.Tables.LocalPath); err != nil {
		return err
	}
	for _, a := range set.All() {
		if err := store.Put(context.Background(), a.LocalPath, bucket, a.RemoteKey); err != nil {
			return err
		}
		if err := os.Remove(a.LocalPath); err != nil {
			return err
		}
	}
	store.puts = nil
	return nil
}
