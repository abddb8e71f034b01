package domain

import (
	"fmt"
	"path"
	"path/filepath"
	"time"
)

// TimestampLayout qualifies every artifact name of a backup run.
const TimestampLayout = "20060102150405"

const (
	TablesFile         = "tables"
	RestoredTablesFile = "tables_restore"
)

type ArtifactKind string

const (
	KindSchemaDump     ArtifactKind = "schema"
	KindDataDump       ArtifactKind = "data"
	KindSchemaChecksum ArtifactKind = "schema_checksum"
	KindDataChecksum   ArtifactKind = "data_checksum"
	KindTables         ArtifactKind = "tables"
)

type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	Name      string       `json:"name"`
	LocalPath string       `json:"local_path"`
	RemoteKey string       `json:"remote_key"`
	Checksum  string       `json:"checksum,omitempty"`
	Size      int64        `json:"size,omitempty"`
}

// ArtifactSet groups the files of one backup run. Tables is the inventory
// snapshot shipped alongside the dumps.
type ArtifactSet struct {
	Schema         Artifact `json:"schema"`
	Data           Artifact `json:"data"`
	SchemaChecksum Artifact `json:"schema_checksum"`
	DataChecksum   Artifact `json:"data_checksum"`
	Tables         Artifact `json:"tables"`
}

func SchemaDumpName(schema string, ts time.Time) string {
	return fmt.Sprintf("%s.%s.sql.gz", schema, ts.Format(TimestampLayout))
}

func DataDumpName(schema string, ts time.Time) string {
	return fmt.Sprintf("%s.%s_data.sql.gz", schema, ts.Format(TimestampLayout))
}

func SchemaChecksumName(schema string, ts time.Time) string {
	return fmt.Sprintf("md5sum_%s.%s", schema, ts.Format(TimestampLayout))
}

func DataChecksumName(schema string, ts time.Time) string {
	return fmt.Sprintf("md5sum_%s.%s_data", schema, ts.Format(TimestampLayout))
}

func newArtifact(kind ArtifactKind, name, dir string) Artifact {
	return Artifact{
		Kind:      kind,
		Name:      name,
		LocalPath: filepath.Join(dir, name),
		RemoteKey: name,
	}
}

// NewArtifactSet derives the artifact names of a backup of schema taken at ts.
// The same inputs always produce the same names.
func NewArtifactSet(schema string, ts time.Time, dir string) ArtifactSet {
	return ArtifactSet{
		Schema:         newArtifact(KindSchemaDump, SchemaDumpName(schema, ts), dir),
		Data:           newArtifact(KindDataDump, DataDumpName(schema, ts), dir),
		SchemaChecksum: newArtifact(KindSchemaChecksum, SchemaChecksumName(schema, ts), dir),
		DataChecksum:   newArtifact(KindDataChecksum, DataChecksumName(schema, ts), dir),
		Tables:         newArtifact(KindTables, TablesFile, dir),
	}
}

// RemoteKeys names the objects a restore fetches.
type RemoteKeys struct {
	DataFile       string
	SchemaFile     string
	DataChecksum   string
	SchemaChecksum string
	Tables         string
}

// ArtifactSetFromKeys maps remote object keys onto local paths under dir.
func ArtifactSetFromKeys(keys RemoteKeys, dir string) ArtifactSet {
	fromKey := func(kind ArtifactKind, key string) Artifact {
		name := path.Base(key)
		return Artifact{
			Kind:      kind,
			Name:      name,
			LocalPath: filepath.Join(dir, name),
			RemoteKey: key,
		}
	}
	tables := keys.Tables
	if tables == "" {
		tables = TablesFile
	}
	return ArtifactSet{
		Schema:         fromKey(KindSchemaDump, keys.SchemaFile),
		Data:           fromKey(KindDataDump, keys.DataFile),
		SchemaChecksum: fromKey(KindSchemaChecksum, keys.SchemaChecksum),
		DataChecksum:   fromKey(KindDataChecksum, keys.DataChecksum),
		Tables:         fromKey(KindTables, tables),
	}
}

// UploadOrder lists the artifacts in the order a backup ships them.
func (s ArtifactSet) UploadOrder() []Artifact {
	return []Artifact{s.Schema, s.Data, s.DataChecksum, s.SchemaChecksum, s.Tables}
}

// All returns every artifact, dumps first.
func (s ArtifactSet) All() []Artifact {
	return []Artifact{s.Schema, s.Data, s.SchemaChecksum, s.DataChecksum, s.Tables}
}
