// Package store is the persistence and query layer: sources, unique
// frames, timeline entries, transcriptions, and timeframe annotations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		// Frame observation writes are serialized per source; a shared
		// cache plus busy timeout keeps concurrent sessions from
		// tripping over sqlite's single-writer lock.
		dsn := config.SQLitePath + "?_busy_timeout=5000&_journal_mode=WAL"
		if strings.Contains(config.SQLitePath, ":memory:") {
			dsn = config.SQLitePath
		}
		conn, err = sql.Open("sqlite3", dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// Only create tables for SQLite
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL CHECK (source_type IN ('video', 'stream', 'voice_notes')),
		filename TEXT NOT NULL,
		start_timestamp DATETIME NOT NULL,
		end_timestamp DATETIME,
		metadata TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		first_seen_timestamp DATETIME NOT NULL,
		last_seen_timestamp DATETIME NOT NULL,
		perceptual_hash TEXT NOT NULL,
		image_data BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_frames_source_hash ON frames(source_id, perceptual_hash);

	CREATE TABLE IF NOT EXISTS timeline (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		timestamp DATETIME NOT NULL,
		frame_id TEXT REFERENCES frames(id),
		transcription_id TEXT,
		similarity_score REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_timeline_source_time ON timeline(source_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_timeline_time ON timeline(timestamp);

	CREATE TABLE IF NOT EXISTS transcriptions (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		start_timestamp DATETIME NOT NULL,
		end_timestamp DATETIME NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		language TEXT,
		model TEXT,
		has_overlap INTEGER NOT NULL DEFAULT 0,
		overlap_start DATETIME,
		overlap_end DATETIME,
		speaker_name TEXT,
		speaker_confidence REAL NOT NULL DEFAULT 0,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transcriptions_source_time ON transcriptions(source_id, start_timestamp);

	CREATE TABLE IF NOT EXISTS timeframe_annotations (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		start_timestamp DATETIME NOT NULL,
		end_timestamp DATETIME NOT NULL,
		annotation_type TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_by TEXT NOT NULL DEFAULT 'system',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_annotations_source_time ON timeframe_annotations(source_id, start_timestamp);
	`

	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// bind rewrites ? placeholders to $n for the postgres driver, so each
// query is written once in sqlite style.
func (db *DB) bind(query string) string {
	if db.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil
	}
	return metadata
}
