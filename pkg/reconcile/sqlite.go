package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eunmann/mseedindex/pkg/logging"
	"github.com/eunmann/mseedindex/pkg/membudget"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig configures the embedded file backend (spec §6 "Embedded
// file backend").
type SQLiteConfig struct {
	Path string
	// BusyTimeout is the lock-contention wait before failing (spec §5,
	// default 10,000 ms).
	BusyTimeout   time.Duration
	MmapSizeBytes int64
	CacheSizeKB   int
	// NoSync relaxes durability (synchronous OFF instead of NORMAL) for
	// bulk loads that accept crash risk in exchange for throughput.
	NoSync bool
}

// DefaultBusyTimeout is the default lock-contention wait (spec §5).
const DefaultBusyTimeout = 10 * time.Second

// SQLite is the embedded single-file backend (spec §6 "Embedded file
// backend"): database/sql with the mattn/go-sqlite3 driver, PRAGMA
// tuning applied on open, schema created on first use.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the embedded store and applies
// the pragma and schema requirements from spec §6: WAL journaling, a
// busy-timeout, case-sensitive LIKE, and the three indexes named there.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.MmapSizeBytes <= 0 || cfg.CacheSizeKB <= 0 {
		sizing := membudget.AutoSizeSQLiteCache(0.05)
		if cfg.MmapSizeBytes <= 0 {
			cfg.MmapSizeBytes = sizing.MmapSizeBytes
		}
		if cfg.CacheSizeKB <= 0 {
			cfg.CacheSizeKB = sizing.CacheSizeKB
		}
	}

	log := logging.WithPhase("sqlite_open")

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL")
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "open", Err: err}
	}

	synchronous := "NORMAL"
	if cfg.NoSync {
		synchronous = "OFF"
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + synchronous,
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA mmap_size=%d", cfg.MmapSizeBytes),
		fmt.Sprintf("PRAGMA cache_size=-%d", cfg.CacheSizeKB),
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA case_sensitive_like=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, &StoreError{Backend: "sqlite", Op: "pragma " + p, Err: err}
		}
	}

	if err := sqliteCreateSchema(db); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "sqlite", Op: "create schema", Err: err}
	}

	log.Info().Str("path", cfg.Path).Msg("opened embedded index store")

	return &SQLite{db: db}, nil
}

func sqliteCreateSchema(db *sql.DB) error {
	const createTable = `
		CREATE TABLE IF NOT EXISTS sections (
			network TEXT NOT NULL,
			station TEXT NOT NULL,
			location TEXT NOT NULL,
			channel TEXT NOT NULL,
			quality INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			starttime INTEGER NOT NULL,
			endtime INTEGER NOT NULL,
			samplerate REAL NOT NULL,
			filename TEXT NOT NULL,
			byteoffset INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			hash TEXT NOT NULL,
			timeindex TEXT,
			timespans TEXT,
			timerates TEXT,
			format TEXT,
			filemodtime INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			scanned INTEGER NOT NULL
		)`
	if _, err := db.Exec(createTable); err != nil {
		return fmt.Errorf("create sections table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sections_nslc_time ON sections(network, station, location, channel, starttime, endtime)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_filename ON sections(filename)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_updated ON sections(updated)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Close releases the database connection (spec §5 "the store connection
// is released after the last file or on fatal error").
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Reconcile implements Backend.Reconcile for the embedded store (spec
// §4.4).
func (s *SQLite) Reconcile(ctx context.Context, file File, opts Options) error {
	rows := make([]Row, 0, len(file.Sections))
	for _, sec := range file.Sections {
		row, err := BuildRow(file.Filename, sec, file.FileModTimeEpochSec, file.ScanTimeEpochSec, opts.SerializationCap)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	pattern, isPrefix := filenameClause(file.Filename)
	extents := fileExtents(file.Sections)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if !opts.NoUpdate {
		priors, err := sqliteQueryPriors(ctx, tx, pattern, isPrefix, extents)
		if err != nil {
			return &StoreError{Backend: "sqlite", Op: "query priors", Err: err}
		}
		applyPreservation(rows, priors)

		if err := sqliteDelete(ctx, tx, pattern, isPrefix, extents); err != nil {
			return &StoreError{Backend: "sqlite", Op: "delete", Err: err}
		}
	}

	if err := sqliteInsert(ctx, tx, rows); err != nil {
		return &StoreError{Backend: "sqlite", Op: "insert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Backend: "sqlite", Op: "commit", Err: err}
	}
	return nil
}

func sqliteQueryPriors(ctx context.Context, tx *sql.Tx, pattern string, isPrefix bool, ext fileExtentsWindow) ([]priorRow, error) {
	where, args := matchClause(pattern, isPrefix, ext, "?")
	query := `SELECT network, station, location, channel, version, hash, updated FROM sections WHERE ` + where

	rs, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var priors []priorRow
	for rs.Next() {
		var p priorRow
		if err := rs.Scan(&p.Network, &p.Station, &p.Location, &p.Channel, &p.PubVersion, &p.Hash, &p.Updated); err != nil {
			return nil, err
		}
		priors = append(priors, p)
	}
	return priors, rs.Err()
}

func sqliteDelete(ctx context.Context, tx *sql.Tx, pattern string, isPrefix bool, ext fileExtentsWindow) error {
	where, args := matchClause(pattern, isPrefix, ext, "?")
	_, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE `+where, args...)
	return err
}

const sqliteInsertStmt = `
	INSERT INTO sections (
		network, station, location, channel, quality, version,
		starttime, endtime, samplerate, filename, byteoffset, bytes, hash,
		timeindex, timespans, timerates, format, filemodtime, updated, scanned
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func sqliteInsert(ctx context.Context, tx *sql.Tx, rows []Row) error {
	stmt, err := tx.PrepareContext(ctx, sqliteInsertStmt)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, insertArgs(r)...); err != nil {
			return err
		}
	}
	return nil
}

func insertArgs(r Row) []interface{} {
	return []interface{}{
		r.Network, r.Station, r.Location, r.Channel, int(r.Quality), int(r.PubVersion),
		r.StartTimeNs, r.EndTimeNs, r.SampleRate, r.Filename, r.ByteOffset, r.Bytes, r.Hash,
		nullableText(r.HasTimeIndex, r.TimeIndex), r.TimeSpans, nullableText(r.RateMismatch, r.TimeRates),
		nil, r.FileModTimeEpochSec, r.UpdatedEpochSec, r.ScannedEpochSec,
	}
}

func nullableText(present bool, value string) interface{} {
	if !present {
		return nil
	}
	return value
}
