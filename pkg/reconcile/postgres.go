package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/eunmann/mseedindex/pkg/logging"
)

// PostgresConfig configures the network SQL backend (spec §6 "Network
// SQL backend"). Connection parameters are passed individually rather
// than as a single DSN, matching the CLI surface named in spec §6
// (pg-host/port/db/user/password).
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	Table           string
	ApplicationName string
}

// Postgres is the network SQL backend (spec §6 "Network SQL backend").
// The target table must pre-exist; this backend does not create schema,
// unlike SQLite's embedded store.
type Postgres struct {
	db    *sql.DB
	table string
}

// buildDSN renders the lib/pq keyword/value connection string from
// individually-supplied parameters (spec §6 "Connection parameters:
// host, port, database, user, optional password, fallback application
// name").
func buildDSN(cfg PostgresConfig, appName string) string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer fallback_application_name=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, appName,
	)
}

// OpenPostgres connects to the network store and sets the session time
// zone to UTC (spec §6 "Session time zone must be set to UTC on
// connect").
func OpenPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.Table == "" {
		cfg.Table = "sections"
	}
	appName := cfg.ApplicationName
	if appName == "" {
		appName = "mseedindex"
	}

	db, err := sql.Open("postgres", buildDSN(cfg, appName))
	if err != nil {
		return nil, &StoreError{Backend: "postgres", Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "postgres", Op: "ping", Err: err}
	}
	if _, err := db.Exec("SET TIME ZONE 'UTC'"); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "postgres", Op: "set time zone", Err: err}
	}

	logger := logging.WithPhase("postgres_open")
	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Str("table", cfg.Table).
		Msg("connected to network index store")

	return &Postgres{db: db, table: cfg.Table}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Reconcile implements Backend.Reconcile for the network store (spec
// §4.4).
func (p *Postgres) Reconcile(ctx context.Context, file File, opts Options) error {
	table := p.table
	if opts.Table != "" {
		table = opts.Table
	}

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

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Backend: "postgres", Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if !opts.NoUpdate {
		priors, err := postgresQueryPriors(ctx, tx, table, pattern, isPrefix, extents)
		if err != nil {
			return &StoreError{Backend: "postgres", Op: "query priors", Err: err}
		}
		applyPreservation(rows, priors)

		if err := postgresDelete(ctx, tx, table, pattern, isPrefix, extents); err != nil {
			return &StoreError{Backend: "postgres", Op: "delete", Err: err}
		}
	}

	if err := postgresInsert(ctx, tx, table, rows); err != nil {
		return &StoreError{Backend: "postgres", Op: "insert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Backend: "postgres", Op: "commit", Err: err}
	}
	return nil
}

func postgresQueryPriors(ctx context.Context, tx *sql.Tx, table, pattern string, isPrefix bool, ext fileExtentsWindow) ([]priorRow, error) {
	where, args := pgMatchClause(pattern, isPrefix, ext)
	query := fmt.Sprintf(`SELECT network, station, location, channel, version, hash, EXTRACT(EPOCH FROM updated)::bigint FROM %s WHERE %s`, table, where)

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

func postgresDelete(ctx context.Context, tx *sql.Tx, table, pattern string, isPrefix bool, ext fileExtentsWindow) error {
	where, args := pgMatchClause(pattern, isPrefix, ext)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, where), args...)
	return err
}

// postgresInsert inserts rows into the network store. Unlike the embedded
// backend, starttime/endtime/filemodtime/updated/scanned are timestamptz
// columns (wrapped in to_timestamp(...) from epoch-second arguments) and
// timeindex/timespans/timerates are hstore/numrange[]/numeric[] columns
// (cast from the pgInsertArgs encodings), per spec §6 "Network SQL
// backend" and the INSERT shape in original_source/src/mseedindex.c.
func postgresInsert(ctx context.Context, tx *sql.Tx, table string, rows []Row) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			network, station, location, channel, quality, version,
			starttime, endtime, samplerate, filename, byteoffset, bytes, hash,
			timeindex, timespans, timerates, format, filemodtime, updated, scanned
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			to_timestamp($7), to_timestamp($8), $9, $10, $11, $12, $13,
			$14::hstore, $15::numrange[], $16::numeric[], $17,
			to_timestamp($18), to_timestamp($19), to_timestamp($20)
		)`, table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, pgInsertArgs(r)...); err != nil {
			return err
		}
	}
	return nil
}
