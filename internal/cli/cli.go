// Package cli implements the mseedindex command-line interface (spec §6
// "CLI surface (minimum)"): flag parsing, @listfile expansion, backend
// and sink wiring, and the engine invocation.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/eunmann/mseedindex/internal/logctx"
	"github.com/eunmann/mseedindex/pkg/engine"
	"github.com/eunmann/mseedindex/pkg/jsonsink"
	"github.com/eunmann/mseedindex/pkg/logging"
	"github.com/eunmann/mseedindex/pkg/reconcile"
	"github.com/eunmann/mseedindex/pkg/section"
)

// flags holds the parsed command-line configuration before it is wired
// into an engine.Config and a set of backends.
type flags struct {
	verbose          bool
	skipNonData      bool
	noSync           bool
	noUpdate         bool
	keepPath         bool
	timeToleranceNs  int64
	rateTolerance    float64
	subIndexInterval time.Duration
	table            string
	pgHost           string
	pgPort           int
	pgDB             string
	pgUser           string
	pgPassword       string
	sqlitePath       string
	jsonPath         string
	busyTimeout      time.Duration

	inputs []string
}

// Run parses args, wires the engine, and drives it over the resolved
// input paths. The returned error, if non-nil, should be reported by the
// caller with an "ERROR:" prefix and a non-zero exit (spec §6).
func Run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return engine.Classify(engine.ClassArgument, "", err)
	}

	logging.Init(f.verbose, isatty.IsTerminal(os.Stderr.Fd()))
	ctx := logctx.WithLogger(context.Background(), *logging.L())

	inputs, err := resolveInputs(f.inputs, f.keepPath)
	if err != nil {
		return engine.Classify(engine.ClassArgument, "", err)
	}
	if len(inputs) == 0 {
		return engine.Classify(engine.ClassArgument, "", errors.New("no input paths given"))
	}

	backends, closeBackends, err := openBackends(f)
	if err != nil {
		return err
	}
	defer closeBackends()

	var docs []jsonsink.Document
	e := &engine.Engine{
		Config:   configFromFlags(f),
		Backends: backends,
	}
	if f.jsonPath != "" {
		e.JSONDocs = &docs
	}

	if err := e.Run(ctx, inputs); err != nil {
		return err
	}

	if f.jsonPath != "" {
		if err := jsonsink.WriteAllToPath(f.jsonPath, docs); err != nil {
			return engine.Classify(engine.ClassResource, f.jsonPath, err)
		}
	}

	return nil
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("mseedindex", flag.ContinueOnError)

	fs.BoolVar(&f.verbose, "v", false, "verbose (debug) logging")
	fs.BoolVar(&f.verbose, "verbose", false, "verbose (debug) logging")
	fs.BoolVar(&f.skipNonData, "skip-non-data", false, "skip unrecognized byte ranges instead of failing")
	fs.BoolVar(&f.noSync, "no-sync", false, "relax embedded store durability for bulk loads")
	fs.BoolVar(&f.noUpdate, "no-update", false, "skip preservation query and deletion (bulk load)")
	fs.BoolVar(&f.keepPath, "keep-path", false, "do not canonicalize input paths before indexing")

	timeToleranceMs := fs.Int64("time-tolerance", 0, "time tolerance override in milliseconds (0 = half the sample period)")
	fs.Float64Var(&f.rateTolerance, "rate-tolerance", section.DefaultRateTolerance, "relative sample-rate tolerance")
	fs.DurationVar(&f.subIndexInterval, "sub-index-interval", time.Duration(section.DefaultSubIndexIntervalNs), "time-index append interval")

	fs.StringVar(&f.table, "table", "sections", "target table name")
	fs.StringVar(&f.pgHost, "pg-host", "", "Postgres host (enables the network backend)")
	fs.IntVar(&f.pgPort, "pg-port", 5432, "Postgres port")
	fs.StringVar(&f.pgDB, "pg-db", "", "Postgres database name")
	fs.StringVar(&f.pgUser, "pg-user", "", "Postgres user")
	fs.StringVar(&f.pgPassword, "pg-password", "", "Postgres password")
	fs.StringVar(&f.sqlitePath, "sqlite-path", "", "embedded store path (enables the embedded backend)")
	fs.StringVar(&f.jsonPath, "json", "", "JSON output path, or \"-\" for standard output")
	fs.DurationVar(&f.busyTimeout, "busy-timeout", reconcile.DefaultBusyTimeout, "embedded store lock-contention timeout")

	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}

	f.timeToleranceNs = *timeToleranceMs * int64(time.Millisecond)
	f.inputs = fs.Args()
	return f, nil
}

// resolveInputs expands @listfile arguments (spec §6 "prefix @ denotes a
// list-file") and canonicalizes plain paths unless keepPath is set. URLs
// (any path containing "://") and the stdin token are passed through
// unchanged.
func resolveInputs(args []string, keepPath bool) ([]string, error) {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, "@") {
			paths, err := readListFile(a[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
			continue
		}
		out = append(out, a)
	}

	if keepPath {
		return out, nil
	}

	for i, p := range out {
		if isOpaquePath(p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		out[i] = abs
	}
	return out, nil
}

// isOpaquePath reports whether p should be passed through resolveInputs
// without filesystem canonicalization: a URL or the standard-input token.
func isOpaquePath(p string) bool {
	if p == "-" {
		return true
	}
	return strings.Contains(p, "://")
}

func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list file %q: %w", path, err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file %q: %w", path, err)
	}
	return paths, nil
}

func configFromFlags(f flags) engine.Config {
	cfg := engine.Config{
		SkipNonData:        f.skipNonData,
		NoUpdate:           f.noUpdate,
		NoSync:             f.noSync,
		KeepPath:           f.keepPath,
		SubIndexIntervalNs: f.subIndexInterval.Nanoseconds(),
		Table:              f.table,
		LeapSecondsFile:    os.Getenv("LEAPSECONDS_FILE"),
	}
	if f.timeToleranceNs > 0 || f.rateTolerance != section.DefaultRateTolerance {
		cfg.Tolerance = overrideTolerance{timeToleranceNs: f.timeToleranceNs, rateTolerance: f.rateTolerance}
	}
	return cfg
}

// overrideTolerance implements section.Tolerance with CLI-supplied
// constants (spec §6 "-time-tolerance", "-rate-tolerance"). A zero
// timeToleranceNs falls back to the per-record half-sample-period rule,
// matching section.DefaultTolerance's behavior.
type overrideTolerance struct {
	timeToleranceNs int64
	rateTolerance   float64
}

func (o overrideTolerance) TimeToleranceNs(r section.Record) int64 {
	if o.timeToleranceNs > 0 {
		return o.timeToleranceNs
	}
	return section.DefaultTolerance.TimeToleranceNs(r)
}

func (o overrideTolerance) RateTolerance(section.Record) float64 {
	return o.rateTolerance
}

// openBackends constructs the configured backends (spec §6 "Backends");
// either, both, or neither of the embedded and network stores may be
// enabled. The returned closer releases every opened backend.
func openBackends(f flags) ([]reconcile.Backend, func(), error) {
	var backends []reconcile.Backend

	if f.sqlitePath != "" {
		sl, err := reconcile.OpenSQLite(reconcile.SQLiteConfig{
			Path:        f.sqlitePath,
			BusyTimeout: f.busyTimeout,
			NoSync:      f.noSync,
		})
		if err != nil {
			return nil, nil, engine.Classify(engine.ClassStore, f.sqlitePath, err)
		}
		backends = append(backends, sl)
	}

	if f.pgHost != "" {
		pg, err := reconcile.OpenPostgres(reconcile.PostgresConfig{
			Host:     f.pgHost,
			Port:     f.pgPort,
			Database: f.pgDB,
			User:     f.pgUser,
			Password: f.pgPassword,
			Table:    f.table,
		})
		if err != nil {
			closeAll(backends)
			return nil, nil, engine.Classify(engine.ClassStore, f.pgHost, err)
		}
		backends = append(backends, pg)
	}

	return backends, func() { closeAll(backends) }, nil
}

func closeAll(backends []reconcile.Backend) {
	for _, b := range backends {
		b.Close()
	}
}
