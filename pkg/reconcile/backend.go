package reconcile

import (
	"context"

	"github.com/eunmann/mseedindex/pkg/membudget"
	"github.com/eunmann/mseedindex/pkg/section"
)

// File is everything the reconciler needs about one scanned file (spec
// §4.4, §4.5): its sections in file order, the filename the rows carry,
// and the two timestamps (file_mod_time, scan_time) referenced by the
// preservation rule.
type File struct {
	// Filename is the value the filename column receives. It may carry a
	// version suffix of the form <base>#<numeric> (spec §4.4).
	Filename string
	// FileModTimeEpochSec seeds UpdatedAt before preservation runs; zero
	// for sources with no local mtime (e.g. a URL source).
	FileModTimeEpochSec int64
	ScanTimeEpochSec    int64
	Sections            []*section.Section
}

// Options configures one reconciliation pass (spec §4.4, §5).
type Options struct {
	// NoUpdate skips the preservation query and the deletion step;
	// inserts proceed unconditionally (spec §4.4 "No-update mode").
	NoUpdate bool
	// Table is the target table name (network SQL backend only).
	Table string
	// SerializationCap bounds timeindex/timespans encoding size (spec
	// §7). The zero value uses membudget.DefaultSerializationCapBytes.
	SerializationCap membudget.SerializationCap
}

// Backend reconciles one file's rows against a store (spec §4.4): an
// idempotent, atomic delete-then-insert within a single transaction,
// preserving "updated" timestamps on unchanged content.
type Backend interface {
	Reconcile(ctx context.Context, file File, opts Options) error
	Close() error
}
