package engine

import "github.com/eunmann/mseedindex/pkg/section"

// Config holds the engine's run-time knobs, passed explicitly through
// the call graph rather than as process-wide mutable globals (spec §9
// "Global state ... is configuration; pass it explicitly").
type Config struct {
	// SkipNonData enables the reader's skip-non-data mode (spec §4.1).
	SkipNonData bool

	// NoUpdate skips the reconciler's preservation query and deletion
	// step (spec §4.4 "No-update mode").
	NoUpdate bool

	// NoSync relaxes the embedded store's durability pragma (synchronous
	// OFF instead of NORMAL) for bulk loads that accept crash risk in
	// exchange for throughput.
	NoSync bool

	// KeepPath records whether path canonicalization was disabled, so the
	// filename column receives the path exactly as given on the command
	// line. Canonicalization happens in internal/cli before paths reach
	// the engine; the engine itself does not read this field.
	KeepPath bool

	// Tolerance overrides the default time/rate tolerances (spec §4.2
	// "Span coalescing"). Nil uses section.DefaultTolerance.
	Tolerance section.Tolerance

	// SubIndexIntervalNs overrides the default sub-index interval (spec
	// §4.2 "Sub-index policy"). Zero uses section.DefaultSubIndexIntervalNs.
	SubIndexIntervalNs int64

	// SerializationCapBytes overrides the resource-exhaustion soft cap
	// (spec §7). Zero uses membudget.DefaultSerializationCapBytes.
	SerializationCapBytes int

	// Table is the target table name for the network SQL backend (spec
	// §6 "table name").
	Table string

	// LeapSecondsFile is forwarded unchanged to the decoder (spec §6
	// "Environment").
	LeapSecondsFile string
}
