package reconcile

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/eunmann/mseedindex/pkg/section"
)

// pgHstoreText renders a section's time index as the hstore wire format
// (spec §6 "timeindex is a key=>value map type"): quoted
// epoch-seconds-with-microsecond-precision keys mapped to quoted byte
// offsets, plus a trailing "latest"=>"0"|"1" entry, comma separated. The
// caller casts this text to ::hstore in the INSERT statement; database/sql
// drivers have no native hstore parameter type.
func pgHstoreText(entries []section.TimeIndexEntry, timeOrder bool) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, `"%.6f"=>"%d",`, float64(e.TimeNs)/1e9, e.ByteOffset)
	}
	fmt.Fprintf(&b, `"latest"=>"%d"`, boolToDigit(timeOrder))
	return b.String()
}

func boolToDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// pgNumrangeLiterals renders each span as an inclusive numrange literal
// "[start,end]" in epoch seconds, for pq.Array'd insertion into a
// numrange[] column (spec §6 "timespans [is] an array of numeric ranges").
func pgNumrangeLiterals(spans []section.Span) []string {
	literals := make([]string, len(spans))
	for i, sp := range spans {
		literals[i] = fmt.Sprintf("[%.6f,%.6f]", float64(sp.StartNs)/1e9, float64(sp.EndNs)/1e9)
	}
	return literals
}

// pgRateLiterals renders each span's sample rate, in the same order as
// pgNumrangeLiterals, for pq.Array'd insertion into a numeric[] column
// (spec §6 "timerates [is] an array of numerics").
func pgRateLiterals(spans []section.Span) []float64 {
	rates := make([]float64, len(spans))
	for i, sp := range spans {
		rates[i] = sp.SampleRate
	}
	return rates
}

// pgInsertArgs builds the positional argument list for the network
// backend's INSERT (postgresInsertStmt in postgres.go), which wraps the
// time columns in to_timestamp(...) and casts the timeindex/timespans/
// timerates columns to hstore/numrange[]/numeric[] — unlike the embedded
// backend's plain-text columns, these require type-correct values rather
// than the generic text encodings in Row.
func pgInsertArgs(r Row) []interface{} {
	var timeIndexArg interface{}
	if r.HasTimeIndex {
		timeIndexArg = pgHstoreText(r.TimeIndexEntries, r.TimeOrder)
	}

	var timeSpansArg interface{}
	if len(r.Spans) > 0 {
		timeSpansArg = pq.Array(pgNumrangeLiterals(r.Spans))
	}

	var timeRatesArg interface{}
	if r.RateMismatch {
		timeRatesArg = pq.Array(pgRateLiterals(r.Spans))
	}

	return []interface{}{
		r.Network, r.Station, r.Location, r.Channel, int(r.Quality), int(r.PubVersion),
		float64(r.StartTimeNs) / 1e9, float64(r.EndTimeNs) / 1e9, r.SampleRate,
		r.Filename, r.ByteOffset, r.Bytes, r.Hash,
		timeIndexArg, timeSpansArg, timeRatesArg, nil,
		r.FileModTimeEpochSec, r.UpdatedEpochSec, r.ScannedEpochSec,
	}
}
