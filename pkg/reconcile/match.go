package reconcile

import (
	"fmt"
	"strings"

	"github.com/eunmann/mseedindex/pkg/section"
)

// filenameClause returns the prefix (for a LIKE clause) and whether the
// match is a prefix match rather than an exact match, per the filename
// versioning rule (spec §4.4): "<base>#<numeric>" searches rows whose
// filename begins with "<base>#"; otherwise the match is exact.
func filenameClause(filename string) (pattern string, isPrefix bool) {
	if idx := versionSuffixIndex(filename); idx >= 0 {
		return filename[:idx+1], true
	}
	return filename, false
}

// versionSuffixIndex returns the index of the '#' introducing a numeric
// version suffix, or -1 if filename carries none.
func versionSuffixIndex(filename string) int {
	idx := strings.LastIndexByte(filename, '#')
	if idx < 0 || idx == len(filename)-1 {
		return -1
	}
	for _, c := range filename[idx+1:] {
		if c < '0' || c > '9' {
			return -1
		}
	}
	return idx
}

// oneDayNs is the ±1 day time-range narrowing window (spec §4.4
// "Time-range narrowing").
const oneDayNs = int64(24 * 60 * 60 * 1_000_000_000)

// fileExtentsWindow is the narrowed search window derived from a file's
// sections (spec §4.4 "Time-range narrowing"): starttime <= latest+1day
// and endtime >= earliest-1day.
type fileExtentsWindow struct {
	Earliest int64
	Latest   int64
}

// fileExtents computes the file-level earliest/latest over all of a
// file's sections, used to build the narrowed search window.
func fileExtents(sections []*section.Section) fileExtentsWindow {
	var w fileExtentsWindow
	for i, s := range sections {
		if i == 0 || s.Earliest < w.Earliest {
			w.Earliest = s.Earliest
		}
		if i == 0 || s.Latest > w.Latest {
			w.Latest = s.Latest
		}
	}
	return w
}

// matchClause builds the WHERE clause and its positional arguments for
// the embedded (SQLite) backend's filename-prefix-or-exact match plus
// time-range narrowing (spec §4.4): starttime/endtime are plain integer
// nanosecond columns there, so the ±1 day window is computed in Go and
// bound as ordinary integer arguments. placeholder is always "?" for
// SQLite's positional-parameter syntax.
func matchClause(pattern string, isPrefix bool, ext fileExtentsWindow, placeholder string) (string, []interface{}) {
	next := func(n int) string {
		if placeholder == "?" {
			return "?"
		}
		return fmt.Sprintf("%s%d", placeholder, n)
	}

	var clause string
	if isPrefix {
		clause = fmt.Sprintf("filename LIKE %s", next(1))
	} else {
		clause = fmt.Sprintf("filename = %s", next(1))
	}
	clause += fmt.Sprintf(" AND starttime <= %s AND endtime >= %s", next(2), next(3))

	likeArg := pattern
	if isPrefix {
		likeArg = pattern + "%"
	}
	return clause, []interface{}{likeArg, ext.Latest + oneDayNs, ext.Earliest - oneDayNs}
}

// pgMatchClause builds the WHERE clause and its positional arguments for
// the network (Postgres) backend's filename-prefix-or-exact match plus
// time-range narrowing (spec §4.4). starttime/endtime are timestamptz
// columns there, so the comparison values are passed as epoch-second
// floats through to_timestamp(...) and the ±1 day window is applied in
// SQL via interval arithmetic, the same "starttime <= to_timestamp(...) +
// interval '1 day'" shape used in original_source/src/mseedindex.c.
func pgMatchClause(pattern string, isPrefix bool, ext fileExtentsWindow) (string, []interface{}) {
	var clause string
	if isPrefix {
		clause = "filename LIKE $1"
	} else {
		clause = "filename = $1"
	}
	clause += " AND starttime <= to_timestamp($2) + interval '1 day'" +
		" AND endtime >= to_timestamp($3) - interval '1 day'"

	likeArg := pattern
	if isPrefix {
		likeArg = pattern + "%"
	}
	return clause, []interface{}{likeArg, float64(ext.Latest) / 1e9, float64(ext.Earliest) / 1e9}
}

// priorRow is the subset of a matched prior row the preservation rule
// needs (spec §4.4 "Preservation rule").
type priorRow struct {
	Network    string
	Station    string
	Location   string
	Channel    string
	PubVersion uint8
	Hash       string
	Updated    int64
}

// applyPreservation overwrites UpdatedEpochSec on each row whose
// (network, station, location, channel, pub_version, hash) matches a
// prior row, using that prior row's Updated timestamp (spec §4.4
// "Preservation rule"). Rows with no match keep the file-mod-time value
// BuildRow already seeded. When two new rows share a key (spec §9 open
// question), the last prior row in iteration order wins, matching the
// documented last-write-wins behavior.
func applyPreservation(rows []Row, priors []priorRow) {
	byKey := make(map[string]int64, len(priors))
	for _, p := range priors {
		byKey[preservationKey(p.Network, p.Station, p.Location, p.Channel, p.PubVersion, p.Hash)] = p.Updated
	}
	for i := range rows {
		r := &rows[i]
		if updated, ok := byKey[preservationKey(r.Network, r.Station, r.Location, r.Channel, r.PubVersion, r.Hash)]; ok {
			r.UpdatedEpochSec = updated
		}
	}
}

func preservationKey(network, station, location, channel string, pubVersion uint8, hash string) string {
	var b strings.Builder
	b.WriteString(network)
	b.WriteByte('\x00')
	b.WriteString(station)
	b.WriteByte('\x00')
	b.WriteString(location)
	b.WriteByte('\x00')
	b.WriteString(channel)
	b.WriteByte('\x00')
	b.WriteByte(byte(pubVersion))
	b.WriteByte('\x00')
	b.WriteString(hash)
	return b.String()
}
