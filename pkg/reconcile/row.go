package reconcile

import (
	"strconv"
	"strings"

	"github.com/eunmann/mseedindex/pkg/membudget"
	"github.com/eunmann/mseedindex/pkg/section"
)

// Row is one section rendered into the reconciler's column set (spec
// §4.5), identical in shape for both backends; only the wire encoding of
// timeindex/timespans/timerates differs at the SQL layer.
type Row struct {
	Network  string
	Station  string
	Location string
	Channel  string

	Quality    byte
	PubVersion uint8

	StartTimeNs int64
	EndTimeNs   int64
	SampleRate  float64

	Filename   string
	ByteOffset int64
	Bytes      int64
	Hash       string

	// TimeIndex is the "key=>value" associative text encoding, or empty
	// when the serialization guard fails (spec §4.5 "If the guard fails
	// the column is NULL"). This is the embedded (SQLite) store's own
	// text encoding; the network (Postgres) backend renders the hstore
	// wire format from TimeIndexEntries/TimeOrder directly (pg_encode.go).
	TimeIndex    string
	HasTimeIndex bool
	TimeSpans    string
	RateMismatch bool
	TimeRates    string

	// TimeIndexEntries, Spans, and TimeOrder carry the section's raw time
	// data alongside the SQLite text encodings above, so the Postgres
	// backend can render its own hstore/numrange[]/numeric[] wire formats
	// without re-deriving them from section.Section.
	TimeIndexEntries []section.TimeIndexEntry
	Spans            []section.Span
	TimeOrder        bool

	FileModTimeEpochSec int64
	UpdatedEpochSec     int64
	ScannedEpochSec     int64
}

// SplitSourceID decomposes a source identifier of the form
// NET_STA_LOC_CHAN into its four codes (spec §4.5 "Identifier
// decomposition"). The location code may be empty (two adjacent
// underscores) but the other three fields must not be.
func SplitSourceID(sourceID string) (network, station, location, channel string, ok bool) {
	parts := strings.Split(sourceID, "_")
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	network, station, location, channel = parts[0], parts[1], parts[2], parts[3]
	if network == "" || station == "" || channel == "" {
		return "", "", "", "", false
	}
	return network, station, location, channel, true
}

// BuildRow renders one section into a Row (spec §4.5). cap enforces the
// 8 MiB soft cap on serialized timeindex/timespans text (spec §7
// "Resource exhaustion"); pass a zero-value membudget.SerializationCap to
// use the default.
func BuildRow(filename string, s *section.Section, fileModTime, scanTime int64, serCap membudget.SerializationCap) (Row, error) {
	network, station, location, channel, ok := SplitSourceID(s.SourceID)
	if !ok {
		return Row{}, &IntegrityError{File: filename, Msg: "source identifier \"" + s.SourceID + "\" does not decompose into network/station/location/channel"}
	}

	row := Row{
		Network:             network,
		Station:             station,
		Location:            location,
		Channel:             channel,
		Quality:             0,
		PubVersion:          s.PubVersion,
		StartTimeNs:         s.Earliest,
		EndTimeNs:           s.Latest,
		SampleRate:          s.NomSampRate,
		Filename:            filename,
		ByteOffset:          s.StartOffset,
		Bytes:               s.EndOffset - s.StartOffset + 1,
		Hash:                s.Digest,
		RateMismatch:        s.RateMismatch,
		Spans:               s.Spans,
		TimeOrder:           s.TimeOrder,
		FileModTimeEpochSec: fileModTime,
		UpdatedEpochSec:     s.UpdatedAt,
		ScannedEpochSec:     scanTime,
	}

	if s.FirstEntryMatchesEarliest() {
		encoded := EncodeTimeIndex(s.TimeIndex, s.TimeOrder)
		if err := serCap.Check(s.SourceID, []byte(encoded)); err != nil {
			return Row{}, &ResourceError{File: filename, Err: err}
		}
		row.TimeIndex = encoded
		row.HasTimeIndex = true
		row.TimeIndexEntries = s.TimeIndex
	}

	spansEncoded := EncodeTimeSpans(s.Spans)
	if err := serCap.Check(s.SourceID, []byte(spansEncoded)); err != nil {
		return Row{}, &ResourceError{File: filename, Err: err}
	}
	row.TimeSpans = spansEncoded

	if s.RateMismatch {
		row.TimeRates = EncodeTimeRates(s.Spans)
	}

	return row, nil
}

// EncodeTimeIndex renders a section's time index as the associative
// text encoding "time=>offset;time=>offset;...;latest=>0|1" (spec §4.5
// "Serialized as an associative text encoding of time=>offset pairs plus
// a final latest=>0|1 equal to time_order").
func EncodeTimeIndex(entries []section.TimeIndexEntry, timeOrder bool) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(strconv.FormatInt(e.TimeNs, 10))
		b.WriteString("=>")
		b.WriteString(strconv.FormatInt(e.ByteOffset, 10))
		b.WriteByte(';')
	}
	b.WriteString("latest=>")
	if timeOrder {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	return b.String()
}

// EncodeTimeSpans renders a section's spans as a comma-separated list of
// inclusive epoch-second intervals "start-end,start-end,..." (spec §4.5
// "array of epoch-second intervals (inclusive)").
func EncodeTimeSpans(spans []section.Span) string {
	var b strings.Builder
	for i, sp := range spans {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(sp.StartNs/1e9, 10))
		b.WriteByte('-')
		b.WriteString(strconv.FormatInt(sp.EndNs/1e9, 10))
	}
	return b.String()
}

// EncodeTimeRates renders the per-span sample rates as a comma-separated
// list, in the same order as EncodeTimeSpans (spec §4.5 "array of
// per-span sample rates, only when rate_mismatch is true").
func EncodeTimeRates(spans []section.Span) string {
	var b strings.Builder
	for i, sp := range spans {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(sp.SampleRate, 'g', -1, 64))
	}
	return b.String()
}
