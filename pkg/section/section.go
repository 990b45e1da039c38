// Package section implements the Section Aggregator (spec §4.2): the
// state machine that groups a file's records into maximal
// byte-contiguous runs sharing a source identifier and publication
// version, and maintains each run's running aggregates.
//
// The running-state-per-open-node shape holds a single mutable "current"
// accumulator (one open Section) and closes it into an immutable result
// when the input diverges from what the open accumulator can absorb.
package section

import (
	"encoding/hex"
	"hash"
)

// TimeIndexEntry is one (time, byte_offset) pair in a section's time
// index (spec §3, glossary "Time index").
type TimeIndexEntry struct {
	TimeNs     int64
	ByteOffset int64
}

// Span is a maximal run of continuous sample coverage within a section
// (spec §3, glossary "Span").
type Span struct {
	StartNs    int64
	EndNs      int64
	SampleRate float64
}

// Section is a maximal contiguous run of same-identifier, same-version
// records within one file (spec §3 Section).
type Section struct {
	SourceID   string
	PubVersion uint8

	StartOffset int64
	EndOffset   int64

	Earliest int64
	Latest   int64

	FormatVersion uint8
	NomSampRate   float64
	RateMismatch  bool
	TimeOrder     bool

	// UpdatedAt is seconds-since-epoch, initialized to the file's
	// modification time (spec §4.2) and possibly replaced by the
	// reconciler with a prior row's updated timestamp (spec §4.4).
	UpdatedAt int64

	TimeIndex []TimeIndexEntry
	Spans     []Span

	nextIndexTime int64

	digestState hash.Hash
	Digest      string
}

// FirstEntryMatchesEarliest reports whether the first TimeIndex entry's
// time equals the section's Earliest time, per spec §3's invariant and
// §4.5's serialization guard. Consumers (including the reconciler) must
// treat TimeIndex as absent when this is false.
func (s *Section) FirstEntryMatchesEarliest() bool {
	if len(s.TimeIndex) == 0 {
		return false
	}
	return s.TimeIndex[0].TimeNs == s.Earliest
}

// FinalizeDigest renders the section's running MD5 state into Digest as
// 32 lowercase hex characters (spec §4.3) and releases the running hash
// state. Safe to call once, after the section has left the Aggregator's
// open slot.
func (s *Section) FinalizeDigest() {
	if s.digestState == nil {
		return
	}
	s.Digest = hex.EncodeToString(s.digestState.Sum(nil))
	s.digestState = nil
}

// advancePastEnd advances `next` in whole sub-index intervals until it is
// strictly greater than end (spec §4.2 "advance ... in whole sub-index
// intervals ... until strictly greater than R.end").
func advancePastEnd(next, end, interval int64) int64 {
	if interval <= 0 {
		interval = DefaultSubIndexIntervalNs
	}
	for next <= end {
		next += interval
	}
	return next
}
