// Package mseed defines the contract between the indexing engine and the
// external miniSEED record decoder (spec §4.1, §6). The decoder itself —
// byte-level parsing of miniSEED 2/3 fixed headers, blockettes, and
// compressed payload encodings — is an external collaborator; this
// package fixes the shape of a decoded Record and the streaming Reader
// interface the engine drives, and supplies a reference StreamDecoder
// for a simple framing (decode.go) plus local and HTTP(S) openers.
package mseed

import (
	"errors"
	"strconv"
	"time"
)

// ErrDecode wraps a decoder failure at a specific byte offset. It is
// always fatal for the current file (spec §7).
type ErrDecode struct {
	Offset int64
	Err    error
}

func (e *ErrDecode) Error() string {
	return "decode record at offset " + strconv.FormatInt(e.Offset, 10) + ": " + e.Err.Error()
}

func (e *ErrDecode) Unwrap() error { return e.Err }

// Record is a single decoded miniSEED record plus its position in the
// logical byte stream (spec §3 Record).
type Record struct {
	// Offset is the absolute byte position of the record's first byte,
	// relative to the logical stream start.
	Offset int64
	// Length is the record's byte length.
	Length int64
	// SourceID names the data stream, e.g. "NET_STA_LOC_CHAN" (FDSN
	// source identifier) or the legacy SEED "NET.STA.LOC.CHAN" form —
	// the engine treats it as an opaque, comparable string except when
	// decomposing it for storage (spec §4.5).
	SourceID string
	// PubVersion is the publication version (miniSEED3) or always 1 for
	// miniSEED2 sources that do not carry the concept.
	PubVersion uint8
	// Quality is the legacy single-ASCII-byte data-quality indicator.
	// Carried through but never populated into the store (spec §9 Open
	// Question): downstream columns always receive the zero value.
	Quality byte
	// FormatVersion is the miniSEED format version (2 or 3).
	FormatVersion uint8
	// Start is the record's start time in nanoseconds since the Unix
	// epoch.
	Start int64
	// SampleCount is the number of samples in the record. May be zero
	// for a record carrying no samples (e.g. a pure blockette record).
	SampleCount int64
	// SampleRate is the nominal sample rate in Hz. Zero means "no
	// regular sample rate" (spec §4.2 span-coalescing exclusion).
	SampleRate float64
	// Raw is the record's raw bytes, needed for section/file content
	// hashing (spec §4.2, §4.3). Callers must not retain slices of Raw
	// past the next call to Reader.Next; the Reader contract does not
	// promise a fresh buffer per record (StreamDecoder happens to
	// allocate one).
	Raw []byte
}

// End returns the record's end time in nanoseconds, derived as
// start + (sample_count-1)/sample_rate (spec §3), clamped to Start when
// SampleCount <= 1 or SampleRate <= 0.
func (r Record) End() int64 {
	if r.SampleCount <= 1 || r.SampleRate <= 0 {
		return r.Start
	}
	durationSec := float64(r.SampleCount-1) / r.SampleRate
	return r.Start + int64(durationSec*float64(time.Second))
}

// Reader is the streaming, restartable sequence of decoded records the
// Section Aggregator consumes (spec §4.1). Implementations surface
// end-of-stream as io.EOF from Next.
type Reader interface {
	// Next returns the next decoded record, or io.EOF when the stream is
	// exhausted, or an *ErrDecode on a fatal decode error.
	Next() (Record, error)
	// Close releases any resources (file handles, network connections)
	// held by the reader. Safe to call more than once.
	Close() error
}

// Options configures a Reader's tolerance for non-record bytes and
// passes the leap-second table path through unchanged to the decoder
// (spec §4.1, §6).
type Options struct {
	// SkipNonData, when true, silently skips byte ranges the decoder
	// does not recognize as a valid record, advancing the logical
	// offset accordingly. When false, such bytes are a fatal decode
	// error.
	SkipNonData bool
	// LeapSecondsFile is forwarded unchanged to the decoder; the engine
	// never interprets its contents (spec §6 Environment).
	LeapSecondsFile string
}

// ErrNoRecords names the condition of a stream with no decodable records
// at all (as distinct from decode errors on bytes that are present).
// StreamDecoder does not return it: an empty stream yields io.EOF from
// the first call to Next.
var ErrNoRecords = errors.New("mseed: no records found")
