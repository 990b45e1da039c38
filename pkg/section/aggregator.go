package section

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"hash"
	"time"
)

// DefaultSubIndexIntervalNs is the default sub-index policy interval: a
// consumer can seek within a long section by time without reading it all
// (spec §4.2).
const DefaultSubIndexIntervalNs = int64(3600 * time.Second)

// DefaultRateTolerance is the default departure tolerance for
// |1 - nom_samprate/r.samprate| (spec §4.2).
const DefaultRateTolerance = 1e-4

// Tolerance is the per-record callback interface for span-coalescing
// tolerances (spec §4.2 "Callback tolerance interface", §9 design note:
// "maps to a small trait/interface with one method taking a record and
// returning a tolerance").
type Tolerance interface {
	// TimeToleranceNs returns the maximum gap, in nanoseconds, between a
	// span's predicted continuation and a new record's start for the
	// record to extend that span.
	TimeToleranceNs(r Record) int64
	// RateTolerance returns the maximum allowed relative departure
	// between two sample rates for them to be considered equal.
	RateTolerance(r Record) float64
}

// defaultTolerance implements the default span-coalescing tolerances:
// half the sample period for time, and 1e-4 relative difference for
// rate.
type defaultTolerance struct{}

func (defaultTolerance) TimeToleranceNs(r Record) int64 {
	if r.SampleRate <= 0 {
		return 0
	}
	periodNs := float64(time.Second) / r.SampleRate
	return int64(periodNs / 2)
}

func (defaultTolerance) RateTolerance(Record) float64 {
	return DefaultRateTolerance
}

// DefaultTolerance is the caller-overridable default Tolerance (spec
// §4.2 "If the caller supplies neither a time tolerance nor a
// sample-rate tolerance, the defaults are: ...").
var DefaultTolerance Tolerance = defaultTolerance{}

// Record is the subset of mseed.Record fields the aggregator consumes.
// Defined locally (rather than importing package mseed) so section has
// no dependency on the decoder contract; pkg/engine adapts mseed.Record
// into this shape record by record.
type Record struct {
	SourceID      string
	PubVersion    uint8
	FormatVersion uint8
	Offset        int64
	Length        int64
	Start         int64
	End           int64
	SampleRate    float64
	Raw           []byte
}

// Options configures an Aggregator (spec §4.2, §9 "pass configuration
// explicitly ... rather than process-wide mutable globals").
type Options struct {
	Tolerance           Tolerance
	SubIndexIntervalNs  int64
	FileModTimeEpochSec int64
}

// Aggregator is the Section Aggregator state machine (spec §4.2). It
// consumes one file's records via Add and emits completed Sections,
// holding at most one open section at a time.
//
// Shape: a single mutable "current" accumulator plus an append-only
// slice of finalized results, closed and reopened as the input stream
// dictates.
type Aggregator struct {
	opts Options

	open *Section
	done []*Section

	prevStart int64

	fileDigest hash.Hash
}

// New creates an Aggregator for one file. fileModTimeEpochSec seeds each
// section's UpdatedAt (spec §4.2) before any reconciler preservation
// (spec §4.4) runs.
func New(opts Options) *Aggregator {
	if opts.Tolerance == nil {
		opts.Tolerance = DefaultTolerance
	}
	if opts.SubIndexIntervalNs <= 0 {
		opts.SubIndexIntervalNs = DefaultSubIndexIntervalNs
	}
	return &Aggregator{
		opts:       opts,
		fileDigest: sha256.New(),
	}
}

// Add consumes one record in file order (spec §4.2 steps 1-2).
func (a *Aggregator) Add(r Record) error {
	if r.Length <= 0 {
		return fmt.Errorf("section: record at offset %d has non-positive length %d", r.Offset, r.Length)
	}

	a.fileDigest.Write(r.Raw)

	if a.open != nil && a.sameRun(r) {
		a.extend(r)
		a.prevStart = r.Start
		return nil
	}

	if a.open != nil {
		a.done = append(a.done, a.open)
	}
	a.open = a.start(r)
	a.prevStart = r.Start
	return nil
}

// sameRun reports whether r continues the currently open section: same
// identifier, same publication version, and byte-contiguous (spec §4.2
// step 1).
func (a *Aggregator) sameRun(r Record) bool {
	s := a.open
	return r.SourceID == s.SourceID &&
		r.PubVersion == s.PubVersion &&
		r.Offset == s.EndOffset+1
}

// start opens a new section from r (spec §4.2 "Otherwise ... open a new
// section S' from R").
func (a *Aggregator) start(r Record) *Section {
	s := &Section{
		SourceID:      r.SourceID,
		PubVersion:    r.PubVersion,
		StartOffset:   r.Offset,
		EndOffset:     r.Offset + r.Length - 1,
		Earliest:      r.Start,
		Latest:        r.End,
		FormatVersion: r.FormatVersion,
		NomSampRate:   r.SampleRate,
		RateMismatch:  false,
		TimeOrder:     true,
		UpdatedAt:     a.opts.FileModTimeEpochSec,
		digestState:   md5.New(),
	}
	s.TimeIndex = append(s.TimeIndex, TimeIndexEntry{TimeNs: r.Start, ByteOffset: r.Offset})
	s.nextIndexTime = advancePastEnd(r.Start+a.opts.SubIndexIntervalNs, r.End, a.opts.SubIndexIntervalNs)
	if r.SampleRate != 0 {
		s.Spans = append(s.Spans, Span{StartNs: r.Start, EndNs: r.End, SampleRate: r.SampleRate})
	}
	s.digestState.Write(r.Raw)
	return s
}

// extend folds r into the currently open section (spec §4.2 step 1).
func (a *Aggregator) extend(r Record) {
	s := a.open

	s.EndOffset = r.Offset + r.Length - 1
	if r.Start < s.Earliest {
		s.Earliest = r.Start
	}
	if r.End > s.Latest {
		s.Latest = r.End
	}

	rateTol := a.opts.Tolerance.RateTolerance(r)
	if s.NomSampRate != 0 && r.SampleRate != 0 {
		departure := absf(1 - s.NomSampRate/r.SampleRate)
		if departure >= rateTol {
			s.RateMismatch = true
		}
	} else if s.NomSampRate != r.SampleRate {
		s.RateMismatch = true
	}

	if s.FormatVersion != r.FormatVersion {
		s.FormatVersion = 0
	}

	if r.Start <= a.prevStart {
		s.TimeOrder = false
	}

	if r.End > s.nextIndexTime {
		s.TimeIndex = append(s.TimeIndex, TimeIndexEntry{TimeNs: r.Start, ByteOffset: r.Offset})
		s.nextIndexTime = advancePastEnd(s.nextIndexTime+a.opts.SubIndexIntervalNs, r.End, a.opts.SubIndexIntervalNs)
	}

	if r.SampleRate != 0 {
		a.mergeSpan(s, r)
	}

	s.digestState.Write(r.Raw)
}

// mergeSpan merges r into s.Spans using the tolerance rule (spec §4.2
// "Span coalescing"): extend the trailing span iff r's sample rate is
// within rate-tolerance of the span's rate AND r's start is within
// time-tolerance of the span's predicted continuation at span.SampleRate;
// otherwise start a new span.
func (a *Aggregator) mergeSpan(s *Section, r Record) {
	timeTol := a.opts.Tolerance.TimeToleranceNs(r)
	rateTol := a.opts.Tolerance.RateTolerance(r)

	if len(s.Spans) > 0 {
		last := &s.Spans[len(s.Spans)-1]
		if last.SampleRate != 0 && rateWithinTolerance(last.SampleRate, r.SampleRate, rateTol) {
			periodNs := int64(float64(time.Second) / last.SampleRate)
			predicted := last.EndNs + periodNs
			if absi(r.Start-predicted) <= timeTol {
				if r.End > last.EndNs {
					last.EndNs = r.End
				}
				return
			}
		}
	}

	s.Spans = append(s.Spans, Span{StartNs: r.Start, EndNs: r.End, SampleRate: r.SampleRate})
}

// rateWithinTolerance reports whether two sample rates are equal within
// the relative tolerance rule shared with the section-level RateMismatch
// check (spec §4.2 "|1 - nom_samprate/r.samprate| < tolerance").
func rateWithinTolerance(a, b, tol float64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	return absf(1-a/b) < tol
}

// Finish closes the last open section and returns every section found in
// the file, in file order (spec §4.2 "At end-of-stream the last open
// section is closed.").
func (a *Aggregator) Finish() []*Section {
	if a.open != nil {
		a.done = append(a.done, a.open)
		a.open = nil
	}
	for _, s := range a.done {
		s.FinalizeDigest()
	}
	return a.done
}

// FileDigestState returns the running SHA-256 state accumulated over
// every record's raw bytes seen so far, for pkg/digest to finalize once
// Finish has been called (spec §4.2 step 1 "sha256_update(file.digest_state,
// R.raw)", §4.3).
func (a *Aggregator) FileDigestState() hash.Hash {
	return a.fileDigest
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absi(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
