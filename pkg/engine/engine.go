package engine

import (
	"context"
	"io"
	"time"

	"github.com/eunmann/mseedindex/internal/logctx"
	"github.com/eunmann/mseedindex/pkg/digest"
	"github.com/eunmann/mseedindex/pkg/jsonsink"
	"github.com/eunmann/mseedindex/pkg/logging"
	"github.com/eunmann/mseedindex/pkg/membudget"
	"github.com/eunmann/mseedindex/pkg/mseed"
	"github.com/eunmann/mseedindex/pkg/reconcile"
	"github.com/eunmann/mseedindex/pkg/section"
)

// Engine drives one invocation over a set of input files (spec §2 data
// flow): Reader → Aggregator → Finalizer → Reconciler, and optionally
// the JSON sink, for each file in turn.
type Engine struct {
	Config   Config
	Backends []reconcile.Backend
	// JSONDocs, when non-nil, accumulates one jsonsink.Document per
	// scanned file in place of (or alongside) backend reconciliation
	// (spec §4.6).
	JSONDocs *[]jsonsink.Document
}

// ScanOne processes a single input path through the full pipeline (spec
// §2). path has already been resolved by the caller (stdin token, URL,
// or local path, possibly kept un-canonicalized per Config.KeepPath).
//
// Any error returned is a *ClassifiedError; per spec §7 the engine does
// not partial-apply a file, and the caller should stop processing
// further inputs on the first classified error (spec §7 "the engine
// does not partial-apply a file: either all sections of a file are
// reconciled or none are").
func (e *Engine) ScanOne(ctx context.Context, path string) error {
	log := logctx.FromContext(ctx).With().Str("path", path).Logger()
	started := time.Now()

	reader, modTimeEpochSec, err := e.open(ctx, path)
	if err != nil {
		return Classify(ClassDecode, path, err)
	}
	defer reader.Close()

	agg := section.New(section.Options{
		Tolerance:           e.Config.Tolerance,
		SubIndexIntervalNs:  e.Config.SubIndexIntervalNs,
		FileModTimeEpochSec: derefOrZero(modTimeEpochSec),
	})

	var recordCount int
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Classify(ClassDecode, path, err)
		}
		if err := agg.Add(section.Record{
			SourceID:      rec.SourceID,
			PubVersion:    rec.PubVersion,
			FormatVersion: rec.FormatVersion,
			Offset:        rec.Offset,
			Length:        rec.Length,
			Start:         rec.Start,
			End:           rec.End(),
			SampleRate:    rec.SampleRate,
			Raw:           rec.Raw,
		}); err != nil {
			return Classify(ClassIntegrity, path, err)
		}
		recordCount++
	}

	sections := agg.Finish()
	fileDigest := digest.FinalizeFile(agg.FileDigestState())
	extents := digest.Extents(sections)

	scanTime := time.Now().UTC()

	if len(e.Backends) > 0 {
		file := reconcile.File{
			Filename:            path,
			FileModTimeEpochSec: derefOrZero(modTimeEpochSec),
			ScanTimeEpochSec:    scanTime.Unix(),
			Sections:            sections,
		}
		opts := reconcile.Options{
			NoUpdate:         e.Config.NoUpdate,
			Table:            e.Config.Table,
			SerializationCap: membudget.NewSerializationCap(e.Config.SerializationCapBytes),
		}
		for _, backend := range e.Backends {
			if err := backend.Reconcile(ctx, file, opts); err != nil {
				return Classify(classifyReconcileError(err), path, err)
			}
		}
	}

	if e.JSONDocs != nil {
		doc := jsonsink.BuildDocument(jsonsink.FileInput{
			Path:                  path,
			FileSHA256:            fileDigest,
			PathModTimeEpochSec:   modTimeEpochSec,
			PathIndexTimeEpochSec: scanTime.Unix(),
			Sections:              sections,
		})
		*e.JSONDocs = append(*e.JSONDocs, doc)
	}

	logging.FileCreated(log, "scan", time.Since(started)).
		Count("records", int64(recordCount)).
		Count("sections", int64(len(sections))).
		Int64("earliest", extents.Earliest).
		Int64("latest", extents.Latest).
		Log("scanned file")

	return nil
}

// Run processes every input path in order, stopping at the first
// classified error (spec §7 "abort the invocation"). Progress (including
// ETA based on a moving average of prior files' scan durations) is
// logged as each file completes.
func (e *Engine) Run(ctx context.Context, paths []string) error {
	log := logctx.FromContext(ctx)
	tracker := logging.NewProgressTracker("scan", int64(len(paths)), log)

	for _, path := range paths {
		started := time.Now()
		if err := e.ScanOne(ctx, path); err != nil {
			return err
		}
		tracker.RecordCompletion(time.Since(started))

		logging.PhaseComplete(log, "scan", tracker.Elapsed()).
			ProgressFromTracker(tracker).
			LogDebug("scan progress")
	}
	return nil
}

func (e *Engine) open(ctx context.Context, path string) (mseed.Reader, *int64, error) {
	opts := mseed.Options{SkipNonData: e.Config.SkipNonData, LeapSecondsFile: e.Config.LeapSecondsFile}

	if mseed.IsURL(path) {
		r, err := mseed.OpenURL(ctx, path, opts)
		return r, nil, err
	}

	r, info, err := mseed.OpenLocal(path, opts)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		return r, nil, nil
	}
	modTime := info.ModTime().Unix()
	return r, &modTime, nil
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
