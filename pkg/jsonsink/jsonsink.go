// Package jsonsink implements the Optional JSON Output (spec §4.6): an
// alternative to the reconciler that writes one JSON document describing
// every scanned file instead of mutating a relational store.
//
// The document structure itself is core to this engine (it decides what
// a file's summary looks like); the wire encoder underneath is the plain
// stdlib encoding/json, since the JSON serializer itself is treated as an
// out-of-scope external collaborator (spec §1).
package jsonsink

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eunmann/mseedindex/pkg/fileutil"
	"github.com/eunmann/mseedindex/pkg/section"
)

// StdoutPathToken is the literal path token meaning "write to standard
// output" (spec §6 "Path value \"-\" means standard output").
const StdoutPathToken = "-"

// FileInput is everything the sink needs about one scanned file (spec
// §4.6).
type FileInput struct {
	Path string
	// FileSHA256 is the finalized per-file digest (spec §4.3).
	FileSHA256 string
	// PathModTimeEpochSec is nil for non-local sources, matching spec
	// §4.6 "path_modtime iff local".
	PathModTimeEpochSec  *int64
	PathIndexTimeEpochSec int64
	Sections              []*section.Section
}

// Document is one file's entry in the JSON output (spec §4.6).
type Document struct {
	Path                  string            `json:"path"`
	FileSHA256            string            `json:"file_sha256"`
	PathModTimeEpochSec   *int64            `json:"path_modtime,omitempty"`
	PathIndexTimeEpochSec int64             `json:"path_indextime"`
	Earliest              int64            `json:"earliest"`
	Latest                int64            `json:"latest"`
	Content               []SectionSummary `json:"content"`
}

// SectionSummary is one per-section object in Document.Content (spec
// §4.6).
type SectionSummary struct {
	SourceID            string          `json:"source_id"`
	ContentType         string          `json:"content_type"`
	StartNs             int64           `json:"start_ns"`
	Start               string          `json:"start"`
	EndNs               int64           `json:"end_ns"`
	End                 string          `json:"end"`
	PublicationVersion  uint8           `json:"publication_version"`
	ByteOffset          int64           `json:"byte_offset"`
	ByteCount           int64           `json:"byte_count"`
	MD5                 string          `json:"md5"`
	TimeOrderedRecords  bool            `json:"time_ordered_records"`
	TSTimeByteOffset    []TimeIndexEntry `json:"ts_time_byteoffset,omitempty"`
	TSTimeSpans         []TimeSpan       `json:"ts_timespans"`
}

// TimeIndexEntry mirrors section.TimeIndexEntry for the JSON document.
type TimeIndexEntry struct {
	Time       int64 `json:"time"`
	ByteOffset int64 `json:"byte_offset"`
}

// TimeSpan mirrors section.Span for the JSON document, carrying the
// sample rate alongside the interval (spec §4.6 "ts_timespans with
// sample_rate").
type TimeSpan struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	SampleRate float64 `json:"sample_rate"`
}

// ContentType maps a section's format version to its media type (spec
// §4.6 "Content-type mapping").
func ContentType(formatVersion uint8) string {
	switch formatVersion {
	case 2:
		return "application/vnd.fdsn.mseed;version=2"
	case 3:
		return "application/vnd.fdsn.mseed;version=3"
	default:
		return "application/vnd.fdsn.mseed"
	}
}

// BuildDocument renders one file's sections into a Document (spec §4.6).
func BuildDocument(in FileInput) Document {
	doc := Document{
		Path:                  in.Path,
		FileSHA256:            in.FileSHA256,
		PathModTimeEpochSec:   in.PathModTimeEpochSec,
		PathIndexTimeEpochSec: in.PathIndexTimeEpochSec,
		Content:               make([]SectionSummary, 0, len(in.Sections)),
	}

	for i, s := range in.Sections {
		if i == 0 || s.Earliest < doc.Earliest {
			doc.Earliest = s.Earliest
		}
		if i == 0 || s.Latest > doc.Latest {
			doc.Latest = s.Latest
		}
		doc.Content = append(doc.Content, buildSectionSummary(s))
	}

	return doc
}

func buildSectionSummary(s *section.Section) SectionSummary {
	sum := SectionSummary{
		SourceID:           s.SourceID,
		ContentType:        ContentType(s.FormatVersion),
		StartNs:            s.Earliest,
		Start:              formatNs(s.Earliest),
		EndNs:              s.Latest,
		End:                formatNs(s.Latest),
		PublicationVersion: s.PubVersion,
		ByteOffset:         s.StartOffset,
		ByteCount:          s.EndOffset - s.StartOffset + 1,
		MD5:                s.Digest,
		TimeOrderedRecords: s.TimeOrder,
		TSTimeSpans:        make([]TimeSpan, 0, len(s.Spans)),
	}

	if s.FirstEntryMatchesEarliest() {
		sum.TSTimeByteOffset = make([]TimeIndexEntry, 0, len(s.TimeIndex))
		for _, e := range s.TimeIndex {
			sum.TSTimeByteOffset = append(sum.TSTimeByteOffset, TimeIndexEntry{Time: e.TimeNs, ByteOffset: e.ByteOffset})
		}
	}

	for _, sp := range s.Spans {
		sum.TSTimeSpans = append(sum.TSTimeSpans, TimeSpan{Start: sp.StartNs / 1e9, End: sp.EndNs / 1e9, SampleRate: sp.SampleRate})
	}

	return sum
}

func formatNs(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// WriteAll writes the full document set as one JSON array (spec §4.6
// "writes one JSON document describing all files").
func WriteAll(w io.Writer, docs []Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// WriteAllToPath writes the document set to path (spec §4.6). Standard
// output is written directly; a real file path is written atomically via
// fileutil.WriteTmpThenMove, so a reader never observes a partially
// written index document even if the process is killed mid-write.
func WriteAllToPath(path string, docs []Document) error {
	if path == StdoutPathToken {
		return WriteAll(os.Stdout, docs)
	}

	dir := filepath.Dir(path)
	return fileutil.WriteTmpThenMove(dir, path, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return WriteAll(f, docs)
	})
}
