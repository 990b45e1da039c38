// Package digest implements the Digest & Extent Finalizer (spec §4.3):
// rendering the running per-section MD5 state and per-file SHA-256 state
// into their final hex digests, and computing file-level extents as the
// min/max over section extents.
//
// A fixed, well-known hash algorithm named by its output format (32 or 64
// lowercase hex characters) has no third-party analog worth reaching for
// here, so this finalizer uses the standard library crypto/md5 and
// crypto/sha256 packages directly.
package digest

import (
	"encoding/hex"
	"hash"

	"github.com/eunmann/mseedindex/pkg/section"
)

// FileExtents is the file-level earliest/latest computed as the min/max
// over every section's extents (spec §4.3).
type FileExtents struct {
	Earliest int64
	Latest   int64
}

// FinalizeSections renders every section's running MD5 digest into its
// Digest field (spec §4.3 "Per section, finalize MD5"). Safe to call more
// than once; a section whose digest is already set is left untouched.
//
// section.Aggregator.Finish already finalizes the digest of every section
// it returns, so calling this on its output is a no-op and the engine
// pipeline does not call it; it is exposed here so callers that assemble
// sections from another source (tests, a future resumed-scan path) can
// finalize them the same way.
func FinalizeSections(sections []*section.Section) {
	for _, s := range sections {
		s.FinalizeDigest()
	}
}

// FinalizeFile renders the file-level running SHA-256 state into a
// 64-character lowercase hex digest (spec §4.3 "Per file, finalize
// SHA-256").
func FinalizeFile(fileDigest hash.Hash) string {
	return hex.EncodeToString(fileDigest.Sum(nil))
}

// Extents computes the file-level earliest/latest as the min/max over the
// given sections' extents (spec §4.3). Returns the zero value if sections
// is empty.
func Extents(sections []*section.Section) FileExtents {
	var ext FileExtents
	for i, s := range sections {
		if i == 0 || s.Earliest < ext.Earliest {
			ext.Earliest = s.Earliest
		}
		if i == 0 || s.Latest > ext.Latest {
			ext.Latest = s.Latest
		}
	}
	return ext
}
