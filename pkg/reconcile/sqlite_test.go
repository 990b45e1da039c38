package reconcile

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/eunmann/mseedindex/pkg/section"
)

func testSection(sourceID string, pubVersion uint8, digest string, earliest, latest, startOff, endOff int64, updatedAt int64) *section.Section {
	return &section.Section{
		SourceID:      sourceID,
		PubVersion:    pubVersion,
		StartOffset:   startOff,
		EndOffset:     endOff,
		Earliest:      earliest,
		Latest:        latest,
		NomSampRate:   100,
		FormatVersion: 2,
		TimeOrder:     true,
		UpdatedAt:     updatedAt,
		TimeIndex:     []section.TimeIndexEntry{{TimeNs: earliest, ByteOffset: startOff}},
		Spans:         []section.Span{{StartNs: earliest, EndNs: latest, SampleRate: 100}},
		Digest:        digest,
	}
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(SQLiteConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, db *sql.DB, filename string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sections WHERE filename = ?", filename).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestSQLiteReconcileInsertsRows(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	file := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "d1", 0, 990_000_000, 0, 511, 1000),
		},
	}

	if err := s.Reconcile(ctx, file, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if n := countRows(t, s.db, file.Filename); n != 1 {
		t.Fatalf("row count = %d, want 1", n)
	}
}

func TestSQLiteReconcileIsIdempotentAndPreservesUpdated(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	file := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "same-digest", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, file, Options{}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	var firstUpdated int64
	if err := s.db.QueryRow("SELECT updated FROM sections WHERE filename = ?", file.Filename).Scan(&firstUpdated); err != nil {
		t.Fatalf("query updated: %v", err)
	}

	rescan := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    3000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "same-digest", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, rescan, Options{}); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if n := countRows(t, s.db, file.Filename); n != 1 {
		t.Fatalf("row count after rescan = %d, want 1", n)
	}

	var updated, scanned int64
	if err := s.db.QueryRow("SELECT updated, scanned FROM sections WHERE filename = ?", file.Filename).Scan(&updated, &scanned); err != nil {
		t.Fatalf("query updated/scanned: %v", err)
	}
	if updated != firstUpdated {
		t.Errorf("updated = %d, want preserved %d", updated, firstUpdated)
	}
	if scanned != 3000 {
		t.Errorf("scanned = %d, want 3000 (advanced)", scanned)
	}
}

func TestSQLiteReconcileAdvancesUpdatedOnDigestChange(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	file := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "digest-v1", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, file, Options{}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	changed := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 5000,
		ScanTimeEpochSec:    6000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "digest-v2", 0, 990_000_000, 0, 511, 5000),
		},
	}
	if err := s.Reconcile(ctx, changed, Options{}); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	var updated int64
	if err := s.db.QueryRow("SELECT updated FROM sections WHERE filename = ?", file.Filename).Scan(&updated); err != nil {
		t.Fatalf("query updated: %v", err)
	}
	if updated != 5000 {
		t.Errorf("updated = %d, want 5000 (file mod time, content changed)", updated)
	}
}

func TestSQLiteReconcileVersionedReplacementIsScopedByExtent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	v1 := File{
		Filename:            "/a/b.dat#1",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "d1", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, v1, Options{}); err != nil {
		t.Fatalf("v1 Reconcile: %v", err)
	}

	unrelated := File{
		Filename:            "/a/other.dat",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("YY_ZZZ_00_BHZ", 1, "dU", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, unrelated, Options{}); err != nil {
		t.Fatalf("unrelated Reconcile: %v", err)
	}

	v2 := File{
		Filename:            "/a/b.dat#2",
		FileModTimeEpochSec: 1500,
		ScanTimeEpochSec:    2500,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "d2", 0, 990_000_000, 0, 511, 1500),
		},
	}
	if err := s.Reconcile(ctx, v2, Options{}); err != nil {
		t.Fatalf("v2 Reconcile: %v", err)
	}

	if n := countRows(t, s.db, "/a/b.dat#1"); n != 0 {
		t.Errorf("v1 rows remaining = %d, want 0", n)
	}
	if n := countRows(t, s.db, "/a/b.dat#2"); n != 1 {
		t.Errorf("v2 rows = %d, want 1", n)
	}
	if n := countRows(t, s.db, "/a/other.dat"); n != 1 {
		t.Errorf("unrelated file rows = %d, want 1 (untouched)", n)
	}
}

func TestSQLiteReconcileNoUpdateSkipsDeleteAndPreservation(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	file := File{
		Filename:            "/data/a.mseed",
		FileModTimeEpochSec: 1000,
		ScanTimeEpochSec:    2000,
		Sections: []*section.Section{
			testSection("XX_AAA_00_BHZ", 1, "d1", 0, 990_000_000, 0, 511, 1000),
		},
	}
	if err := s.Reconcile(ctx, file, Options{NoUpdate: true}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if err := s.Reconcile(ctx, file, Options{NoUpdate: true}); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if n := countRows(t, s.db, file.Filename); n != 2 {
		t.Fatalf("row count = %d, want 2 (no-update never deletes)", n)
	}
}
