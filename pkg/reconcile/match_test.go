package reconcile

import "testing"

func TestFilenameClauseVersioned(t *testing.T) {
	pattern, isPrefix := filenameClause("/a/b.dat#2")
	if !isPrefix {
		t.Fatal("expected prefix match for versioned filename")
	}
	if pattern != "/a/b.dat#" {
		t.Errorf("pattern = %q, want %q", pattern, "/a/b.dat#")
	}
}

func TestFilenameClauseExact(t *testing.T) {
	pattern, isPrefix := filenameClause("/a/b.dat")
	if isPrefix {
		t.Fatal("expected exact match for unversioned filename")
	}
	if pattern != "/a/b.dat" {
		t.Errorf("pattern = %q, want %q", pattern, "/a/b.dat")
	}
}

func TestFilenameClauseHashNotFollowedByDigits(t *testing.T) {
	pattern, isPrefix := filenameClause("/a/b#final.dat")
	if isPrefix {
		t.Fatal("expected exact match when '#' is not followed by a pure numeric suffix")
	}
	if pattern != "/a/b#final.dat" {
		t.Errorf("pattern = %q, want unchanged filename", pattern)
	}
}

func TestMatchClauseSQLitePlaceholders(t *testing.T) {
	where, args := matchClause("/a/b#", true, fileExtentsWindow{Earliest: 1000, Latest: 2000}, "?")
	wantWhere := "filename LIKE ? AND starttime <= ? AND endtime >= ?"
	if where != wantWhere {
		t.Errorf("where = %q, want %q", where, wantWhere)
	}
	if len(args) != 3 || args[0] != "/a/b#%" {
		t.Errorf("args = %v", args)
	}
	if args[1] != int64(2000)+oneDayNs || args[2] != int64(1000)-oneDayNs {
		t.Errorf("narrowed window args = %v", args)
	}
}

func TestPgMatchClauseExactFilename(t *testing.T) {
	where, args := pgMatchClause("/a/b.dat", false, fileExtentsWindow{})
	wantWhere := "filename = $1 AND starttime <= to_timestamp($2) + interval '1 day'" +
		" AND endtime >= to_timestamp($3) - interval '1 day'"
	if where != wantWhere {
		t.Errorf("where = %q, want %q", where, wantWhere)
	}
	if len(args) != 3 || args[0] != "/a/b.dat" {
		t.Errorf("args = %v", args)
	}
}

func TestPgMatchClauseConvertsNanosecondsToEpochSeconds(t *testing.T) {
	_, args := pgMatchClause("/a/b#", true, fileExtentsWindow{Earliest: 1_000_000_000, Latest: 2_000_000_000})
	if args[0] != "/a/b#%" {
		t.Errorf("args[0] = %v, want prefix pattern", args[0])
	}
	if args[1] != 2.0 || args[2] != 1.0 {
		t.Errorf("args[1:] = %v, want [2.0, 1.0] epoch seconds", args[1:])
	}
}

func TestApplyPreservationMatchesOnIdentityAndDigest(t *testing.T) {
	rows := []Row{
		{Network: "XX", Station: "AAA", Location: "00", Channel: "BHZ", PubVersion: 1, Hash: "abc", UpdatedEpochSec: 999},
		{Network: "XX", Station: "BBB", Location: "00", Channel: "BHZ", PubVersion: 1, Hash: "def", UpdatedEpochSec: 999},
	}
	priors := []priorRow{
		{Network: "XX", Station: "AAA", Location: "00", Channel: "BHZ", PubVersion: 1, Hash: "abc", Updated: 100},
	}

	applyPreservation(rows, priors)

	if rows[0].UpdatedEpochSec != 100 {
		t.Errorf("rows[0].UpdatedEpochSec = %d, want 100 (preserved)", rows[0].UpdatedEpochSec)
	}
	if rows[1].UpdatedEpochSec != 999 {
		t.Errorf("rows[1].UpdatedEpochSec = %d, want 999 (unchanged, no match)", rows[1].UpdatedEpochSec)
	}
}

func TestApplyPreservationNoMatchOnDigestChange(t *testing.T) {
	rows := []Row{
		{Network: "XX", Station: "AAA", Location: "00", Channel: "BHZ", PubVersion: 1, Hash: "new-digest", UpdatedEpochSec: 999},
	}
	priors := []priorRow{
		{Network: "XX", Station: "AAA", Location: "00", Channel: "BHZ", PubVersion: 1, Hash: "old-digest", Updated: 100},
	}

	applyPreservation(rows, priors)

	if rows[0].UpdatedEpochSec != 999 {
		t.Errorf("UpdatedEpochSec = %d, want 999 (digest changed, not preserved)", rows[0].UpdatedEpochSec)
	}
}
