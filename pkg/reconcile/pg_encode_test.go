package reconcile

import (
	"testing"

	"github.com/lib/pq"

	"github.com/eunmann/mseedindex/pkg/section"
)

func TestPgHstoreText(t *testing.T) {
	entries := []section.TimeIndexEntry{{TimeNs: 0, ByteOffset: 0}, {TimeNs: 3_600_000_000_000, ByteOffset: 1024}}
	got := pgHstoreText(entries, true)
	want := `"0.000000"=>"0","3600.000000"=>"1024","latest"=>"1"`
	if got != want {
		t.Errorf("pgHstoreText = %q, want %q", got, want)
	}

	got = pgHstoreText(entries, false)
	want = `"0.000000"=>"0","3600.000000"=>"1024","latest"=>"0"`
	if got != want {
		t.Errorf("pgHstoreText (time_order=false) = %q, want %q", got, want)
	}
}

func TestPgNumrangeLiterals(t *testing.T) {
	spans := []section.Span{{StartNs: 0, EndNs: 1_000_000_000}, {StartNs: 5_000_000_000, EndNs: 6_500_000_000}}
	got := pgNumrangeLiterals(spans)
	want := []string{"[0.000000,1.000000]", "[5.000000,6.500000]"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("pgNumrangeLiterals = %v, want %v", got, want)
	}
}

func TestPgRateLiterals(t *testing.T) {
	spans := []section.Span{{SampleRate: 100}, {SampleRate: 100.5}}
	got := pgRateLiterals(spans)
	if len(got) != 2 || got[0] != 100 || got[1] != 100.5 {
		t.Errorf("pgRateLiterals = %v, want [100, 100.5]", got)
	}
}

func TestPgInsertArgsWiresTimestampsAsEpochSeconds(t *testing.T) {
	r := Row{
		Network: "XX", Station: "AAA", Location: "00", Channel: "BHZ",
		StartTimeNs: 1_000_000_000, EndTimeNs: 2_000_000_000, SampleRate: 100,
		FileModTimeEpochSec: 111, UpdatedEpochSec: 222, ScannedEpochSec: 333,
	}
	args := pgInsertArgs(r)
	if len(args) != 20 {
		t.Fatalf("len(args) = %d, want 20", len(args))
	}
	if args[6] != 1.0 || args[7] != 2.0 {
		t.Errorf("starttime/endtime args = %v, %v, want epoch-second floats 1.0, 2.0", args[6], args[7])
	}
	if args[17] != int64(111) || args[18] != int64(222) || args[19] != int64(333) {
		t.Errorf("filemodtime/updated/scanned args = %v, %v, %v", args[17], args[18], args[19])
	}
	if args[13] != nil {
		t.Errorf("timeindex arg = %v, want nil when HasTimeIndex is false", args[13])
	}
	if args[14] != nil {
		t.Errorf("timespans arg = %v, want nil when there are no spans", args[14])
	}
}

func TestPgInsertArgsEncodesTimeIndexAndSpans(t *testing.T) {
	r := Row{
		HasTimeIndex:     true,
		TimeIndexEntries: []section.TimeIndexEntry{{TimeNs: 0, ByteOffset: 0}},
		TimeOrder:        true,
		Spans:            []section.Span{{StartNs: 0, EndNs: 1_000_000_000, SampleRate: 100}},
		RateMismatch:     true,
	}
	args := pgInsertArgs(r)

	hstoreText, ok := args[13].(string)
	if !ok || hstoreText != `"0.000000"=>"0","latest"=>"1"` {
		t.Errorf("timeindex arg = %v", args[13])
	}

	spansArr, ok := args[14].(*pq.StringArray)
	if !ok || len(*spansArr) != 1 || (*spansArr)[0] != "[0.000000,1.000000]" {
		t.Errorf("timespans arg = %v", args[14])
	}

	ratesArr, ok := args[15].(*pq.Float64Array)
	if !ok || len(*ratesArr) != 1 || (*ratesArr)[0] != 100 {
		t.Errorf("timerates arg = %v", args[15])
	}
}
