package jsonsink

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/mseedindex/pkg/section"
)

func TestContentType(t *testing.T) {
	cases := map[uint8]string{
		2: "application/vnd.fdsn.mseed;version=2",
		3: "application/vnd.fdsn.mseed;version=3",
		0: "application/vnd.fdsn.mseed",
		9: "application/vnd.fdsn.mseed",
	}
	for version, want := range cases {
		if got := ContentType(version); got != want {
			t.Errorf("ContentType(%d) = %q, want %q", version, got, want)
		}
	}
}

func TestBuildDocumentComputesFileExtents(t *testing.T) {
	sections := []*section.Section{
		{SourceID: "XX_AAA_00_BHZ", Earliest: 100, Latest: 200, FormatVersion: 2, Digest: "d1"},
		{SourceID: "XX_BBB_00_BHZ", Earliest: 50, Latest: 900, FormatVersion: 2, Digest: "d2"},
	}
	doc := BuildDocument(FileInput{Path: "/a.mseed", FileSHA256: "abc", Sections: sections})

	if doc.Earliest != 50 || doc.Latest != 900 {
		t.Errorf("extents = [%d,%d], want [50,900]", doc.Earliest, doc.Latest)
	}
	if len(doc.Content) != 2 {
		t.Fatalf("len(Content) = %d, want 2", len(doc.Content))
	}
}

func TestBuildDocumentOmitsTimeIndexWhenGuardFails(t *testing.T) {
	s := &section.Section{
		SourceID:  "XX_AAA_00_BHZ",
		Earliest:  100,
		Latest:    200,
		TimeIndex: []section.TimeIndexEntry{{TimeNs: 150, ByteOffset: 0}},
	}
	doc := BuildDocument(FileInput{Path: "/a.mseed", Sections: []*section.Section{s}})

	if doc.Content[0].TSTimeByteOffset != nil {
		t.Error("TSTimeByteOffset should be nil/omitted when first entry != earliest")
	}
}

func TestRoundTripThroughJSON(t *testing.T) {
	s := &section.Section{
		SourceID:      "XX_AAA_00_BHZ",
		PubVersion:    1,
		StartOffset:   0,
		EndOffset:     511,
		Earliest:      0,
		Latest:        990_000_000,
		FormatVersion: 2,
		TimeOrder:     true,
		TimeIndex:     []section.TimeIndexEntry{{TimeNs: 0, ByteOffset: 0}},
		Spans:         []section.Span{{StartNs: 0, EndNs: 990_000_000, SampleRate: 100}},
		Digest:        "deadbeef",
	}
	doc := BuildDocument(FileInput{Path: "/a.mseed", FileSHA256: "ff", Sections: []*section.Section{s}})

	var buf bytes.Buffer
	if err := WriteAll(&buf, []Document{doc}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	var decoded []Document
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Content) != 1 {
		t.Fatalf("unexpected decoded shape: %+v", decoded)
	}
	got := decoded[0].Content[0]
	if got.SourceID != s.SourceID || got.MD5 != s.Digest || got.ByteCount != 512 {
		t.Errorf("round-tripped summary mismatch: %+v", got)
	}
}

func TestWriteAllToPathLeavesNoTmpFileBehind(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.json")

	doc := BuildDocument(FileInput{Path: "/a.mseed", FileSHA256: "ff"})
	if err := WriteAllToPath(outPath, []Document{doc}); err != nil {
		t.Fatalf("WriteAllToPath: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded []Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("len(decoded) = %d, want 1", len(decoded))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("tmp file left behind: %s", e.Name())
		}
	}
}
