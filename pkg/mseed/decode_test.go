package mseed

import (
	"bytes"
	"io"
	"testing"
)

func buildStream(records ...[]byte) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(r)
	}
	return buf.Bytes()
}

func TestStreamDecoderReadsContiguousRecords(t *testing.T) {
	r1 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 0, 100, 100.0, make([]byte, 50))
	r2 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 1_000_000_000, 100, 100.0, make([]byte, 50))

	dec := NewStreamDecoder(bytes.NewReader(buildStream(r1, r2)), nil, Options{})

	rec1, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	if rec1.Offset != 0 {
		t.Errorf("rec1.Offset = %d, want 0", rec1.Offset)
	}
	if rec1.Length != int64(len(r1)) {
		t.Errorf("rec1.Length = %d, want %d", rec1.Length, len(r1))
	}
	if rec1.SourceID != "XX_AAA_00_BHZ" {
		t.Errorf("rec1.SourceID = %q", rec1.SourceID)
	}

	rec2, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() #2: %v", err)
	}
	if rec2.Offset != rec1.Offset+rec1.Length {
		t.Errorf("rec2.Offset = %d, want %d", rec2.Offset, rec1.Offset+rec1.Length)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestStreamDecoderRejectsNonDataByDefault(t *testing.T) {
	r1 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 0, 100, 100.0, make([]byte, 10))
	junk := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	r2 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 1_000_000_000, 100, 100.0, make([]byte, 10))

	dec := NewStreamDecoder(bytes.NewReader(buildStream(r1, junk, r2)), nil, Options{SkipNonData: false})

	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	_, err := dec.Next()
	var decodeErr *ErrDecode
	if err == nil {
		t.Fatal("expected decode error on junk bytes")
	}
	if !isErrDecode(err, &decodeErr) {
		t.Fatalf("expected *ErrDecode, got %T: %v", err, err)
	}
}

func TestStreamDecoderSkipsNonDataWhenEnabled(t *testing.T) {
	r1 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 0, 100, 100.0, make([]byte, 10))
	junk := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	r2 := EncodeRecord("XX_AAA_00_BHZ", 1, 0, 2, 1_000_000_000, 100, 100.0, make([]byte, 10))

	dec := NewStreamDecoder(bytes.NewReader(buildStream(r1, junk, r2)), nil, Options{SkipNonData: true})

	first, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() #1: %v", err)
	}
	second, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() #2: %v", err)
	}
	if second.Offset != first.Offset+first.Length+int64(len(junk)) {
		t.Errorf("second.Offset = %d, want %d", second.Offset, first.Offset+first.Length+int64(len(junk)))
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRecordEnd(t *testing.T) {
	r := Record{Start: 0, SampleCount: 100, SampleRate: 100.0}
	// (100-1)/100 = 0.99s = 990_000_000 ns
	if got, want := r.End(), int64(990_000_000); got != want {
		t.Errorf("End() = %d, want %d", got, want)
	}

	zero := Record{Start: 42, SampleCount: 0, SampleRate: 100.0}
	if zero.End() != 42 {
		t.Errorf("End() for zero samples = %d, want 42", zero.End())
	}
}

func isErrDecode(err error, target **ErrDecode) bool {
	de, ok := err.(*ErrDecode)
	if !ok {
		return false
	}
	*target = de
	return true
}
