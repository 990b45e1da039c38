package mseed

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// recordMagic marks the start of a record in the reference framing this
// package decodes. The real IRIS/FDSN miniSEED 2/3 fixed-header layouts
// are out of this core's scope (spec §1); this is the reference decoder
// that satisfies the Reader contract end to end so the engine has
// something concrete to stream, hash, and reconcile in tests.
var recordMagic = [4]byte{'M', 'S', 'E', 'D'}

// fixedHeaderSize is the size of the reference record header, not
// counting the variable-length source identifier that follows it.
const fixedHeaderSize = 4 + 1 + 1 + 1 + 1 + 4 + 8 + 8 + 8 // magic,fmtver,pubver,quality,idlen,len,start,count,rate

// StreamDecoder decodes a sequence of reference-format records from an
// io.Reader, tracking absolute byte offsets across buffered reads.
type StreamDecoder struct {
	r       *bufio.Reader
	offset  int64
	opts    Options
	closer  io.Closer
	scratch []byte
}

// NewStreamDecoder wraps r. closer, if non-nil, is invoked on Close.
func NewStreamDecoder(r io.Reader, closer io.Closer, opts Options) *StreamDecoder {
	return &StreamDecoder{
		r:      bufio.NewReaderSize(r, 64*1024),
		opts:   opts,
		closer: closer,
	}
}

// Next implements Reader.
func (d *StreamDecoder) Next() (Record, error) {
	for {
		start := d.offset

		peek, err := d.r.Peek(4)
		if len(peek) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, &ErrDecode{Offset: start, Err: fmt.Errorf("peek magic: %w", err)}
		}
		if len(peek) < 4 {
			// Trailing bytes too short to be a record or non-data: treat
			// as a truncated-stream decode error regardless of skip mode,
			// since there is nothing left to resynchronize against.
			return Record{}, &ErrDecode{Offset: start, Err: fmt.Errorf("truncated stream: %d trailing bytes", len(peek))}
		}

		if peek[0] != recordMagic[0] || peek[1] != recordMagic[1] || peek[2] != recordMagic[2] || peek[3] != recordMagic[3] {
			if !d.opts.SkipNonData {
				return Record{}, &ErrDecode{Offset: start, Err: fmt.Errorf("expected record magic, got %q", peek)}
			}
			if _, err := d.r.Discard(1); err != nil {
				return Record{}, &ErrDecode{Offset: start, Err: fmt.Errorf("skip non-data byte: %w", err)}
			}
			d.offset++
			continue
		}

		if _, err := d.r.Discard(4); err != nil {
			return Record{}, &ErrDecode{Offset: start, Err: fmt.Errorf("discard magic: %w", err)}
		}
		d.offset += 4

		return d.readRecordBody(start)
	}
}

func (d *StreamDecoder) readRecordBody(recordStart int64) (Record, error) {
	head := make([]byte, fixedHeaderSize-4)
	if _, err := io.ReadFull(d.r, head); err != nil {
		return Record{}, &ErrDecode{Offset: recordStart, Err: fmt.Errorf("read header: %w", err)}
	}
	d.offset += int64(len(head))

	fmtVersion := head[0]
	pubVersion := head[1]
	quality := head[2]
	idLen := head[3]
	payloadLen := binary.BigEndian.Uint32(head[4:8])
	startNs := int64(binary.BigEndian.Uint64(head[8:16]))
	sampleCount := int64(binary.BigEndian.Uint64(head[16:24]))
	sampleRateBits := binary.BigEndian.Uint64(head[24:32])
	sampleRate := math.Float64frombits(sampleRateBits)

	idBuf := make([]byte, idLen)
	if _, err := io.ReadFull(d.r, idBuf); err != nil {
		return Record{}, &ErrDecode{Offset: recordStart, Err: fmt.Errorf("read source id: %w", err)}
	}
	d.offset += int64(idLen)

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Record{}, &ErrDecode{Offset: recordStart, Err: fmt.Errorf("read payload: %w", err)}
	}
	d.offset += int64(payloadLen)

	totalLen := d.offset - recordStart
	raw := make([]byte, 0, totalLen)
	raw = append(raw, recordMagic[:]...)
	raw = append(raw, head...)
	raw = append(raw, idBuf...)
	raw = append(raw, payload...)

	return Record{
		Offset:        recordStart,
		Length:        totalLen,
		SourceID:      string(idBuf),
		PubVersion:    pubVersion,
		Quality:       quality,
		FormatVersion: fmtVersion,
		Start:         startNs,
		SampleCount:   sampleCount,
		SampleRate:    sampleRate,
		Raw:           raw,
	}, nil
}

// Close implements Reader.
func (d *StreamDecoder) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// EncodeRecord serializes a record into the reference wire format
// StreamDecoder reads back. It is exported for tests and for any tool
// that generates synthetic fixtures; it is not part of the decoder's
// external interface.
func EncodeRecord(sourceID string, pubVersion, quality, formatVersion uint8, start, sampleCount int64, sampleRate float64, payload []byte) []byte {
	buf := make([]byte, 0, fixedHeaderSize+len(sourceID)+len(payload))
	buf = append(buf, recordMagic[:]...)
	buf = append(buf, formatVersion, pubVersion, quality, byte(len(sourceID)))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf = append(buf, lenBuf[:]...)

	var startBuf [8]byte
	binary.BigEndian.PutUint64(startBuf[:], uint64(start))
	buf = append(buf, startBuf[:]...)

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(sampleCount))
	buf = append(buf, countBuf[:]...)

	var rateBuf [8]byte
	binary.BigEndian.PutUint64(rateBuf[:], math.Float64bits(sampleRate))
	buf = append(buf, rateBuf[:]...)

	buf = append(buf, sourceID...)
	buf = append(buf, payload...)
	return buf
}
