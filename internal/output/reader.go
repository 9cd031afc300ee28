package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ErrCorruptRecord marks a record whose payload could not be decoded. The
// reader stays usable after it.
var ErrCorruptRecord = errors.New("corrupt record")

type Record struct {
	Index     int
	Timestamp time.Time
	Size      int
	Entry     Entry
}

type RawLogReader struct {
	r     *bufio.Reader
	runID uuid.UUID
	next  int
}

// NewRawLogReader checks the file header and positions the reader at the
// first record.
func NewRawLogReader(src io.Reader) (*RawLogReader, error) {
	r := bufio.NewReader(src)
	header := make([]byte, len(rawLogMagic)+len(uuid.UUID{}))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[:len(rawLogMagic)]) != rawLogMagic {
		return nil, fmt.Errorf("unexpected rawlog magic %q", string(header[:len(rawLogMagic)]))
	}
	runID, err := uuid.FromBytes(header[len(rawLogMagic):])
	if err != nil {
		return nil, fmt.Errorf("read run id: %w", err)
	}
	return &RawLogReader{r: r, runID: runID}, nil
}

func (r *RawLogReader) RunID() uuid.UUID { return r.runID }

// Next returns io.EOF once the log is exhausted. A truncated trailing record
// also ends the log.
func (r *RawLogReader) Next() (Record, error) {
	var meta [recordHeaderSize]byte
	if _, err := io.ReadFull(r.r, meta[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}

	rec := Record{Index: r.next, Timestamp: time.Unix(0, ts), Size: int(size)}
	r.next++
	if err := cbor.Unmarshal(payload, &rec.Entry); err != nil {
		return rec, fmt.Errorf("record %d: %w: %v", rec.Index, ErrCorruptRecord, err)
	}
	return rec, nil
}
