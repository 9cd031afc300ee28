package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// File layout: 8-byte magic, 16-byte run id, then records of
// [8-byte unix nanos][4-byte length][CBOR payload], little endian.
const rawLogMagic = "HOSCRAW1"

const recordHeaderSize = 12

// Entry is one logged OSC message.
type Entry struct {
	Direction string `cbor:"dir" json:"dir"`
	Address   string `cbor:"address" json:"address"`
	Args      []any  `cbor:"args" json:"args"`
}

type RawLogWriter struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	runID uuid.UUID
	path  string
	count uint64
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	runID := uuid.New()
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%s.bin", timestamp, prefix, runID.String()[:8]))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := w.Write(runID[:]); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f:     f,
		w:     w,
		runID: runID,
		path:  filename,
	}, nil
}

func (r *RawLogWriter) RunID() uuid.UUID { return r.runID }

func (r *RawLogWriter) Path() string { return r.path }

// RecordMessage appends one message to the log. It satisfies osc.Recorder.
func (r *RawLogWriter) RecordMessage(direction string, address string, args []any) error {
	payload, err := cbor.Marshal(Entry{Direction: direction, Address: address, Args: args})
	if err != nil {
		return fmt.Errorf("encode %s: %w", address, err)
	}
	return r.Record(payload)
}

func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	r.count++
	return nil
}

// Flush pushes buffered records to disk. Records are otherwise flushed on
// Close, since the telemetry path writes dozens of messages per frame.
func (r *RawLogWriter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}
