// Package transcript records everything written to and read from a REPL
// session as zstd-compressed JSON lines.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Direction of an entry relative to the REPL.
const (
	DirCommand = "in"
	DirFrame   = "out"
)

// Entry is one line of a transcript.
type Entry struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Seq     uint64    `json:"seq"`
	Dir     string    `json:"dir"`
	Text    string    `json:"text"`
}

// Writer implements repl.Recorder. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	session string
	file    io.Closer
	zenc    *zstd.Encoder
	enc     *json.Encoder
	err     error
	closed  bool
	now     func() time.Time
}

var errClosed = errors.New("transcript closed")

// Create opens path for writing, truncating it, and creates parent
// directories as needed. A ".zst" suffix is not added automatically.
func Create(path, session string) (*Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("transcript path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, session)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter compresses entries into dst. Closing the Writer does not close
// dst.
func NewWriter(dst io.Writer, session string) (*Writer, error) {
	zenc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Writer{
		session: session,
		zenc:    zenc,
		enc:     json.NewEncoder(zenc),
		now:     time.Now,
	}, nil
}

func (w *Writer) RecordCommand(seq uint64, command string) {
	w.write(seq, DirCommand, command)
}

func (w *Writer) RecordFrame(seq uint64, frame string) {
	w.write(seq, DirFrame, frame)
}

func (w *Writer) write(seq uint64, dir, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = w.enc.Encode(Entry{Time: w.now().UTC(), Session: w.session, Seq: seq, Dir: dir, Text: text})
}

// Flush pushes buffered entries to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.err = w.zenc.Flush()
	return w.err
}

// Err returns the first write error, if any. Recording stops after it.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close finishes the zstd stream and closes the file opened by Create.
// Entries recorded after Close are dropped.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.zenc.Close()
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = w.err
	}
	if w.err == nil {
		w.err = errClosed
	}
	return err
}

// Read decodes every entry of a transcript stream.
func Read(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, fmt.Errorf("decode entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// ReadFile decodes the transcript stored at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
