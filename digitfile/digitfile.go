// Package digitfile writes a stream of decimal digits to a timestamped,
// append-only text file, optionally zstd-compressed, and reports a SHA3-256
// digest and an xxHash64 checksum of the digits written.
package digitfile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/sha3"
)

// DefaultChunkSize is the number of characters buffered between writes.
const DefaultChunkSize = 4096

// ErrClosed is returned by writes after [File.Close].
var ErrClosed = errors.New("digitfile: file is closed")

// Summary describes a closed digit file.
type Summary struct {
	Path       string `json:"path"`
	Digits     int64  `json:"digits"` // characters written, header excluded
	SHA3       string `json:"sha3"`   // hex SHA3-256 of the characters written
	XXH64      uint64 `json:"xxh64"`  // xxHash64 of the characters written
	Compressed bool   `json:"compressed"`
}

type options struct {
	compress  bool
	chunkSize int
	header    bool
}

// Option configures [Create].
type Option func(*options)

// WithCompression writes a zstd stream and appends ".zst" to the name.
func WithCompression(on bool) Option {
	return func(o *options) {
		o.compress = on
	}
}

// WithChunkSize sets the write chunk size. It panics if n < 1.
func WithChunkSize(n int) Option {
	if n < 1 {
		panic("digitfile: WithChunkSize requires n >= 1")
	}
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithHeader controls the leading "# run ..." comment line. On by default.
func WithHeader(on bool) Option {
	return func(o *options) {
		o.header = on
	}
}

// File is an open digit file. It is not safe for concurrent use.
type File struct {
	path   string
	f      *os.File
	enc    *zstd.Encoder
	w      io.Writer
	h      hash.Hash
	xh     *xxhash.Digest
	chunk  []byte
	digits int64
	closed bool
}

// Name returns the file name for a run: pi_<YYYYMMDD_HHMMSS>_<id prefix>.txt,
// with ".zst" appended when compressed.
func Name(runID string, started time.Time, compressed bool) string {
	id := runID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("pi_%s_%s.txt", started.Format("20060102_150405"), id)
	if compressed {
		name += ".zst"
	}
	return name
}

// Create opens the digit file for a run in dir, creating dir if needed.
// An existing file of the same name is appended to.
func Create(dir, runID string, started time.Time, opts ...Option) (*File, error) {
	o := options{chunkSize: DefaultChunkSize, header: true}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, Name(runID, started, o.compress))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open digit file: %w", err)
	}

	df := &File{
		path:  path,
		f:     f,
		w:     f,
		h:     sha3.New256(),
		xh:    xxhash.New(),
		chunk: make([]byte, 0, o.chunkSize),
	}
	if o.compress {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start zstd encoder: %w", err)
		}
		df.enc = enc
		df.w = enc
	}

	if o.header {
		line := fmt.Sprintf("# run %s started %s\n", runID, started.UTC().Format(time.RFC3339))
		if _, err := io.WriteString(df.w, line); err != nil {
			_, _ = df.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return df, nil
}

// Path returns the file path.
func (df *File) Path() string { return df.path }

// WriteDigits writes every character of seq, flushing each full chunk.
func (df *File) WriteDigits(seq iter.Seq[byte]) error {
	if df.closed {
		return ErrClosed
	}
	for c := range seq {
		df.chunk = append(df.chunk, c)
		if len(df.chunk) == cap(df.chunk) {
			if err := df.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Write implements io.Writer on top of the same chunking and digest.
func (df *File) Write(p []byte) (int, error) {
	if df.closed {
		return 0, ErrClosed
	}
	for i, c := range p {
		df.chunk = append(df.chunk, c)
		if len(df.chunk) == cap(df.chunk) {
			if err := df.flush(); err != nil {
				return i + 1, err
			}
		}
	}
	return len(p), nil
}

func (df *File) flush() error {
	if len(df.chunk) == 0 {
		return nil
	}
	if _, err := df.w.Write(df.chunk); err != nil {
		return fmt.Errorf("failed to write digits: %w", err)
	}
	df.h.Write(df.chunk)
	_, _ = df.xh.Write(df.chunk)
	df.digits += int64(len(df.chunk))
	df.chunk = df.chunk[:0]
	return nil
}

// Close flushes buffered digits, ends the line, and closes the file.
// Calling Close again returns [ErrClosed].
func (df *File) Close() (Summary, error) {
	if df.closed {
		return Summary{}, ErrClosed
	}
	df.closed = true

	var errs []error
	errs = append(errs, df.flush())
	if df.digits > 0 {
		if _, err := io.WriteString(df.w, "\n"); err != nil {
			errs = append(errs, err)
		}
	}
	if df.enc != nil {
		errs = append(errs, df.enc.Close())
	}
	errs = append(errs, df.f.Close())

	sum := Summary{
		Path:       df.path,
		Digits:     df.digits,
		SHA3:       hex.EncodeToString(df.h.Sum(nil)),
		XXH64:      df.xh.Sum64(),
		Compressed: df.enc != nil,
	}
	return sum, errors.Join(errs...)
}
