package digitfile

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

var started = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

const runID = "0f8e2b1c-4a5d-4e6f-8a9b-0c1d2e3f4a5b"

func sha3Hex(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestName(t *testing.T) {
	assert.Equal(t, "pi_20260314_150926_0f8e2b1c.txt", Name(runID, started, false))
	assert.Equal(t, "pi_20260314_150926_short.txt.zst", Name("short", started, true))
}

func TestWriteDigitsPlain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f, err := Create(dir, runID, started, WithChunkSize(3))
	require.NoError(t, err)

	digits := "3.14159265358979"
	require.NoError(t, f.WriteDigits(slices.Values([]byte(digits))))
	sum, err := f.Close()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, Name(runID, started, false)), sum.Path)
	assert.Equal(t, int64(len(digits)), sum.Digits)
	assert.Equal(t, sha3Hex(digits), sum.SHA3)
	assert.Equal(t, xxhash.Sum64String(digits), sum.XXH64)
	assert.False(t, sum.Compressed)

	data, err := os.ReadFile(sum.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "# run "+runID+" started 2026-03-14T15:09:26Z", lines[0])
	assert.Equal(t, digits, lines[1])
}

func TestWriteDigitsCompressed(t *testing.T) {
	f, err := Create(t.TempDir(), runID, started, WithCompression(true), WithHeader(false))
	require.NoError(t, err)

	digits := strings.Repeat("1415926535", 1000)
	n, err := f.Write([]byte(digits))
	require.NoError(t, err)
	assert.Equal(t, len(digits), n)
	sum, err := f.Close()
	require.NoError(t, err)
	assert.True(t, sum.Compressed)
	assert.True(t, strings.HasSuffix(sum.Path, ".txt.zst"))

	raw, err := os.Open(sum.Path)
	require.NoError(t, err)
	defer raw.Close()
	dec, err := zstd.NewReader(raw)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)

	assert.Equal(t, digits+"\n", string(plain))
	assert.Equal(t, sha3Hex(digits), sum.SHA3)
}

func TestCreateAppends(t *testing.T) {
	dir := t.TempDir()
	for _, part := range []string{"3.14", "159"} {
		f, err := Create(dir, runID, started, WithHeader(false))
		require.NoError(t, err)
		require.NoError(t, f.WriteDigits(slices.Values([]byte(part))))
		_, err = f.Close()
		require.NoError(t, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, Name(runID, started, false)))
	require.NoError(t, err)
	assert.Equal(t, "3.14\n159\n", string(data))
}

func TestWriteAfterClose(t *testing.T) {
	f, err := Create(t.TempDir(), runID, started)
	require.NoError(t, err)
	_, err = f.Close()
	require.NoError(t, err)

	assert.ErrorIs(t, f.WriteDigits(slices.Values([]byte("1"))), ErrClosed)
	_, err = f.Write([]byte("1"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Close()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEmptyFileHasNoTrailingNewline(t *testing.T) {
	f, err := Create(t.TempDir(), runID, started, WithHeader(false))
	require.NoError(t, err)
	sum, err := f.Close()
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Digits)

	info, err := os.Stat(sum.Path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWithChunkSizePanics(t *testing.T) {
	assert.Panics(t, func() { WithChunkSize(0) })
}
