package chunker

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r io.Reader, size int) [][]byte {
	t.Helper()
	f, err := New(r, size)
	require.NoError(t, err)

	var frames [][]byte
	for {
		frame, idx, err := f.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		require.Equal(t, len(frames), idx, "indexes must be dense")
		frames = append(frames, frame)
	}
}

func TestFramer_HelloWorld(t *testing.T) {
	frames := collect(t, bytes.NewReader([]byte("hello world")), 4)

	require.Len(t, frames, 3)
	assert.Equal(t, "hell", string(frames[0]))
	assert.Equal(t, "o wo", string(frames[1]))
	assert.Equal(t, "rld", string(frames[2]))

	h := sha256.New()
	for _, f := range frames {
		h.Write(f)
	}
	want := sha256.Sum256([]byte("hello world"))
	assert.Equal(t, want[:], h.Sum(nil))
}

func TestFramer_ReassemblyProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for _, size := range []int{1, 3, 4, 7, 64} {
		for _, length := range []int{0, 1, size - 1, size, size + 1, 3 * size, 5*size + 2, 1000} {
			if length < 0 {
				continue
			}
			src := make([]byte, length)
			rnd.Read(src)

			// one byte per Read exercises the carry-over path
			frames := collect(t, iotest.OneByteReader(bytes.NewReader(src)), size)

			assert.EqualValues(t, Count(int64(length), size), len(frames), "size=%d len=%d", size, length)
			if len(frames) > 0 {
				last := len(frames[len(frames)-1])
				want := length % size
				if want == 0 {
					want = size
				}
				assert.Equal(t, want, last, "size=%d len=%d", size, length)
			}
			assert.Equal(t, src, bytes.Join(frames, nil), "size=%d len=%d", size, length)
		}
	}
}

func TestFramer_EmptySourceYieldsNothing(t *testing.T) {
	frames := collect(t, bytes.NewReader(nil), 4)
	assert.Empty(t, frames)
}

func TestFramer_SourceErrorIsSticky(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(bytes.NewReader([]byte("abcdef")), iotest.ErrReader(boom))

	f, err := New(r, 4)
	require.NoError(t, err)

	frame, _, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(frame))

	_, _, err = f.Next()
	require.ErrorIs(t, err, boom)
	_, _, err = f.Next()
	require.ErrorIs(t, err, boom)
}

func TestFramer_FreshCursorPerCall(t *testing.T) {
	src := []byte("0123456789")
	a := collect(t, bytes.NewReader(src), 3)
	b := collect(t, bytes.NewReader(src), 3)
	assert.Equal(t, a, b)
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := New(bytes.NewReader(nil), 0)
	assert.Error(t, err)
}
