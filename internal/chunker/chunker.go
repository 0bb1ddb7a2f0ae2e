// Package chunker regroups an arbitrary byte stream into fixed-size frames.
//
// A Framer is a pull-based cursor: every call to Next reads just enough from
// the source to fill one frame, so nothing beyond the current frame is
// buffered. Build a new Framer for every stream; cursors are never shared.
package chunker

import (
	"errors"
	"fmt"
	"io"
)

// Framer yields frames of exactly size bytes, except the last which may be
// shorter. An empty source yields no frames.
type Framer struct {
	r     io.Reader
	size  int
	index int
	err   error
}

// New returns a Framer over r. size must be positive.
func New(r io.Reader, size int) (*Framer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	return &Framer{r: r, size: size}, nil
}

// Next returns the next frame and its 0-based index. It returns io.EOF once
// the source is exhausted; any other error is the source's read failure and
// is sticky.
func (f *Framer) Next() ([]byte, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}

	frame := make([]byte, f.size)
	n, err := io.ReadFull(f.r, frame)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		// short tail frame; the following call reports io.EOF
		f.err = io.EOF
	case errors.Is(err, io.EOF):
		f.err = io.EOF
		return nil, 0, io.EOF
	default:
		f.err = err
		return nil, 0, err
	}

	idx := f.index
	f.index++
	return frame[:n], idx, nil
}

// Count returns ceil(total/size): the number of frames a stream of total bytes produces.
func Count(total int64, size int) int64 {
	if total <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}
