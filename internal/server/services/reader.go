package services

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/server/blobstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// chunkReader is a pull-based plaintext stream over an ordered chunk list.
// A chunk is fetched only when the consumer has drained the previous one,
// so a slow or departed reader never causes read-ahead.
type chunkReader struct {
	ctx    context.Context
	blobs  blobstore.Store
	codec  *cryptox.Codec
	chunks []*models.FileChunk

	next   int
	buf    []byte
	err    error
	closed bool
}

func newChunkReader(ctx context.Context, blobs blobstore.Store, codec *cryptox.Codec, chunks []*models.FileChunk) *chunkReader {
	return &chunkReader{ctx: ctx, blobs: blobs, codec: codec, chunks: chunks}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	for len(r.buf) == 0 {
		if r.next == len(r.chunks) {
			r.err = io.EOF
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) fill() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	c := r.chunks[r.next]

	sealed, err := r.blobs.Get(r.ctx, c.StorageKey)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", c.ChunkIndex, err)
	}
	plain, err := r.codec.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", c.ChunkIndex, err)
	}
	if int64(len(plain)) != c.Size {
		return fmt.Errorf("%w: chunk %d has %d bytes, want %d", common.ErrChunkIntegrity, c.ChunkIndex, len(plain), c.Size)
	}

	r.buf = plain
	r.next++
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
