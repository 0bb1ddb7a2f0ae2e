package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/chunker"
	"github.com/dmitrijs2005/gophdrive/internal/server/blobstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// writeResult describes the chunk set written by one pipeline run.
type writeResult struct {
	uploadID string
	hash     string
	count    int
	size     int64
	keys     []string
}

type plainFrame struct {
	index int
	data  []byte
}

type sealedFrame struct {
	index int
	size  int
	data  []byte
}

// writeChunks frames r, hashes the plaintext, encrypts every frame and
// persists it as chunk `index` of a new upload of fileID. The three stages
// run concurrently with one frame of slack between them, so at most a few
// frames are held in memory regardless of the stream length.
//
// On error the chunks written so far are removed before returning.
func (s *FileService) writeChunks(ctx context.Context, r io.Reader, fileID string, version int64) (*writeResult, error) {
	framer, err := chunker.New(r, s.chunkSize)
	if err != nil {
		return nil, err
	}

	res := &writeResult{uploadID: uuid.NewString()}
	hasher := sha256.New()

	plain := make(chan plainFrame, 1)
	sealed := make(chan sealedFrame, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(plain)
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			frame, idx, err := framer.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			hasher.Write(frame)
			select {
			case plain <- plainFrame{index: idx, data: frame}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		defer close(sealed)
		for f := range plain {
			out := sealedFrame{index: f.index, size: len(f.data), data: s.codec.Encrypt(f.data)}
			select {
			case sealed <- out:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		chunksRepo := s.repomanager.Chunks(s.db)
		for f := range sealed {
			chunkID := uuid.NewString()
			key := blobstore.ChunkKey(fileID, chunkID)

			if err := s.blobs.Put(gctx, key, f.data); err != nil {
				return err
			}
			res.keys = append(res.keys, key)

			if err := chunksRepo.Insert(gctx, &models.FileChunk{
				ID:         chunkID,
				FileID:     fileID,
				UploadID:   res.uploadID,
				ChunkIndex: f.index,
				StorageKey: key,
				Size:       int64(f.size),
				Version:    version,
			}); err != nil {
				return err
			}
			res.count++
			res.size += int64(f.size)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.discard(ctx, res)
		return nil, err
	}

	res.hash = hex.EncodeToString(hasher.Sum(nil))
	return res, nil
}
