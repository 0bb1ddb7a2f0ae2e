// Package services holds the storage orchestrator: it turns byte streams
// into encrypted, deduplicated, versioned chunk sets and back.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/chunker"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/blobstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// MetadataCache is a best-effort cache of catalog records.
type MetadataCache interface {
	Get(id string) (*models.File, bool)
	Set(f *models.File) bool
	Delete(id string)
}

// FileService composes the chunk codec, the blob store and the catalog,
// chunk and version repositories.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	codec       *cryptox.Codec
	cache       MetadataCache
	chunkSize   int
	log         logging.Logger

	// cacheGen counts invalidations; a record read before the latest one is
	// never stored.
	cacheMu  sync.Mutex
	cacheGen uint64
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store, codec *cryptox.Codec,
	cache MetadataCache, chunkSize int, log logging.Logger) *FileService {
	if chunkSize <= 0 {
		chunkSize = common.DefaultChunkSize
	}
	return &FileService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		codec:       codec,
		cache:       cache,
		chunkSize:   chunkSize,
		log:         log.With("module", "files"),
	}
}

// Upload stores r as a new file owned by ownerID and returns its id. If a
// file with identical content already exists, the freshly written chunks are
// discarded and the existing id is returned, whoever owns it.
func (s *FileService) Upload(ctx context.Context, r io.Reader, name string, declaredSize int64, ownerID string, parentFolderID *string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty file name", common.ErrInvalidArgument)
	}
	if err := s.checkParent(ctx, ownerID, parentFolderID); err != nil {
		return "", err
	}

	fileID := uuid.NewString()
	res, err := s.writeChunks(ctx, r, fileID, 1)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	if declaredSize >= 0 && declaredSize != res.size {
		s.log.Warn(ctx, "declared size mismatch", "file_id", fileID, "declared", declaredSize, "actual", res.size,
			"expected_chunks", chunker.Count(declaredSize, s.chunkSize), "chunks", res.count)
	}

	file := &models.File{
		ID:             fileID,
		Name:           name,
		Size:           res.size,
		Hash:           res.hash,
		OwnerID:        ownerID,
		ParentFolderID: parentFolderID,
		Version:        1,
	}

	var (
		storedID string
		created  bool
	)
	gen := s.cacheGeneration()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		storedID, created, err = s.repomanager.Files(tx).InsertOrGetByHash(ctx, file)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.repomanager.Versions(tx).Insert(ctx, &models.FileVersion{
			FileID:     fileID,
			Version:    1,
			UploadID:   res.uploadID,
			ChunkCount: res.count,
			Size:       res.size,
			AuthorID:   ownerID,
		})
	})
	if err != nil {
		s.discard(ctx, res)
		return "", fmt.Errorf("error creating file: %w", err)
	}

	if !created {
		s.discard(ctx, res)
		s.log.Info(ctx, "duplicate upload", "file_id", storedID, "name", name, "size", humanize.Bytes(uint64(res.size)))
		return storedID, nil
	}

	now := time.Now()
	file.CreatedAt, file.ModifiedAt = now, now
	s.cacheStore(file, gen)

	s.log.Info(ctx, "file uploaded", "file_id", fileID, "chunks", res.count, "size", humanize.Bytes(uint64(res.size)))
	return fileID, nil
}

// Download streams the current version of fileID. The returned reader
// fetches and decrypts one chunk at a time as it is read.
func (s *FileService) Download(ctx context.Context, fileID, requesterID string) (io.ReadCloser, string, error) {
	if err := s.checkAccess(ctx, fileID, requesterID); err != nil {
		return nil, "", err
	}
	file, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	return s.openVersion(ctx, file, file.Version)
}

// DownloadVersion streams an earlier (or the current) version of fileID.
func (s *FileService) DownloadVersion(ctx context.Context, fileID string, version int64, requesterID string) (io.ReadCloser, string, error) {
	if err := s.checkAccess(ctx, fileID, requesterID); err != nil {
		return nil, "", err
	}
	file, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	return s.openVersion(ctx, file, version)
}

func (s *FileService) openVersion(ctx context.Context, file *models.File, version int64) (io.ReadCloser, string, error) {
	if file.IsFolder {
		return nil, "", common.ErrNotAFile
	}

	v, err := s.repomanager.Versions(s.db).Get(ctx, file.ID, version)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, "", common.ErrVersionNotFound
		}
		return nil, "", err
	}

	chunks, err := s.repomanager.Chunks(s.db).ListByUpload(ctx, v.UploadID)
	if err != nil {
		return nil, "", err
	}
	if len(chunks) != v.ChunkCount {
		return nil, "", fmt.Errorf("%w: version %d of %s has %d of %d chunks",
			common.ErrChunkIntegrity, version, file.ID, len(chunks), v.ChunkCount)
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return nil, "", fmt.Errorf("%w: chunk index gap at %d in %s", common.ErrChunkIntegrity, i, file.ID)
		}
	}

	s.log.Debug(ctx, "download started", "file_id", file.ID, "version", version, "chunks", len(chunks), "size", humanize.Bytes(uint64(v.Size)))
	return newChunkReader(ctx, s.blobs, s.codec, chunks), file.Name, nil
}

// CreateVersion records r as version current+1 of fileID. The file's
// version and size advance only once every chunk and the version row are
// written; a concurrent writer yields common.ErrVersionConflict.
func (s *FileService) CreateVersion(ctx context.Context, fileID string, r io.Reader, userID string) (int64, error) {
	if err := s.checkAccess(ctx, fileID, userID); err != nil {
		return 0, err
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return 0, err
	}
	if file.IsFolder {
		return 0, common.ErrNotAFile
	}

	prev := file.Version
	next := prev + 1

	res, err := s.writeChunks(ctx, r, fileID, next)
	if err != nil {
		return 0, fmt.Errorf("version %d of %s: %w", next, fileID, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Versions(tx).Insert(ctx, &models.FileVersion{
			FileID:     fileID,
			Version:    next,
			UploadID:   res.uploadID,
			ChunkCount: res.count,
			Size:       res.size,
			AuthorID:   userID,
		}); err != nil {
			return err
		}
		return s.repomanager.Files(tx).AdvanceVersion(ctx, fileID, prev, next, res.size)
	})
	if err != nil {
		s.discard(ctx, res)
		return 0, fmt.Errorf("error creating version: %w", err)
	}

	s.invalidate(fileID)

	s.log.Info(ctx, "version created", "file_id", fileID, "version", next, "chunks", res.count, "size", humanize.Bytes(uint64(res.size)))
	return next, nil
}

// CreateFolder adds an empty folder under parentFolderID (nil for root).
func (s *FileService) CreateFolder(ctx context.Context, name, ownerID string, parentFolderID *string) (*models.File, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty folder name", common.ErrInvalidArgument)
	}
	if err := s.checkParent(ctx, ownerID, parentFolderID); err != nil {
		return nil, err
	}

	folder := &models.File{
		ID:             uuid.NewString(),
		Name:           name,
		OwnerID:        ownerID,
		ParentFolderID: parentFolderID,
		Version:        1,
		IsFolder:       true,
	}
	if err := s.repomanager.Files(s.db).Insert(ctx, folder); err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}
	return folder, nil
}

// ListFiles lists the owner's entries in folderID (nil for root).
func (s *FileService) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*models.File, error) {
	if err := s.checkParent(ctx, ownerID, folderID); err != nil {
		return nil, err
	}
	return s.repomanager.Files(s.db).ListByParent(ctx, ownerID, folderID)
}

// GetFile returns catalog metadata for a file the user can access.
func (s *FileService) GetFile(ctx context.Context, fileID, userID string) (*models.File, error) {
	if err := s.checkAccess(ctx, fileID, userID); err != nil {
		return nil, err
	}
	return s.getFile(ctx, fileID)
}

// ListVersions returns every version of fileID, oldest first.
func (s *FileService) ListVersions(ctx context.Context, fileID, userID string) ([]*models.FileVersion, error) {
	if err := s.checkAccess(ctx, fileID, userID); err != nil {
		return nil, err
	}
	return s.repomanager.Versions(s.db).ListByFile(ctx, fileID)
}

// DeleteFile removes a file with all its versions and chunks. Only the owner
// may delete, and folders must be empty.
func (s *FileService) DeleteFile(ctx context.Context, fileID, userID string) error {
	filesRepo := s.repomanager.Files(s.db)

	file, err := filesRepo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != userID {
		return common.ErrAccessDenied
	}
	if file.IsFolder {
		children, err := filesRepo.ListByParent(ctx, userID, &file.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: folder is not empty", common.ErrInvalidArgument)
		}
	}

	chunks, err := s.repomanager.Chunks(s.db).ListByFile(ctx, fileID)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Chunks(tx).DeleteByFile(ctx, fileID); err != nil {
			return err
		}
		return s.repomanager.Files(tx).Delete(ctx, fileID)
	})
	if err != nil {
		return fmt.Errorf("error deleting file: %w", err)
	}
	s.invalidate(fileID)

	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, c.StorageKey)
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		s.log.Warn(ctx, "blob cleanup failed", "file_id", fileID, "keys", len(keys), "error", err)
	}

	s.log.Info(ctx, "file deleted", "file_id", fileID, "chunks", len(chunks))
	return nil
}

// orphanBatch bounds one ListOrphans page.
const orphanBatch = 500

// SweepOrphans deletes chunks older than ttl that no version references,
// such as leftovers of interrupted uploads. It returns the number removed.
func (s *FileService) SweepOrphans(ctx context.Context, ttl time.Duration) (int, error) {
	chunksRepo := s.repomanager.Chunks(s.db)
	cutoff := time.Now().Add(-ttl)

	removed := 0
	for {
		orphans, err := chunksRepo.ListOrphans(ctx, cutoff, orphanBatch)
		if err != nil {
			return removed, err
		}
		for _, c := range orphans {
			if err := s.blobs.Delete(ctx, c.StorageKey); err != nil {
				return removed, err
			}
			if err := chunksRepo.DeleteByID(ctx, c.ID); err != nil {
				return removed, err
			}
			removed++
		}
		if len(orphans) < orphanBatch {
			break
		}
	}

	if removed > 0 {
		s.log.Info(ctx, "orphan chunks removed", "count", removed)
	}
	return removed, nil
}

func (s *FileService) checkAccess(ctx context.Context, fileID, userID string) error {
	ok, err := s.repomanager.Access(s.db).HasAccess(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrAccessDenied
	}
	return nil
}

func (s *FileService) checkParent(ctx context.Context, ownerID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.getFile(ctx, *parentID)
	if err != nil {
		return err
	}
	if !parent.IsFolder {
		return fmt.Errorf("%w: parent is not a folder", common.ErrInvalidArgument)
	}
	if parent.OwnerID != ownerID {
		return common.ErrAccessDenied
	}
	return nil
}

// getFile reads through the metadata cache.
func (s *FileService) getFile(ctx context.Context, fileID string) (*models.File, error) {
	if f, ok := s.cache.Get(fileID); ok {
		return f, nil
	}
	gen := s.cacheGeneration()
	f, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	s.cacheStore(f, gen)
	return f, nil
}

func (s *FileService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// cacheStore caches f unless an invalidation happened since gen was taken.
func (s *FileService) cacheStore(f *models.File, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen == gen {
		s.cache.Set(f)
	}
}

func (s *FileService) invalidate(fileID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	s.cache.Delete(fileID)
}

// discard removes the chunk rows and blobs of an attempt that will never be
// linked. Failures are logged; the orphan sweep catches what is left.
func (s *FileService) discard(ctx context.Context, res *writeResult) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.repomanager.Chunks(s.db).DeleteByUpload(ctx, res.uploadID); err != nil {
		s.log.Warn(ctx, "chunk row cleanup failed", "upload_id", res.uploadID, "error", err)
	}
	if err := s.blobs.Delete(ctx, res.keys...); err != nil {
		s.log.Warn(ctx, "blob cleanup failed", "upload_id", res.uploadID, "error", err)
	}
}
