package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/access"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/versions"
)

var errBoom = errors.New("boom")

// memDB is an in-memory catalog shared by the fake repositories.
type memDB struct {
	mu       sync.Mutex
	files    map[string]*models.File
	chunks   map[string]*models.FileChunk
	versions map[string][]*models.FileVersion
	denied   map[string]bool // userID -> no access to anything they do not own

	insertChunkErr error
	insertChunkN   int // fail on the n-th insert when > 0
	chunkInserts   int
	advanceErr     error
	versionErr     error
	accessCalls    int
	afterGet       func() // runs after GetByID has read, outside mu
}

func newMemDB() *memDB {
	return &memDB{
		files:    map[string]*models.File{},
		chunks:   map[string]*models.FileChunk{},
		versions: map[string][]*models.FileVersion{},
		denied:   map[string]bool{},
	}
}

type fakeFilesRepo struct {
	files.Repository
	m *memDB
}

func (r *fakeFilesRepo) InsertOrGetByHash(_ context.Context, f *models.File) (string, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.files {
		if existing.Hash != "" && existing.Hash == f.Hash {
			return existing.ID, false, nil
		}
	}
	cp := *f
	cp.Version = 1
	r.m.files[f.ID] = &cp
	return f.ID, true, nil
}

func (r *fakeFilesRepo) Insert(_ context.Context, f *models.File) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f.CreatedAt = time.Now()
	f.ModifiedAt = f.CreatedAt
	cp := *f
	r.m.files[f.ID] = &cp
	return nil
}

func (r *fakeFilesRepo) GetByID(_ context.Context, id string) (*models.File, error) {
	r.m.mu.Lock()
	f, ok := r.m.files[id]
	var cp models.File
	if ok {
		cp = *f
	}
	hook := r.m.afterGet
	r.m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, common.ErrFileNotFound
	}
	return &cp, nil
}

func (r *fakeFilesRepo) ListByParent(_ context.Context, ownerID string, parentID *string) ([]*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.File
	for _, f := range r.m.files {
		if f.OwnerID != ownerID {
			continue
		}
		if (parentID == nil) != (f.ParentFolderID == nil) {
			continue
		}
		if parentID != nil && *parentID != *f.ParentFolderID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFolder != out[j].IsFolder {
			return out[i].IsFolder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *fakeFilesRepo) AdvanceVersion(_ context.Context, id string, prev, next, size int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.advanceErr != nil {
		return r.m.advanceErr
	}
	f, ok := r.m.files[id]
	if !ok || f.Version != prev {
		return common.ErrVersionConflict
	}
	f.Version, f.Size = next, size
	return nil
}

func (r *fakeFilesRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.files[id]; !ok {
		return common.ErrFileNotFound
	}
	delete(r.m.files, id)
	delete(r.m.versions, id)
	return nil
}

type fakeChunksRepo struct {
	chunks.Repository
	m *memDB
}

func (r *fakeChunksRepo) Insert(_ context.Context, c *models.FileChunk) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.chunkInserts++
	if r.m.insertChunkErr != nil && r.m.chunkInserts >= r.m.insertChunkN {
		return r.m.insertChunkErr
	}
	cp := *c
	cp.CreatedAt = time.Now()
	r.m.chunks[c.ID] = &cp
	return nil
}

func (r *fakeChunksRepo) selectSorted(keep func(*models.FileChunk) bool) []*models.FileChunk {
	var out []*models.FileChunk
	for _, c := range r.m.chunks {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}

func (r *fakeChunksRepo) ListByUpload(_ context.Context, uploadID string) ([]*models.FileChunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.selectSorted(func(c *models.FileChunk) bool { return c.UploadID == uploadID }), nil
}

func (r *fakeChunksRepo) ListByFile(_ context.Context, fileID string) ([]*models.FileChunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.selectSorted(func(c *models.FileChunk) bool { return c.FileID == fileID }), nil
}

func (r *fakeChunksRepo) ListOrphans(_ context.Context, olderThan time.Time, limit int) ([]*models.FileChunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	referenced := map[string]bool{}
	for _, vs := range r.m.versions {
		for _, v := range vs {
			referenced[v.UploadID] = true
		}
	}
	out := r.selectSorted(func(c *models.FileChunk) bool {
		return !referenced[c.UploadID] && c.CreatedAt.Before(olderThan)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeChunksRepo) deleteWhere(match func(*models.FileChunk) bool) int64 {
	var n int64
	for id, c := range r.m.chunks {
		if match(c) {
			delete(r.m.chunks, id)
			n++
		}
	}
	return n
}

func (r *fakeChunksRepo) DeleteByUpload(_ context.Context, uploadID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.deleteWhere(func(c *models.FileChunk) bool { return c.UploadID == uploadID }), nil
}

func (r *fakeChunksRepo) DeleteByFile(_ context.Context, fileID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.deleteWhere(func(c *models.FileChunk) bool { return c.FileID == fileID }), nil
}

func (r *fakeChunksRepo) DeleteByID(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.chunks, id)
	return nil
}

type fakeVersionsRepo struct {
	versions.Repository
	m *memDB
}

func (r *fakeVersionsRepo) Insert(_ context.Context, v *models.FileVersion) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.versionErr != nil {
		return r.m.versionErr
	}
	for _, existing := range r.m.versions[v.FileID] {
		if existing.Version == v.Version {
			return common.ErrVersionConflict
		}
	}
	cp := *v
	cp.CreatedAt = time.Now()
	r.m.versions[v.FileID] = append(r.m.versions[v.FileID], &cp)
	return nil
}

func (r *fakeVersionsRepo) Get(_ context.Context, fileID string, version int64) (*models.FileVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, v := range r.m.versions[fileID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeVersionsRepo) ListByFile(_ context.Context, fileID string) ([]*models.FileVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.FileVersion
	for _, v := range r.m.versions[fileID] {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

type fakeAccess struct {
	access.Checker
	m *memDB
}

func (a *fakeAccess) HasAccess(_ context.Context, fileID, userID string) (bool, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	a.m.accessCalls++
	f, ok := a.m.files[fileID]
	if !ok {
		return false, common.ErrFileNotFound
	}
	return f.OwnerID == userID || !a.m.denied[userID], nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	m *memDB
}

func (rm *fakeRepoManager) Files(dbx.DBTX) files.Repository       { return &fakeFilesRepo{m: rm.m} }
func (rm *fakeRepoManager) Chunks(dbx.DBTX) chunks.Repository     { return &fakeChunksRepo{m: rm.m} }
func (rm *fakeRepoManager) Versions(dbx.DBTX) versions.Repository { return &fakeVersionsRepo{m: rm.m} }
func (rm *fakeRepoManager) Access(dbx.DBTX) access.Checker        { return &fakeAccess{m: rm.m} }

// memBlobs is a map-backed blobstore.Store that counts reads.
type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	putErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	d, ok := b.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBlobs) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *memBlobs) Close() error { return nil }

func (b *memBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// mapCache is a synchronous MetadataCache.
type mapCache struct {
	mu sync.Mutex
	m  map[string]models.File
}

func newMapCache() *mapCache { return &mapCache{m: map[string]models.File{}} }

func (c *mapCache) Get(id string) (*models.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.m[id]
	if !ok {
		return nil, false
	}
	return &f, true
}

func (c *mapCache) Set(f *models.File) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[f.ID] = *f
	return true
}

func (c *mapCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}
