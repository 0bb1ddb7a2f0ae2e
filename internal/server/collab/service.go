// Package collab hosts live collaborative editing sessions: one in-memory
// session per file, operations applied in arrival order under a per-session
// lock, and fan-out of the results to the other participants.
package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
)

const flushTimeout = 10 * time.Second

type Service struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	hub         *Hub
	table       *table
	transformer Transformer
	threshold   int
	log         logging.Logger

	flushes sync.WaitGroup
}

func NewService(db dbx.DBTX, rm repomanager.RepositoryManager, hub *Hub, threshold int, log logging.Logger) *Service {
	if threshold <= 0 {
		threshold = common.DefaultFlushThreshold
	}
	return &Service{
		db:          db,
		repomanager: rm,
		hub:         hub,
		table:       newTable(),
		transformer: PassThrough{},
		threshold:   threshold,
		log:         log.With("module", "collab"),
	}
}

// UseTransformer replaces the operation transformer. It must be called
// before the service handles any traffic.
func (s *Service) UseTransformer(t Transformer) {
	s.transformer = t
}

func (s *Service) Hub() *Hub {
	return s.hub
}

// ActiveSessions returns the number of files with a live session.
func (s *Service) ActiveSessions() int {
	return s.table.len()
}

// Join adds userID, reachable through connection connID, to the session of
// fileID, creating the session from its last snapshot if needed. The joiner
// receives session-state; the other participants receive user-joined.
func (s *Service) Join(ctx context.Context, fileID, userID, connID string) error {
	ok, err := s.repomanager.Access(s.db).HasAccess(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrAccessDenied
	}

	for {
		sess := s.table.getOrCreate(fileID)
		sess.mu.Lock()
		if sess.closed {
			sess.mu.Unlock()
			continue
		}

		if !sess.loaded {
			if err := s.load(ctx, sess); err != nil {
				sess.closed = true
				s.table.remove(sess)
				sess.mu.Unlock()
				return err
			}
		}

		sess.members[userID] = &participant{userID: userID, connID: connID}
		s.hub.Send(connID, Event{Type: EventSessionState, Data: SessionState{
			Users:   sess.users(),
			Content: sess.content,
			Version: sess.version,
		}})
		sess.broadcast(s.hub, userID, Event{Type: EventUserJoined, Data: UserEvent{UserID: userID}})
		n := len(sess.members)
		sess.mu.Unlock()

		s.log.Info(ctx, "user joined session", "file_id", fileID, "user_id", userID, "participants", n)
		return nil
	}
}

func (s *Service) load(ctx context.Context, sess *session) error {
	snap, err := s.repomanager.Sessions(s.db).Load(ctx, sess.fileID)
	switch {
	case err == nil:
		sess.content = snap.Content
		sess.version = snap.Version
	case errors.Is(err, common.ErrNotFound):
	default:
		return fmt.Errorf("error loading session: %w", err)
	}
	sess.flushed = sess.version
	sess.loaded = true
	return nil
}

// SubmitOperation applies op from userID to the session of fileID and
// broadcasts it with the new version to every other participant.
func (s *Service) SubmitOperation(ctx context.Context, fileID, userID string, op Operation) (int64, error) {
	if err := op.Validate(); err != nil {
		return 0, err
	}

	sess, ok := s.table.get(fileID)
	if !ok {
		return 0, common.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed || !sess.loaded {
		return 0, common.ErrSessionNotFound
	}
	if _, ok := sess.members[userID]; !ok {
		return 0, common.ErrSessionNotFound
	}

	op = s.transformer.Transform(op, sess.buffer)
	content, err := op.Apply(sess.content)
	if err != nil {
		return 0, err
	}

	sess.content = content
	sess.version++
	sess.buffer = append(sess.buffer, op)
	sess.broadcast(s.hub, userID, Event{Type: EventOperation, Data: OperationEvent{
		Operation: op,
		UserID:    userID,
		Version:   sess.version,
	}})

	if len(sess.buffer) >= s.threshold {
		s.flushAsync(ctx, sess, sess.snapshot())
	}
	return sess.version, nil
}

// CursorMove records the caret of userID and relays it to the others.
func (s *Service) CursorMove(ctx context.Context, fileID, userID string, c Cursor) error {
	sess, ok := s.table.get(fileID)
	if !ok {
		return common.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p, ok := sess.members[userID]
	if sess.closed || !ok {
		return common.ErrSessionNotFound
	}
	p.cursor = c
	sess.broadcast(s.hub, userID, Event{Type: EventCursorUpdate, Data: CursorEvent{UserID: userID, Cursor: c}})
	return nil
}

// Leave removes userID from the session of fileID. The last participant to
// leave flushes the session and removes it from the table.
func (s *Service) Leave(ctx context.Context, fileID, userID string) error {
	sess, ok := s.table.get(fileID)
	if !ok {
		return nil
	}
	return s.leave(ctx, sess, userID, "")
}

// Disconnect treats the loss of connection connID as a leave from every
// session it participated in.
func (s *Service) Disconnect(ctx context.Context, connID string) error {
	var errs []error
	for _, sess := range s.table.all() {
		sess.mu.Lock()
		var userID string
		for id, p := range sess.members {
			if p.connID == connID {
				userID = id
				break
			}
		}
		sess.mu.Unlock()

		if userID == "" {
			continue
		}
		if err := s.leave(ctx, sess, userID, connID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// leave removes userID; a non-empty connID must match the member's
// connection, so a stale disconnect cannot evict a rejoined user.
func (s *Service) leave(ctx context.Context, sess *session, userID, connID string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	p, ok := sess.members[userID]
	if sess.closed || !ok || (connID != "" && p.connID != connID) {
		return nil
	}

	delete(sess.members, userID)
	sess.broadcast(s.hub, "", Event{Type: EventUserLeft, Data: UserEvent{UserID: userID}})
	s.log.Info(ctx, "user left session", "file_id", sess.fileID, "user_id", userID, "participants", len(sess.members))

	if len(sess.members) > 0 {
		return nil
	}

	// The closed session stays in the table until the final flush is done,
	// so a joiner waits for it instead of loading an older snapshot.
	sess.closed = true
	defer s.table.remove(sess)

	snap := sess.snapshot()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := s.persist(ctx, snap); err != nil {
		s.log.Error(ctx, "final session flush failed", "file_id", sess.fileID, "version", snap.Version, "error", err)
		return fmt.Errorf("error flushing session: %w", err)
	}
	sess.flushed = snap.Version
	s.log.Info(ctx, "session closed", "file_id", sess.fileID, "version", snap.Version)
	return nil
}

// snapshot copies the durable part of the session and resets the operation
// buffer. Callers hold sess.mu.
func (sess *session) snapshot() *models.SessionSnapshot {
	sess.buffer = nil
	return &models.SessionSnapshot{
		FileID:    sess.fileID,
		Content:   sess.content,
		Version:   sess.version,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *Service) flushAsync(ctx context.Context, sess *session, snap *models.SessionSnapshot) {
	s.flushes.Add(1)
	go func() {
		defer s.flushes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		_ = s.save(ctx, sess, snap)
	}()
}

// persist writes snap. A file deleted while its session was live has
// nothing left to persist into, so that case is not an error.
func (s *Service) persist(ctx context.Context, snap *models.SessionSnapshot) error {
	err := s.repomanager.Sessions(s.db).Save(ctx, snap)
	if errors.Is(err, common.ErrFileNotFound) {
		s.log.Warn(ctx, "snapshot dropped for deleted file", "file_id", snap.FileID, "version", snap.Version)
		return nil
	}
	return err
}

func (s *Service) save(ctx context.Context, sess *session, snap *models.SessionSnapshot) error {
	if err := s.persist(ctx, snap); err != nil {
		s.log.Error(ctx, "session flush failed", "file_id", snap.FileID, "version", snap.Version, "error", err)
		return err
	}

	sess.mu.Lock()
	if snap.Version > sess.flushed {
		sess.flushed = snap.Version
	}
	sess.mu.Unlock()

	s.log.Debug(ctx, "session flushed", "file_id", snap.FileID, "version", snap.Version)
	return nil
}

// FlushDirty persists every active session with edits newer than its last
// flush and reports how many were written.
func (s *Service) FlushDirty(ctx context.Context) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, sess := range s.table.all() {
		sess.mu.Lock()
		if sess.closed || !sess.loaded || !sess.dirty() {
			sess.mu.Unlock()
			continue
		}
		snap := sess.snapshot()
		sess.mu.Unlock()

		if err := s.save(ctx, sess, snap); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// FlushAll waits for in-flight threshold flushes and then persists every
// dirty session. It is called on shutdown.
func (s *Service) FlushAll(ctx context.Context) error {
	s.flushes.Wait()
	_, err := s.FlushDirty(ctx)
	return err
}
