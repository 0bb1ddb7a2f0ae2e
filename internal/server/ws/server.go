// Package ws carries collaboration events over websockets. Each connection
// gets one reader dispatching its events in order and one writer draining
// its hub queue.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/collab"
	"github.com/google/uuid"
)

const defaultWriteTimeout = 5 * time.Second

var errUserMismatch = errors.New("user id does not match token")

// Collab is the collaboration service as seen by a connection.
type Collab interface {
	Hub() *collab.Hub
	Join(ctx context.Context, fileID, userID, connID string) error
	Leave(ctx context.Context, fileID, userID string) error
	SubmitOperation(ctx context.Context, fileID, userID string, op collab.Operation) (int64, error)
	CursorMove(ctx context.Context, fileID, userID string, c collab.Cursor) error
	Disconnect(ctx context.Context, connID string) error
}

type Server struct {
	collab       Collab
	secret       []byte
	log          logging.Logger
	writeTimeout time.Duration
	accept       *websocket.AcceptOptions
}

func NewServer(c Collab, secretKey string, log logging.Logger) *Server {
	return &Server{
		collab:       c,
		secret:       []byte(secretKey),
		log:          log.With("module", "ws"),
		writeTimeout: defaultWriteTimeout,
	}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sessionRequest struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}

type operationRequest struct {
	FileID    string          `json:"fileId"`
	UserID    string          `json:"userId"`
	Operation json.RawMessage `json:"operation"`
}

type cursorRequest struct {
	FileID string        `json:"fileId"`
	UserID string        `json:"userId"`
	Cursor collab.Cursor `json:"cursor"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserIDFromToken(auth.TokenFromRequest(r), s.secret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	hub := s.collab.Hub()
	connID := uuid.NewString()

	var (
		mu     sync.Mutex
		c      *websocket.Conn
		closed bool
	)
	sub := hub.Register(connID, func() {
		mu.Lock()
		defer mu.Unlock()
		closed = true
		if c != nil {
			c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		}
	})
	defer hub.Unregister(connID)

	conn, err := websocket.Accept(w, r, s.accept)
	if err != nil {
		s.log.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	mu.Lock()
	if closed {
		mu.Unlock()
		conn.CloseNow()
		return
	}
	c = conn
	mu.Unlock()
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.log.Info(ctx, "connection opened", "conn_id", connID, "user_id", userID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		s.writeLoop(ctx, c, sub)
	}()

	s.readLoop(ctx, c, connID, userID)
	cancel()
	<-done

	if err := s.collab.Disconnect(context.WithoutCancel(ctx), connID); err != nil {
		s.log.Error(ctx, "disconnect cleanup failed", "conn_id", connID, "error", err)
	}
	s.log.Info(ctx, "connection closed", "conn_id", connID, "user_id", userID)
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return wsjson.Write(ctx, c, v)
}

func (s *Server) writeLoop(ctx context.Context, c *websocket.Conn, sub *collab.Subscriber) {
	for {
		select {
		case ev := <-sub.Messages():
			if err := writeTimeout(ctx, s.writeTimeout, c, ev); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, connID, userID string) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.log.Debug(ctx, "read failed", "conn_id", connID, "error", err)
				}
			}
			return
		}
		s.dispatch(ctx, connID, userID, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, connID, userID string, msg inbound) {
	var err error
	switch msg.Type {
	case collab.EventJoinSession:
		var req sessionRequest
		if err = decode(msg.Data, &req, userID, &req.UserID); err == nil {
			err = s.collab.Join(ctx, req.FileID, userID, connID)
		}

	case collab.EventLeaveSession:
		var req sessionRequest
		if err = decode(msg.Data, &req, userID, &req.UserID); err == nil {
			err = s.collab.Leave(ctx, req.FileID, userID)
		}

	case collab.EventFileOperation:
		var req operationRequest
		if err = decode(msg.Data, &req, userID, &req.UserID); err == nil {
			var op collab.Operation
			if op, err = collab.ParseOperation(req.Operation); err == nil {
				_, err = s.collab.SubmitOperation(ctx, req.FileID, userID, op)
			}
		}

	case collab.EventCursorMove:
		var req cursorRequest
		if err = decode(msg.Data, &req, userID, &req.UserID); err == nil {
			err = s.collab.CursorMove(ctx, req.FileID, userID, req.Cursor)
		}

	default:
		err = fmt.Errorf("%w: unknown event %q", common.ErrInvalidArgument, msg.Type)
	}

	if err == nil {
		return
	}
	if errors.Is(err, common.ErrSessionNotFound) {
		s.log.Debug(ctx, "event for inactive session dropped", "conn_id", connID, "type", msg.Type)
		return
	}
	s.collab.Hub().Send(connID, collab.Event{Type: collab.EventError, Data: collab.ErrorEvent{Message: message(err)}})
}

// decode unmarshals data into v and checks that the payload's user id, when
// present, is the authenticated one.
func decode(data json.RawMessage, v any, userID string, claimed *string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidArgument, err)
	}
	if *claimed != "" && *claimed != userID {
		return errUserMismatch
	}
	return nil
}

func message(err error) string {
	switch {
	case errors.Is(err, common.ErrFileNotFound):
		return "File not found"
	case errors.Is(err, common.ErrAccessDenied):
		return "Access denied"
	case errors.Is(err, common.ErrInvalidOperation), errors.Is(err, common.ErrInvalidArgument), errors.Is(err, errUserMismatch):
		return err.Error()
	default:
		return "internal error"
	}
}
