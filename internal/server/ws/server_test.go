package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/collab"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/access"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "ws-secret"

type memSessions struct {
	sessions.Repository
	mu    sync.Mutex
	snaps map[string]models.SessionSnapshot
}

func (m *memSessions) Load(_ context.Context, fileID string) (*models.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) Save(_ context.Context, s *models.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.FileID] = *s
	return nil
}

type ownerOnly struct {
	access.Checker
}

func (ownerOnly) HasAccess(_ context.Context, fileID, userID string) (bool, error) {
	if fileID == "missing" {
		return false, common.ErrFileNotFound
	}
	return userID != "mallory", nil
}

type repos struct {
	repomanager.RepositoryManager
	sessions *memSessions
}

func (r *repos) Sessions(dbx.DBTX) sessions.Repository { return r.sessions }
func (r *repos) Access(dbx.DBTX) access.Checker        { return ownerOnly{} }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *collab.Service, *memSessions) {
	t.Helper()
	ms := &memSessions{snaps: map[string]models.SessionSnapshot{
		"f1": {FileID: "f1", Content: "ABCDEF"},
	}}
	svc := collab.NewService(nil, &repos{sessions: ms}, collab.NewHub(64), 50, logging.Discard())
	srv := httptest.NewServer(NewServer(svc, secret, logging.Discard()))
	t.Cleanup(srv.Close)
	return srv, svc, ms
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(secret), time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": typ, "data": data}))
}

func recv(t *testing.T, c *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev envelope
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	return ev
}

func TestServer_RejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CollaborationFlow(t *testing.T) {
	srv, svc, ms := newTestServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	send(t, alice, collab.EventJoinSession, map[string]string{"fileId": "f1", "userId": "alice"})
	ev := recv(t, alice)
	require.Equal(t, collab.EventSessionState, ev.Type)
	assert.JSONEq(t, `{"users":["alice"],"content":"ABCDEF","version":0}`, string(ev.Data))

	send(t, bob, collab.EventJoinSession, map[string]string{"fileId": "f1"})
	ev = recv(t, bob)
	require.Equal(t, collab.EventSessionState, ev.Type)
	assert.JSONEq(t, `{"users":["alice","bob"],"content":"ABCDEF","version":0}`, string(ev.Data))

	ev = recv(t, alice)
	assert.Equal(t, collab.EventUserJoined, ev.Type)
	assert.JSONEq(t, `{"userId":"bob"}`, string(ev.Data))

	send(t, alice, collab.EventFileOperation, map[string]any{
		"fileId":    "f1",
		"operation": map[string]any{"type": "insert", "position": 3, "text": "XY"},
	})
	ev = recv(t, bob)
	require.Equal(t, collab.EventOperation, ev.Type)
	assert.JSONEq(t, `{"operation":{"type":"insert","position":3,"text":"XY"},"userId":"alice","version":1}`, string(ev.Data))

	send(t, bob, collab.EventCursorMove, map[string]any{"fileId": "f1", "cursor": map[string]int{"line": 1, "ch": 4}})
	ev = recv(t, alice)
	require.Equal(t, collab.EventCursorUpdate, ev.Type)
	assert.JSONEq(t, `{"userId":"bob","cursor":{"line":1,"ch":4}}`, string(ev.Data))

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, ""))
	ev = recv(t, alice)
	assert.Equal(t, collab.EventUserLeft, ev.Type)
	assert.JSONEq(t, `{"userId":"bob"}`, string(ev.Data))

	send(t, alice, collab.EventLeaveSession, map[string]string{"fileId": "f1"})
	assert.Eventually(t, func() bool { return svc.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	assert.Equal(t, "ABCXYDEF", ms.snaps["f1"].Content)
	assert.Equal(t, int64(1), ms.snaps["f1"].Version)
}

func TestServer_ErrorsGoToSenderOnly(t *testing.T) {
	srv, _, _ := newTestServer(t)
	alice := dial(t, srv, "alice")
	mallory := dial(t, srv, "mallory")

	send(t, alice, collab.EventJoinSession, map[string]string{"fileId": "f1"})
	recv(t, alice)

	tests := []struct {
		name string
		conn *websocket.Conn
		typ  string
		data any
		want string
	}{
		{name: "access denied", conn: mallory, typ: collab.EventJoinSession, data: map[string]string{"fileId": "f1"}, want: "Access denied"},
		{name: "file not found", conn: alice, typ: collab.EventJoinSession, data: map[string]string{"fileId": "missing"}, want: "File not found"},
		{name: "spoofed user", conn: alice, typ: collab.EventJoinSession, data: map[string]string{"fileId": "f1", "userId": "bob"}, want: "user id does not match token"},
		{name: "out of range", conn: alice, typ: collab.EventFileOperation, data: map[string]any{
			"fileId": "f1", "operation": map[string]any{"type": "delete", "position": 4, "length": 10},
		}, want: "invalid operation"},
		{name: "unknown event", conn: alice, typ: "rename", data: map[string]string{}, want: "unknown event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, tt.conn, tt.typ, tt.data)
			ev := recv(t, tt.conn)
			require.Equal(t, collab.EventError, ev.Type)
			var e collab.ErrorEvent
			require.NoError(t, json.Unmarshal(ev.Data, &e))
			assert.Contains(t, e.Message, tt.want)
		})
	}

	// an operation for a session the caller never joined is dropped silently
	send(t, mallory, collab.EventFileOperation, map[string]any{
		"fileId": "nope", "operation": map[string]any{"type": "insert", "position": 0, "text": "x"},
	})
	send(t, mallory, collab.EventJoinSession, map[string]string{"fileId": "missing"})
	ev := recv(t, mallory)
	var e collab.ErrorEvent
	require.NoError(t, json.Unmarshal(ev.Data, &e))
	assert.Equal(t, "File not found", e.Message)
}
