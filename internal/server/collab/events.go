package collab

// Event names on the real-time boundary.
const (
	EventJoinSession   = "join-session"
	EventLeaveSession  = "leave-session"
	EventFileOperation = "file-operation"
	EventCursorMove    = "cursor-move"

	EventSessionState = "session-state"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventOperation    = "operation"
	EventCursorUpdate = "cursor-update"
	EventError        = "error"
)

// Event is one outbound message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Cursor is a caret position in the editor.
type Cursor struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

type SessionState struct {
	Users   []string `json:"users"`
	Content string   `json:"content"`
	Version int64    `json:"version"`
}

type UserEvent struct {
	UserID string `json:"userId"`
}

type OperationEvent struct {
	Operation Operation `json:"operation"`
	UserID    string    `json:"userId"`
	Version   int64     `json:"version"`
}

type CursorEvent struct {
	UserID string `json:"userId"`
	Cursor Cursor `json:"cursor"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
