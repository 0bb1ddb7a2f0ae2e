package collab

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type participant struct {
	userID string
	connID string
	cursor Cursor
}

// session is the live state of one file's collaboration. All fields are
// guarded by mu.
type session struct {
	mu      sync.Mutex
	fileID  string
	content string
	version int64
	flushed int64
	buffer  []Operation
	members map[string]*participant

	loaded bool
	closed bool
}

func (s *session) users() []string {
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *session) dirty() bool {
	return s.version > s.flushed
}

// broadcast enqueues ev for every member except the one with userID skip.
func (s *session) broadcast(hub *Hub, skip string, ev Event) {
	for id, p := range s.members {
		if id == skip {
			continue
		}
		hub.Send(p.connID, ev)
	}
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// table holds active sessions keyed by file id, sharded so that unrelated
// files never contend on the same lock. Lock order is session before shard.
type table struct {
	shards [shardCount]shard
}

func newTable() *table {
	t := &table{}
	for i := range t.shards {
		t.shards[i].sessions = make(map[string]*session)
	}
	return t
}

func (t *table) shard(fileID string) *shard {
	return &t.shards[xxhash.Sum64String(fileID)%shardCount]
}

func (t *table) get(fileID string) (*session, bool) {
	sh := t.shard(fileID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[fileID]
	return s, ok
}

func (t *table) getOrCreate(fileID string) *session {
	sh := t.shard(fileID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[fileID]
	if !ok {
		s = &session{fileID: fileID, members: make(map[string]*participant)}
		sh.sessions[fileID] = s
	}
	return s
}

// remove drops s if it is still the entry for its file.
func (t *table) remove(s *session) {
	sh := t.shard(s.fileID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.sessions[s.fileID] == s {
		delete(sh.sessions, s.fileID)
	}
}

func (t *table) all() []*session {
	var out []*session
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.Unlock()
	}
	return out
}

func (t *table) len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}
