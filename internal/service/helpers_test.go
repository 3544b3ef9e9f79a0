package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/repository/memory"
)

type emitted struct {
	room    string
	conn    string
	event   string
	payload any
}

// recordingEmitter captures every emit and answers InRoom from a fixed map.
type recordingEmitter struct {
	mu      sync.Mutex
	events  []emitted
	members map[string]map[string]bool
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{members: make(map[string]map[string]bool)}
}

func (r *recordingEmitter) join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[string]bool)
	}
	r.members[room][connID] = true
}

func (r *recordingEmitter) EmitToRoom(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{room: room, event: event, payload: payload})
}

func (r *recordingEmitter) EmitToConnection(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{conn: connID, event: event, payload: payload})
}

func (r *recordingEmitter) InRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[room][connID]
}

func (r *recordingEmitter) count(room, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.room == room && e.event == event {
			n++
		}
	}
	return n
}

func (r *recordingEmitter) find(room, event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.room == room && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type recordingCache struct {
	mu    sync.Mutex
	added []string
}

func (c *recordingCache) Add(_ context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, msg.ID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	chats    *memory.ChatRepo
	messages *memory.MessageRepo
	cache    *recordingCache
	emitter  *recordingEmitter
	presence *Presence
	deliv    *Deliverer
}

func newFixture() *fixture {
	f := &fixture{
		chats:    memory.NewChatRepo(),
		messages: memory.NewMessageRepo(),
		cache:    &recordingCache{},
		emitter:  newRecordingEmitter(),
		presence: NewPresence(),
	}
	f.deliv = NewDeliverer(f.chats, f.messages, f.cache, f.emitter, f.presence, discardLogger())
	return f
}

func (r *recordingEmitter) findConn(connID, event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.conn == connID && e.event == event {
			out = append(out, e)
		}
	}
	return out
}
