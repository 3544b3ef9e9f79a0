package service

import (
	"sort"
	"sync"
)

// Presence maps users to their live connections in this process.
// A user is online while at least one connection is registered.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string][]string
	byConn map[string]string
}

func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string][]string),
		byConn: make(map[string]string),
	}
}

// OnConnect registers connID for userID and reports whether it is the user's
// first live connection. Registering a known connection is a no-op.
func (p *Presence) OnConnect(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byConn[connID]; ok {
		return false
	}
	p.byConn[connID] = userID
	p.byUser[userID] = append(p.byUser[userID], connID)
	return len(p.byUser[userID]) == 1
}

// OnDisconnect drops connID and reports its owner and whether the owner has
// no connections left.
func (p *Presence) OnDisconnect(connID string) (userID string, offline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)

	conns := p.byUser[userID]
	for i, c := range conns {
		if c == connID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(p.byUser, userID)
		return userID, true
	}
	p.byUser[userID] = conns
	return userID, false
}

// OneLiveConnection returns the oldest connection still open for userID.
func (p *Presence) OneLiveConnection(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.byUser[userID]
	if len(conns) == 0 {
		return "", false
	}
	return conns[0], true
}

func (p *Presence) Connections(userID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.byUser[userID]
	out := make([]string, len(conns))
	copy(out, conns)
	return out
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

func (p *Presence) OnlineUsers() []string {
	p.mu.RLock()
	users := make([]string, 0, len(p.byUser))
	for u := range p.byUser {
		users = append(users, u)
	}
	p.mu.RUnlock()

	sort.Strings(users)
	return users
}
