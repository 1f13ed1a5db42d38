package server

import (
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/caserelay/pkg/model"
)

// Registry maps live connections to their registered identity and role.
// It is the single source of truth for whether an identity is reachable.
type Registry struct {
	mu         sync.RWMutex
	byConn     map[ConnID]*model.Session
	byIdentity map[string]ConnID
	roles      *roleIndex
	now        func() time.Time
}

// Superseded describes what a registration displaced.
type Superseded struct {
	// PrevIdentity is set when the same connection was registered under a
	// different identity before; that identity is no longer live.
	PrevIdentity string
	PrevRole     model.Role

	// Orphaned is another connection that held the identity until now. It
	// stays open but no longer receives routed traffic, and its lifecycle
	// drops back to connected the next time it is observed.
	Orphaned ConnID
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		byConn:     make(map[ConnID]*model.Session),
		byIdentity: make(map[string]ConnID),
		roles:      newRoleIndex(),
		now:        now,
	}
}

// Register binds conn to identity and role. The last registration wins, both
// for a connection re-registering and for an identity claimed by a new connection.
func (r *Registry) Register(conn ConnID, identity string, role model.Role) (model.Session, Superseded) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sup Superseded
	if old, ok := r.byConn[conn]; ok {
		if r.byIdentity[old.Identity] == conn {
			delete(r.byIdentity, old.Identity)
		}
		if old.Identity != identity {
			sup.PrevIdentity = old.Identity
			sup.PrevRole = old.Role
		}
		delete(r.byConn, conn)
		r.roles.leave(conn)
	}
	if other, ok := r.byIdentity[identity]; ok && other != conn {
		delete(r.byConn, other)
		r.roles.leave(other)
		sup.Orphaned = other
	}

	sess := &model.Session{
		ConnID:       string(conn),
		Identity:     identity,
		Role:         role,
		RegisteredAt: r.now(),
	}
	r.byConn[conn] = sess
	r.byIdentity[identity] = conn
	r.roles.join(conn, role)
	return *sess, sup
}

// LookupByIdentity returns the connection currently holding identity.
func (r *Registry) LookupByIdentity(identity string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdentity[identity]
	return id, ok
}

// LookupByRole returns every live connection registered under role.
func (r *Registry) LookupByRole(role model.Role) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles.connsOf(role)
}

// Session returns the session bound to conn.
func (r *Registry) Session(conn ConnID) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[conn]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// Remove deletes the session bound to conn. Removing an absent session is a no-op.
func (r *Registry) Remove(conn ConnID) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[conn]
	if !ok {
		return model.Session{}, false
	}
	delete(r.byConn, conn)
	if r.byIdentity[s.Identity] == conn {
		delete(r.byIdentity, s.Identity)
	}
	r.roles.leave(conn)
	return *s, true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// CountByRole returns the number of live sessions holding role.
func (r *Registry) CountByRole(role model.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles.count(role)
}

// All returns a snapshot of every live session, ordered by identity.
func (r *Registry) All() []model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.Session, 0, len(r.byConn))
	for _, s := range r.byConn {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result
}
