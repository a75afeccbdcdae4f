// Package registry tracks the users behind live connections and their
// session-local state. A Registry is not safe for concurrent use; the hub
// serialises every access behind its own mutex.
package registry

import (
	"github.com/google/uuid"

	"basewar/server/internal/geo"
)

// ConnectedUser is the cached state of one tracked connection.
type ConnectedUser struct {
	Handle   uuid.UUID
	UserID   string
	Money    float64
	Location geo.Point
	// OwnerNotified is set once this user has triggered a proximity
	// notification. It is never cleared for the lifetime of the connection.
	OwnerNotified bool
}

type Registry struct {
	byHandle map[uuid.UUID]*ConnectedUser
	byUser   map[string][]uuid.UUID
}

func New() *Registry {
	return &Registry{
		byHandle: make(map[uuid.UUID]*ConnectedUser),
		byUser:   make(map[string][]uuid.UUID),
	}
}

// Get returns the entry for handle.
func (r *Registry) Get(handle uuid.UUID) (*ConnectedUser, bool) {
	user, ok := r.byHandle[handle]
	return user, ok
}

// UpdateLocation replaces the location of an existing entry and reports
// whether one existed.
func (r *Registry) UpdateLocation(handle uuid.UUID, location geo.Point) bool {
	user, ok := r.byHandle[handle]
	if !ok {
		return false
	}
	user.Location = location
	return true
}

// Insert creates an entry seeded with money. If handle is already tracked only
// its location is replaced, so an entry is never duplicated and its user id
// never changes.
func (r *Registry) Insert(handle uuid.UUID, userID string, money float64, location geo.Point) *ConnectedUser {
	if existing, ok := r.byHandle[handle]; ok {
		existing.Location = location
		return existing
	}
	user := &ConnectedUser{
		Handle:   handle,
		UserID:   userID,
		Money:    money,
		Location: location,
	}
	r.byHandle[handle] = user
	r.byUser[userID] = append(r.byUser[userID], handle)
	return user
}

// Remove deletes and returns the entry for handle.
func (r *Registry) Remove(handle uuid.UUID) (*ConnectedUser, bool) {
	user, ok := r.byHandle[handle]
	if !ok {
		return nil, false
	}
	delete(r.byHandle, handle)

	handles := r.byUser[user.UserID]
	for i, h := range handles {
		if h == handle {
			handles = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		delete(r.byUser, user.UserID)
	} else {
		r.byUser[user.UserID] = handles
	}
	return user, true
}

// FindByUserID returns the most recently tracked connection of userID.
func (r *Registry) FindByUserID(userID string) (*ConnectedUser, bool) {
	handles := r.byUser[userID]
	if len(handles) == 0 {
		return nil, false
	}
	return r.byHandle[handles[len(handles)-1]], true
}

// All returns every tracked entry in no particular order.
func (r *Registry) All() []*ConnectedUser {
	users := make([]*ConnectedUser, 0, len(r.byHandle))
	for _, user := range r.byHandle {
		users = append(users, user)
	}
	return users
}

func (r *Registry) Len() int {
	return len(r.byHandle)
}

// Credit adds amount to the cached balance of handle. Negative amounts are
// ignored so balances never decrease while connected.
func (r *Registry) Credit(handle uuid.UUID, amount float64) (float64, bool) {
	user, ok := r.byHandle[handle]
	if !ok {
		return 0, false
	}
	if amount > 0 {
		user.Money += amount
	}
	return user.Money, true
}
