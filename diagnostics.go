package server

import (
	"sort"
	"time"
)

// Snapshot is the hub state exposed on the diagnostics endpoint.
type Snapshot struct {
	Tick        uint64               `json:"tick"`
	Sessions    []SessionSnapshot    `json:"sessions"`
	Users       []UserSnapshot       `json:"users"`
	ActiveBases []ActiveBaseSnapshot `json:"activeBases"`
	// ActiveBasesStale is true when the last tick could not list bases.
	ActiveBasesStale bool `json:"activeBasesStale"`
}

type SessionSnapshot struct {
	Handle    string `json:"handle"`
	OpenedAt  int64  `json:"openedAt"`
	TrackedAs string `json:"trackedAs,omitempty"`
}

type UserSnapshot struct {
	Handle        string     `json:"handle"`
	UserID        string     `json:"userId"`
	Money         float64    `json:"money"`
	Location      [2]float64 `json:"location"`
	OwnerNotified bool       `json:"ownerNotified"`
}

type ActiveBaseSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OwnerID     string   `json:"ownerId"`
	Investments int      `json:"investments"`
	Income      float64  `json:"income"`
	Users       []string `json:"users"`
}

// Snapshot copies the current sessions, tracked users and active bases.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		Tick:             h.lastTick,
		ActiveBasesStale: h.stale,
		Sessions:         make([]SessionSnapshot, 0, len(h.sessions)),
		Users:            make([]UserSnapshot, 0, h.users.Len()),
		ActiveBases:      make([]ActiveBaseSnapshot, 0, len(h.active)),
	}
	for handle, sess := range h.sessions {
		entry := SessionSnapshot{Handle: handle.String(), OpenedAt: sess.opened.UnixMilli()}
		if user, ok := h.users.Get(handle); ok {
			entry.TrackedAs = user.UserID
		}
		snap.Sessions = append(snap.Sessions, entry)
	}
	for _, user := range h.users.All() {
		snap.Users = append(snap.Users, UserSnapshot{
			Handle:        user.Handle.String(),
			UserID:        user.UserID,
			Money:         user.Money,
			Location:      [2]float64{user.Location.Lon, user.Location.Lat},
			OwnerNotified: user.OwnerNotified,
		})
	}
	for _, ab := range sortedActive(h.active) {
		users := make([]string, 0, len(ab.handles))
		for _, handle := range ab.handles {
			if user, ok := h.users.Get(handle); ok {
				users = append(users, user.UserID)
			}
		}
		snap.ActiveBases = append(snap.ActiveBases, ActiveBaseSnapshot{
			ID:          ab.base.ID,
			Name:        ab.base.Name,
			OwnerID:     ab.base.OwnerID,
			Investments: ab.investments,
			Income:      ab.income,
			Users:       users,
		})
	}
	sort.Slice(snap.Sessions, func(i, j int) bool { return snap.Sessions[i].Handle < snap.Sessions[j].Handle })
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Handle < snap.Users[j].Handle })
	return snap
}

// Debug dump kinds accepted by DebugDump.
const (
	DumpClients = "clients"
	DumpUsers   = "users"
	DumpBases   = "bases"
)

// DebugDump writes one part of the hub state to the operator log. It reports
// false for an unknown kind.
func (h *Hub) DebugDump(kind string) bool {
	snap := h.Snapshot()
	switch kind {
	case DumpClients:
		h.logger.Printf("%d connected clients", len(snap.Sessions))
		for _, s := range snap.Sessions {
			h.logger.Printf("  client %s opened=%s user=%q", s.Handle, time.UnixMilli(s.OpenedAt).Format(time.RFC3339), s.TrackedAs)
		}
	case DumpUsers:
		h.logger.Printf("%d tracked users", len(snap.Users))
		for _, u := range snap.Users {
			h.logger.Printf("  user %s handle=%s money=%.2f location=%v notified=%t", u.UserID, u.Handle, u.Money, u.Location, u.OwnerNotified)
		}
	case DumpBases:
		h.logger.Printf("%d active bases at tick %d", len(snap.ActiveBases), snap.Tick)
		for _, b := range snap.ActiveBases {
			h.logger.Printf("  base %s (%s) owner=%s investments=%d income=%.2f users=%v", b.ID, b.Name, b.OwnerID, b.Investments, b.Income, b.Users)
		}
	default:
		return false
	}
	return true
}
