// Package notify decides when a base owner is told that someone is nearby.
package notify

import (
	"fmt"

	"basewar/server/internal/registry"
)

// Candidate is an active base together with the users currently in range.
type Candidate struct {
	BaseID   string
	BaseName string
	OwnerID  string
	Visitors []*registry.ConnectedUser
}

// Notification is addressed to the owner of BaseID and names the visitor
// that triggered it.
type Notification struct {
	OwnerID   string
	BaseID    string
	BaseName  string
	VisitorID string
	Message   string
}

// Message is the text delivered to an owner.
func Message(baseName string) string {
	return fmt.Sprintf("Someone is near your base %s", baseName)
}

// Dispatch returns one notification per visitor that is not the owner and has
// never triggered one before, and marks those visitors as notified. The flag
// is per connection, not per base: a visitor triggers at most one
// notification for the whole session.
func Dispatch(candidates []Candidate) []Notification {
	var out []Notification
	for _, c := range candidates {
		for _, visitor := range c.Visitors {
			if visitor == nil || visitor.OwnerNotified || visitor.UserID == c.OwnerID {
				continue
			}
			out = append(out, Notification{
				OwnerID:   c.OwnerID,
				BaseID:    c.BaseID,
				BaseName:  c.BaseName,
				VisitorID: visitor.UserID,
				Message:   Message(c.BaseName),
			})
			visitor.OwnerNotified = true
		}
	}
	return out
}
