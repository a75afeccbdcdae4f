package server

import "time"

const (
	DefaultBaseRange = 50.0 // meters
	writeWait        = 10 * time.Second
)

// Texts carried by outbound error frames.
const (
	ErrorUserNotFound     = "user not found"
	ErrorUserLookupFailed = "failed to load user"
	ErrorBasesUnavailable = "bases are temporarily unavailable"
	ErrorIncomeFailed     = "failed to compute income for base %s"
)
