// Package session owns the scraping-session progress record.
//
// Valid status graph:
//
//	PENDING ──► RUNNING ──► COMPLETED
//	   │           │
//	   └───────────┴──────► FAILED
//
// COMPLETED and FAILED are terminal states.
package session

import "fmt"

// Status values as stored in the session document.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
	// COMPLETED and FAILED are terminal: no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for COMPLETED and FAILED.
func IsTerminal(s Status) bool { return s == StatusCompleted || s == StatusFailed }

// allowedFrom returns every status that may move to `to`.
func allowedFrom(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed} {
		if IsTransitionAllowed(from, to) {
			out = append(out, from)
		}
	}
	return out
}
