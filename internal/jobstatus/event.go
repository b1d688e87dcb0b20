package jobstatus

import (
	"time"

	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

// TerminalState is how a finished job ended.
type TerminalState string

const (
	TerminalSuccess TerminalState = "success"
	TerminalFailure TerminalState = "failure"
	// TerminalTimeout is only produced by a stream that gave up waiting. The
	// job itself may still be running; clients poll the session afterwards.
	TerminalTimeout TerminalState = "timeout"
)

// Event is one status snapshot of a job. TerminalState is set iff Finished
// and encodes as null otherwise.
type Event struct {
	Status        string                `json:"status"`
	Finished      bool                  `json:"finished"`
	TerminalState *TerminalState        `json:"terminalState"`
	Progress      *syncsession.Progress `json:"progress,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// Running returns a non terminal snapshot.
func Running(status string, progress *syncsession.Progress, at time.Time) Event {
	return Event{Status: status, Progress: progress, CreatedAt: at}
}

// Finished returns a terminal snapshot.
func Finished(status string, state TerminalState, progress *syncsession.Progress, at time.Time) Event {
	return Event{Status: status, Finished: true, TerminalState: &state, Progress: progress, CreatedAt: at}
}

// ForSession maps a session status onto the snapshot the worker publishes.
// partial counts as success: the job ended and the session says which items failed.
func ForSession(status syncsession.Status, progress syncsession.Progress, at time.Time) Event {
	switch status {
	case syncsession.StatusCompleted, syncsession.StatusPartial:
		return Finished(string(status), TerminalSuccess, &progress, at)
	case syncsession.StatusFailed:
		return Finished(string(status), TerminalFailure, &progress, at)
	default:
		return Running(string(status), &progress, at)
	}
}
