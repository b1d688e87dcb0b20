package syncsession

import (
	"errors"
	"time"

	"github.com/imrishuroy/go-collection-sync/internal/ingest"
)

// Status is the aggregate state of a session. It is never stored, see Reduce.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// ItemStatus is the state of one catalog reference inside a session.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemScraped ItemStatus = "scraped"
	ItemFailed  ItemStatus = "failed"
)

var (
	// ErrAlreadyClaimed is returned when a worker claims a session another delivery already claimed.
	ErrAlreadyClaimed = errors.New("session already claimed")
	// ErrItemFinal is returned when an item already left pending.
	ErrItemFinal = errors.New("item already in a final state")
	// ErrInvalidTransition is returned for a transition to anything but scraped or failed.
	ErrInvalidTransition = errors.New("invalid item transition")
)

// Session is the item stored in the sessions table.
type Session struct {
	ID        string      `dynamodbav:"session_id" json:"id"` // PK
	UserID    string      `dynamodbav:"user_id" json:"userId"`
	Type      ingest.Type `dynamodbav:"type" json:"type"`
	JobID     string      `dynamodbav:"job_id" json:"jobId"`
	ItemCount int         `dynamodbav:"item_count" json:"itemCount"`
	ClaimedAt *time.Time  `dynamodbav:"claimed_at,omitempty" json:"claimedAt,omitempty"`
	CreatedAt time.Time   `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `dynamodbav:"updated_at" json:"updatedAt"`

	// Status is derived from the items on every load.
	Status Status `dynamodbav:"-" json:"status"`
}

// Item is the item stored in the session items table.
type Item struct {
	SessionID  string     `dynamodbav:"session_id" json:"-"`           // PK
	ExternalID string     `dynamodbav:"external_id" json:"externalId"` // SK
	Status     ItemStatus `dynamodbav:"status" json:"status"`
	Error      string     `dynamodbav:"error,omitempty" json:"error,omitempty"`
	UpdatedAt  time.Time  `dynamodbav:"updated_at" json:"updatedAt"`
}

// View is a session together with its items.
type View struct {
	Session
	Items []Item `json:"items"`
}

// Progress counts items per status.
type Progress struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Scraped int `json:"scraped"`
	Failed  int `json:"failed"`
}
