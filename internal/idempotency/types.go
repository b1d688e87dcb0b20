package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. One record
// guards one sync submission of one user.
type Record struct {
	Key            string    `dynamodbav:"idempotency_key"` // PK, "{userId}:{Idempotency-Key header}"
	Status         string    `dynamodbav:"status"`
	SessionID      string    `dynamodbav:"session_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // submission receipt as json
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// ScopedKey binds a client supplied key to the user who sent it.
func ScopedKey(userID, key string) string {
	return userID + ":" + key
}
