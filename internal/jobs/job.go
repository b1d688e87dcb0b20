package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/imrishuroy/go-collection-sync/internal/ingest"
)

// Job is what the worker receives for one sync session.
type Job struct {
	SessionID   string
	UserID      string
	Payload     ingest.Payload
	SubmittedAt time.Time
}

type wireJob struct {
	SessionID   string          `json:"syncSessionId"`
	UserID      string          `json:"userId"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// Encode returns the queue message body of j.
func Encode(j Job) ([]byte, error) {
	payload, err := ingest.MarshalPayload(j.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireJob{
		SessionID:   j.SessionID,
		UserID:      j.UserID,
		SubmittedAt: j.SubmittedAt,
		Payload:     payload,
	})
}

// Decode parses a queue message body written by Encode.
func Decode(body []byte) (Job, error) {
	var w wireJob
	if err := json.Unmarshal(body, &w); err != nil {
		return Job{}, fmt.Errorf("can't decode job: %w", err)
	}
	if w.SessionID == "" {
		return Job{}, fmt.Errorf("can't decode job: missing syncSessionId")
	}
	p, err := ingest.UnmarshalPayload(w.Payload)
	if err != nil {
		return Job{}, err
	}
	return Job{
		SessionID:   w.SessionID,
		UserID:      w.UserID,
		Payload:     p,
		SubmittedAt: w.SubmittedAt,
	}, nil
}
