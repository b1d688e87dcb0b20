// Package jobstatus keeps the latest status snapshot of every job in Redis and
// fans updates out to stream subscribers over Redis pub/sub.
package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
)

const (
	snapshotPrefix = "jobstatus:snapshot:"
	channelPrefix  = "jobstatus:"
)

// Store persists snapshots with a bounded retention.
type Store struct {
	client    redis.UniversalClient
	retention time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a Store. Snapshots expire retention after their last update.
func NewStore(client redis.UniversalClient, retention time.Duration) *Store {
	return &Store{client: client, retention: retention, nowFunc: time.Now}
}

func snapshotKey(jobID string) string { return snapshotPrefix + jobID }

func channel(jobID string) string { return channelPrefix + jobID }

// Put replaces the snapshot of jobID and publishes it to subscribers.
func (s *Store) Put(ctx context.Context, jobID string, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.nowFunc().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(jobID), b, s.retention)
		pipe.Publish(ctx, channel(jobID), b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store job status %s: %w", jobID, err)
	}
	return nil
}

// Get returns the current snapshot, apperror.ErrNotFound once it expired or if it never existed.
func (s *Store) Get(ctx context.Context, jobID string) (Event, error) {
	b, err := s.client.Get(ctx, snapshotKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Event{}, fmt.Errorf("job %s: %w", jobID, apperror.ErrNotFound)
	}
	if err != nil {
		return Event{}, fmt.Errorf("get job status %s: %w", jobID, err)
	}
	return decode(b)
}

func decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("decode job status: %w", err)
	}
	return ev, nil
}
