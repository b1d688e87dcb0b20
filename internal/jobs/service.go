// Package jobs turns normalized payloads into queued jobs and their sync
// sessions.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/idempotency"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

// SessionStore persists sessions and their items.
type SessionStore interface {
	Create(ctx context.Context, sess syncsession.Session, externalIDs []string) (syncsession.Session, error)
}

// StatusStore keeps job status snapshots.
type StatusStore interface {
	Put(ctx context.Context, jobID string, ev jobstatus.Event) error
}

// IdempotencyStore guards submissions carrying an Idempotency-Key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, sessionID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Complete(ctx context.Context, key string, responseBody []byte, responseStatus int) error
	Fail(ctx context.Context, key, note string) error
}

// Request is one admitted and normalized sync batch.
type Request struct {
	UserID         string
	Payload        ingest.Payload
	IdempotencyKey string // optional
	RequestID      string // optional, forwarded to the worker
}

// Receipt is returned to the client right after submission.
type Receipt struct {
	SessionID string             `json:"syncSessionId"`
	JobID     string             `json:"jobId"`
	Finished  bool               `json:"isFinished"`
	Status    syncsession.Status `json:"status"`

	// Replayed is set when the receipt comes from an earlier request with the same idempotency key.
	Replayed bool `json:"-"`
}

// Service submits jobs.
type Service struct {
	queue    Queue
	sessions SessionStore
	status   StatusStore
	idem     IdempotencyStore
	metrics  metrics.Recorder
	logger   *zerolog.Logger
	nowFunc  func() time.Time
	newID    func() string
}

// NewService returns a Service. idem may be nil to disable idempotency keys.
func NewService(
	queue Queue,
	sessions SessionStore,
	status StatusStore,
	idem IdempotencyStore,
	rec metrics.Recorder,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		queue:    queue,
		sessions: sessions,
		status:   status,
		idem:     idem,
		metrics:  rec,
		logger:   logger,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// Submit queues the job first and only then persists the session, so a
// failed submission never leaves a pending session behind.
func (s *Service) Submit(ctx context.Context, req Request) (Receipt, error) {
	sessionID := s.newID()

	var key string
	if req.IdempotencyKey != "" && s.idem != nil {
		key = idempotency.ScopedKey(req.UserID, req.IdempotencyKey)
		created, err := s.idem.Reserve(ctx, key, sessionID)
		if err != nil {
			return Receipt{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !created {
			return s.replay(ctx, key)
		}
	}

	receipt, err := s.submit(ctx, sessionID, req)
	if err != nil {
		if key != "" {
			if ferr := s.idem.Fail(ctx, key, err.Error()); ferr != nil {
				s.logger.Warn().Err(ferr).Str("syncSessionId", sessionID).Msg("can't mark idempotency key failed")
			}
		}
		return Receipt{}, err
	}

	if key != "" {
		body, _ := json.Marshal(receipt)
		if err := s.idem.Complete(ctx, key, body, http.StatusAccepted); err != nil {
			s.logger.Warn().Err(err).Str("syncSessionId", sessionID).Msg("can't complete idempotency key")
		}
	}
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, sessionID string, req Request) (Receipt, error) {
	now := s.nowFunc().UTC()
	body, err := Encode(Job{
		SessionID:   sessionID,
		UserID:      req.UserID,
		Payload:     req.Payload,
		SubmittedAt: now,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode job: %w", err)
	}

	jobID, err := s.queue.Submit(ctx, body, map[string]string{
		AttrSessionID:   sessionID,
		AttrPayloadType: string(req.Payload.Type()),
		AttrRequestID:   req.RequestID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("syncSessionId", sessionID).Msg("can't submit job")
		return Receipt{}, fmt.Errorf("%w: %v", apperror.ErrJobSubmissionFailed, err)
	}

	sess, err := s.sessions.Create(ctx, syncsession.Session{
		ID:     sessionID,
		UserID: req.UserID,
		Type:   req.Payload.Type(),
		JobID:  jobID,
	}, req.Payload.ExternalIDs())
	if err != nil {
		// the queued job finds no session to claim and ends up in the dead letter queue
		s.logger.Error().Err(err).Str("syncSessionId", sessionID).Str("jobId", jobID).Msg("can't persist session of submitted job")
		return Receipt{}, fmt.Errorf("persist session: %w", err)
	}

	progress := syncsession.Progress{Total: sess.ItemCount, Pending: sess.ItemCount}
	if err := s.status.Put(ctx, jobID, jobstatus.Running(string(sess.Status), &progress, now)); err != nil {
		s.logger.Warn().Err(err).Str("jobId", jobID).Msg("can't store initial job status")
	}

	s.metrics.Count(ctx, metrics.SessionsSubmitted, 1, map[string]string{"type": string(sess.Type)})
	s.logger.Info().
		Str("syncSessionId", sessionID).
		Str("jobId", jobID).
		Str("type", string(sess.Type)).
		Int("items", sess.ItemCount).
		Msg("sync job submitted")

	return Receipt{
		SessionID: sessionID,
		JobID:     jobID,
		Finished:  false,
		Status:    sess.Status,
	}, nil
}

func (s *Service) replay(ctx context.Context, key string) (Receipt, error) {
	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		return Receipt{}, fmt.Errorf("get idempotency record: %w", err)
	}
	if rec == nil {
		// expired between Reserve and Get
		return Receipt{}, fmt.Errorf("%w: idempotency key expired, retry", apperror.ErrConflict)
	}

	switch rec.Status {
	case idempotency.StatusDone:
		var r Receipt
		if err := json.Unmarshal([]byte(rec.ResponseBody), &r); err != nil {
			return Receipt{}, fmt.Errorf("decode stored receipt: %w", err)
		}
		r.Replayed = true
		return r, nil
	case idempotency.StatusInProgress:
		return Receipt{}, fmt.Errorf("%w: request with this idempotency key is in progress", apperror.ErrConflict)
	case idempotency.StatusFailed:
		return Receipt{}, fmt.Errorf("%w: previous attempt failed (%s), use a new idempotency key", apperror.ErrConflict, rec.Note)
	default:
		return Receipt{}, errors.New("unknown idempotency status " + rec.Status)
	}
}
