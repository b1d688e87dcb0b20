package jobstatus

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// publishTimeout bounds how long a worker waits on the status store.
const publishTimeout = 2 * time.Second

type putter interface {
	Put(ctx context.Context, jobID string, ev Event) error
}

// Publisher is the worker side of the status store. Publishing never fails
// the caller: errors are logged and the job goes on.
type Publisher struct {
	store  putter
	logger *zerolog.Logger
}

// NewPublisher returns a Publisher writing to store.
func NewPublisher(store putter, logger *zerolog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Publish stores ev for jobID.
func (p *Publisher) Publish(ctx context.Context, jobID string, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.store.Put(ctx, jobID, ev); err != nil {
		p.logger.Warn().
			Err(err).
			Str("jobId", jobID).
			Str("status", ev.Status).
			Msg("can't publish job status")
	}
}
