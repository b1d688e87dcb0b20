package jobstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Stream delivers the snapshots of jobID until a finished one arrives.
//
// The subscription is opened before the current snapshot is read so no
// update falls in between. A job that already finished yields exactly one
// event. When maxWait elapses first, a synthetic finished event with
// TerminalTimeout is delivered. Cancelling ctx ends the stream without an
// event; it has no effect on the job. The channel is closed in every case.
func (s *Store) Stream(ctx context.Context, jobID string, maxWait time.Duration) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, channel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe job status %s: %w", jobID, err)
	}

	current, err := s.Get(ctx, jobID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Event, 1)
	if current.Finished {
		_ = sub.Close()
		out <- current
		close(out)
		return out, nil
	}

	logger := zerolog.Ctx(ctx)
	go func() {
		defer close(out)
		defer sub.Close()

		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(current) {
			return
		}
		last := current
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				send(Finished(last.Status, TerminalTimeout, last.Progress, s.nowFunc().UTC()))
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decode([]byte(msg.Payload))
				if err != nil {
					logger.Warn().Err(err).Str("jobId", jobID).Msg("skipping undecodable job status")
					continue
				}
				if !send(ev) || ev.Finished {
					return
				}
				last = ev
			}
		}
	}()
	return out, nil
}
