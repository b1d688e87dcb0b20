package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/jobs"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
	"github.com/imrishuroy/go-collection-sync/internal/rabbitmq"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

// errMalformedJob marks messages no redelivery can fix.
var errMalformedJob = errors.New("malformed job")

type sessionStore interface {
	Claim(ctx context.Context, sessionID string) error
	TransitionItem(ctx context.Context, sessionID, externalID string, to syncsession.ItemStatus, reason string) (syncsession.Status, error)
	Get(ctx context.Context, sessionID string) (syncsession.View, error)
}

type scraper interface {
	Scrape(ctx context.Context, externalID string) error
}

type catalogCache interface {
	Known(ctx context.Context, ids []string) (map[string]bool, error)
}

type statusPublisher interface {
	Publish(ctx context.Context, jobID string, ev jobstatus.Event)
}

// Processor runs sync jobs: it claims the session, resolves every item and
// publishes progress on the job status stream.
type Processor struct {
	sessions    sessionStore
	scraper     scraper
	cache       catalogCache
	status      statusPublisher
	metrics     metrics.Recorder
	logger      *zerolog.Logger
	concurrency int
	nowFunc     func() time.Time
}

// NewProcessor creates a Processor scraping at most concurrency items at a time.
func NewProcessor(
	sessions sessionStore,
	scraper scraper,
	cache catalogCache,
	status statusPublisher,
	rec metrics.Recorder,
	logger *zerolog.Logger,
	concurrency int,
) *Processor {
	return &Processor{
		sessions:    sessions,
		scraper:     scraper,
		cache:       cache,
		status:      status,
		metrics:     rec,
		logger:      logger,
		concurrency: concurrency,
		nowFunc:     time.Now,
	}
}

// HandleSQS processes a batch and reports failed messages individually, so
// one bad job doesn't redeliver the whole batch.
func (p *Processor) HandleSQS(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.Process(ctx, rec.MessageId, []byte(rec.Body)); err != nil {
			p.logger.Error().
				Err(err).
				Str("jobId", rec.MessageId).
				Msg("job failed, leaving it for redelivery")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// HandleRabbitMQ processes one delivery. Malformed jobs are rejected without requeue.
func (p *Processor) HandleRabbitMQ(ctx context.Context, msg rabbitmq.Message) error {
	err := p.Process(ctx, msg.ID, msg.Body)
	if errors.Is(err, errMalformedJob) {
		return rabbitmq.Permanent(err)
	}
	return err
}

// Process runs the job with id jobID. A redelivered job whose session was
// already claimed resumes the items still pending, or is acknowledged
// without doing anything when the session already finished.
func (p *Processor) Process(ctx context.Context, jobID string, body []byte) error {
	job, err := jobs.Decode(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedJob, err)
	}

	logger := p.logger.With().
		Str("jobId", jobID).
		Str("syncSessionId", job.SessionID).
		Str("type", string(job.Payload.Type())).
		Logger()

	var resumed *syncsession.View
	err = p.sessions.Claim(ctx, job.SessionID)
	switch {
	case errors.Is(err, syncsession.ErrAlreadyClaimed):
		view, err := p.sessions.Get(ctx, job.SessionID)
		if err != nil {
			return fmt.Errorf("can't read claimed session %s: %w", job.SessionID, err)
		}
		if view.Status.Terminal() {
			logger.Info().Msg("duplicate delivery for finished session")
			return nil
		}
		logger.Info().Int("pending", view.Progress().Pending).Msg("resuming claimed session")
		resumed = &view
	case err != nil:
		// a missing session may still be on its way; redeliver
		return fmt.Errorf("can't claim session %s: %w", job.SessionID, err)
	default:
		logger.Info().Msg("session claimed")
	}

	toInsert, toScrape := p.partition(ctx, &logger, job.Payload)
	total := len(toInsert) + len(toScrape)
	progress := syncsession.Progress{Total: total, Pending: total}
	if resumed != nil {
		final := finalItems(resumed.Items)
		toInsert = lo.Reject(toInsert, func(id string, _ int) bool { return final[id] })
		toScrape = lo.Reject(toScrape, func(id string, _ int) bool { return final[id] })
		progress = resumed.Progress()
	}

	tracker := newTracker(jobID, progress, p)
	tracker.publish(ctx, syncsession.StatusProcessing)

	for _, id := range toInsert {
		p.resolve(ctx, &logger, tracker, job.SessionID, id, nil)
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, id := range toScrape {
		g.Go(func() error {
			p.resolve(ctx, &logger, tracker, job.SessionID, id, p.scraper.Scrape(ctx, id))
			return nil
		})
	}
	_ = g.Wait()

	return p.finish(ctx, &logger, jobID, job.SessionID)
}

func finalItems(items []syncsession.Item) map[string]bool {
	final := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Status != syncsession.ItemPending {
			final[it.ExternalID] = true
		}
	}
	return final
}

// partition splits the payload into items already in the catalog cache and
// items to scrape. Manual syncs come split by the api; csv rows are looked up here.
func (p *Processor) partition(ctx context.Context, logger *zerolog.Logger, payload ingest.Payload) (toInsert, toScrape []string) {
	switch pl := payload.(type) {
	case ingest.OrderPayload:
		return pl.ItemsToInsert, pl.ItemsToScrape
	case ingest.CollectionPayload:
		return pl.ItemsToInsert, pl.ItemsToScrape
	}

	ids := payload.ExternalIDs()
	known, err := p.cache.Known(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("catalog cache lookup failed, scraping every item")
		return nil, ids
	}
	for _, id := range ids {
		if known[id] {
			toInsert = append(toInsert, id)
		} else {
			toScrape = append(toScrape, id)
		}
	}
	return toInsert, toScrape
}

// resolve records the outcome of one item. scrapeErr fails the item only.
func (p *Processor) resolve(ctx context.Context, logger *zerolog.Logger, t *tracker, sessionID, externalID string, scrapeErr error) {
	to, reason := syncsession.ItemScraped, ""
	if scrapeErr != nil {
		to, reason = syncsession.ItemFailed, scrapeErr.Error()
		logger.Warn().Err(scrapeErr).Str("externalId", externalID).Msg("item failed")
	}

	status, err := p.sessions.TransitionItem(ctx, sessionID, externalID, to, reason)
	switch {
	case errors.Is(err, syncsession.ErrItemFinal):
		// resolved by a concurrent delivery; take its outcome from the store
		logger.Debug().Str("externalId", externalID).Msg("item already resolved")
		if view, err := p.sessions.Get(ctx, sessionID); err == nil {
			t.reset(view.Progress())
		}
		return
	case err != nil:
		// the item stays pending and the job is redelivered
		logger.Error().Err(err).Str("externalId", externalID).Msg("can't record item outcome")
		return
	}
	t.record(ctx, to, status)
}

func (p *Processor) finish(ctx context.Context, logger *zerolog.Logger, jobID, sessionID string) error {
	view, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("can't read session %s: %w", sessionID, err)
	}

	progress := view.Progress()
	if !view.Status.Terminal() {
		p.status.Publish(ctx, jobID, jobstatus.Running(string(view.Status), &progress, p.nowFunc().UTC()))
		return fmt.Errorf("session %s: %d items still pending: %w", sessionID, progress.Pending, apperror.ErrConflict)
	}

	p.status.Publish(ctx, jobID, jobstatus.ForSession(view.Status, progress, p.nowFunc().UTC()))
	p.metrics.Count(ctx, metrics.SessionsFinished, 1, map[string]string{"status": string(view.Status)})
	if progress.Failed > 0 {
		p.metrics.Count(ctx, metrics.ItemsFailed, float64(progress.Failed), nil)
	}

	logger.Info().
		Str("status", string(view.Status)).
		Int("scraped", progress.Scraped).
		Int("failed", progress.Failed).
		Msg("session finished")
	return nil
}

// tracker keeps the running progress of one job between store round trips.
type tracker struct {
	mu       sync.Mutex
	jobID    string
	progress syncsession.Progress
	p        *Processor
}

func newTracker(jobID string, progress syncsession.Progress, p *Processor) *tracker {
	return &tracker{
		jobID:    jobID,
		progress: progress,
		p:        p,
	}
}

func (t *tracker) reset(progress syncsession.Progress) {
	t.mu.Lock()
	t.progress = progress
	t.mu.Unlock()
}

func (t *tracker) record(ctx context.Context, outcome syncsession.ItemStatus, status syncsession.Status) {
	t.mu.Lock()
	t.progress.Pending--
	if outcome == syncsession.ItemScraped {
		t.progress.Scraped++
	} else {
		t.progress.Failed++
	}
	t.mu.Unlock()

	// the terminal snapshot is published by finish from the stored items
	if !status.Terminal() {
		t.publish(ctx, status)
	}
}

func (t *tracker) publish(ctx context.Context, status syncsession.Status) {
	t.mu.Lock()
	progress := t.progress
	t.mu.Unlock()
	t.p.status.Publish(ctx, t.jobID, jobstatus.Running(string(status), &progress, t.p.nowFunc().UTC()))
}
