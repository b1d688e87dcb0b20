package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/counter"
)

// FailureMode decides the outcome of a check when the counter store is unreachable.
type FailureMode int

const (
	// FailOpen admits the request, preserving availability.
	FailOpen FailureMode = iota + 1
	// FailClosed rejects the request, preserving the quota guarantee.
	FailClosed
)

// ParseFailureMode parses "open" or "closed".
func ParseFailureMode(s string) (FailureMode, error) {
	switch s {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return 0, fmt.Errorf("unknown rate limit failure mode %q", s)
	}
}

func (m FailureMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Decision is the outcome of a check.
type Decision struct {
	Admit bool
	// Skipped is set when the policy does not apply (session strategy without a session).
	Skipped bool
	// Degraded is set when the request was admitted because the counter store failed open.
	Degraded  bool
	Policy    string
	Limit     int64
	Remaining int64
	Reset     time.Duration
}

// Limiter applies fixed window quotas.
type Limiter struct {
	policies *Registry
	store    counter.Store
	mode     FailureMode
	logger   *zerolog.Logger
}

// NewLimiter returns a Limiter. mode must be FailOpen or FailClosed.
func NewLimiter(policies *Registry, store counter.Store, mode FailureMode, logger *zerolog.Logger) (*Limiter, error) {
	if mode != FailOpen && mode != FailClosed {
		return nil, fmt.Errorf("rate limiter failure mode must be set explicitly, got %d", mode)
	}
	return &Limiter{
		policies: policies,
		store:    store,
		mode:     mode,
		logger:   logger,
	}, nil
}

// Check counts the request against the policy of operation and decides whether it is admitted.
func (l *Limiter) Check(ctx context.Context, operation string, info RequestInfo) (Decision, error) {
	policy, ok := l.policies.Lookup(operation)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, operation)
	}

	d := Decision{
		Policy: policy.Name,
		Limit:  policy.MaxRequests,
		Reset:  policy.Window,
	}

	identity, ok := Identify(policy.Strategy, info)
	if !ok {
		// no session: the auth layer decides
		d.Admit = true
		d.Skipped = true
		d.Remaining = policy.MaxRequests
		return d, nil
	}

	key := policy.KeyPrefix + ":" + identity
	res, err := l.store.IncrWithExpire(ctx, key, policy.Window)
	if err != nil {
		if l.mode == FailOpen {
			l.logger.Warn().
				Err(err).
				Str("operation", operation).
				Msg("counter store unavailable, admitting request")
			d.Admit = true
			d.Degraded = true
			d.Remaining = policy.MaxRequests
			return d, nil
		}
		return d, fmt.Errorf("%w: %v", apperror.ErrCounterUnavailable, err)
	}

	if res.TTL > 0 {
		d.Reset = res.TTL
	}
	d.Remaining = max(0, policy.MaxRequests-res.Count)
	d.Admit = res.Count <= policy.MaxRequests

	return d, nil
}
