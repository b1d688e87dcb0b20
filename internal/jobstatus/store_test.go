package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

var testTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewStore(client, time.Hour)
	s.nowFunc = func() time.Time { return testTime }
	return s, srv
}

func collect(t *testing.T, ch <-chan Event, within time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("stream not closed after %s, got %d events", within, len(events))
		}
	}
}

func TestUnitPutGetWithRetention(t *testing.T) {
	s, srv := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "job-1", Running("pending", nil, time.Time{})))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.False(t, got.Finished)
	assert.Nil(t, got.TerminalState)
	assert.True(t, got.CreatedAt.Equal(testTime))

	srv.FastForward(time.Hour + time.Second)
	_, err = s.Get(ctx, "job-1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUnitGetUnknownJob(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUnitStreamFinishedJobDeliversOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "job-1", Finished("completed", TerminalSuccess, nil, testTime)))

	ch, err := s.Stream(ctx, "job-1", time.Minute)
	require.NoError(t, err)

	events := collect(t, ch, time.Second)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].TerminalState)
	assert.Equal(t, TerminalSuccess, *events[0].TerminalState)
}

func TestUnitStreamForwardsUntilFinished(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "job-1", Running("pending", nil, testTime)))

	ch, err := s.Stream(ctx, "job-1", time.Minute)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "pending", first.Status)

	require.NoError(t, s.Put(ctx, "job-1", Running("processing", &syncsession.Progress{Total: 2, Pending: 1, Scraped: 1}, testTime)))
	require.NoError(t, s.Put(ctx, "job-1", Finished("partial", TerminalSuccess, &syncsession.Progress{Total: 2, Scraped: 1, Failed: 1}, testTime)))

	events := collect(t, ch, 2*time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, "processing", events[0].Status)
	assert.Equal(t, 1, events[0].Progress.Scraped)
	assert.True(t, events[1].Finished)
	assert.Equal(t, "partial", events[1].Status)
}

func TestUnitStreamTimesOut(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "job-1", Running("processing", nil, testTime)))

	ch, err := s.Stream(ctx, "job-1", 50*time.Millisecond)
	require.NoError(t, err)

	events := collect(t, ch, 2*time.Second)
	require.Len(t, events, 2)
	last := events[1]
	assert.True(t, last.Finished)
	require.NotNil(t, last.TerminalState)
	assert.Equal(t, TerminalTimeout, *last.TerminalState)
	assert.Equal(t, "processing", last.Status)

	// the job itself is untouched
	snap, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, snap.Finished)
}

func TestUnitStreamContextCancelClosesWithoutEvent(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(context.Background(), "job-1", Running("processing", nil, testTime)))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Stream(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	<-ch
	cancel()

	events := collect(t, ch, 2*time.Second)
	assert.Empty(t, events)
}

func TestUnitStreamUnknownJob(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Stream(context.Background(), "missing", time.Minute)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

type failingPutter struct{ calls int }

func (f *failingPutter) Put(context.Context, string, Event) error {
	f.calls++
	return errors.New("redis down")
}

func TestUnitPublisherSwallowsErrors(t *testing.T) {
	p := &failingPutter{}
	logger := zerolog.New(io.Discard)

	NewPublisher(p, &logger).Publish(context.Background(), "job-1", Running("processing", nil, testTime))
	assert.Equal(t, 1, p.calls)
}

func TestUnitForSession(t *testing.T) {
	tests := map[syncsession.Status]struct {
		finished bool
		state    TerminalState
	}{
		syncsession.StatusPending:    {},
		syncsession.StatusProcessing: {},
		syncsession.StatusCompleted:  {finished: true, state: TerminalSuccess},
		syncsession.StatusPartial:    {finished: true, state: TerminalSuccess},
		syncsession.StatusFailed:     {finished: true, state: TerminalFailure},
	}

	for status, tt := range tests {
		t.Run(string(status), func(t *testing.T) {
			ev := ForSession(status, syncsession.Progress{Total: 1}, testTime)
			assert.Equal(t, string(status), ev.Status)
			assert.Equal(t, tt.finished, ev.Finished)
			if tt.finished {
				require.NotNil(t, ev.TerminalState)
				assert.Equal(t, tt.state, *ev.TerminalState)
			} else {
				assert.Nil(t, ev.TerminalState)
			}
		})
	}
}

func TestUnitEventJSON(t *testing.T) {
	running, err := json.Marshal(Running("processing", nil, testTime))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"processing","finished":false,"terminalState":null,"createdAt":"2024-06-01T10:00:00Z"}`, string(running))

	timedOut, err := json.Marshal(Finished("processing", TerminalTimeout, nil, testTime))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"processing","finished":true,"terminalState":"timeout","createdAt":"2024-06-01T10:00:00Z"}`, string(timedOut))
}
