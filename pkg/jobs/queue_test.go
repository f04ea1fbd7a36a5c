package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/observability"
)

func newTestQueue(t *testing.T, cfg Config, opts ...Option) *Queue {
	t.Helper()
	q := NewQueue(context.Background(), cfg, opts...)
	t.Cleanup(func() { q.Shutdown(time.Second) })
	return q
}

func waitForStatus(t *testing.T, q *Queue, id string, want Status) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = q.Get(id)
		return ok && job.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_Finished(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	q := newTestQueue(t, Config{Workers: 1}, WithMetrics(metrics))
	q.Register("double", func(ctx context.Context, args Args) (interface{}, error) {
		n, err := args.Int("n")
		if err != nil {
			return nil, err
		}
		return n * 2, nil
	})

	job, err := q.Enqueue("double", Args{"n": 21})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "double", job.Name)
	assert.Contains(t, []Status{StatusQueued, StatusStarted, StatusFinished}, job.Status)

	done := waitForStatus(t, q, job.ID, StatusFinished)
	assert.Equal(t, 42, done.Result)
	assert.Empty(t, done.Error)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.EndedAt)
	assert.False(t, done.EndedAt.Before(*done.StartedAt))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobsTotal.WithLabelValues("double", "finished")))
}

func TestQueue_Failed(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1})
	q.Register("broken", func(ctx context.Context, args Args) (interface{}, error) {
		return nil, errors.New("nope")
	})

	job, err := q.Enqueue("broken", nil)
	require.NoError(t, err)

	done := waitForStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, "nope", done.Error)
}

func TestQueue_PanicFailsJob(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1})
	q.Register("panics", func(ctx context.Context, args Args) (interface{}, error) {
		panic("bad input")
	})

	job, err := q.Enqueue("panics", nil)
	require.NoError(t, err)

	done := waitForStatus(t, q, job.ID, StatusFailed)
	assert.Contains(t, done.Error, "bad input")
}

func TestQueue_Timeout(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1, Timeout: 50 * time.Millisecond})
	q.Register("slow", func(ctx context.Context, args Args) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := q.Enqueue("slow", nil)
	require.NoError(t, err)

	done := waitForStatus(t, q, job.ID, StatusFailed)
	assert.Contains(t, done.Error, context.DeadlineExceeded.Error())
}

func TestQueue_UnknownJob(t *testing.T) {
	q := newTestQueue(t, Config{})

	_, err := q.Enqueue("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestQueue_Full(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	defer close(release)
	q.Register("block", func(ctx context.Context, args Args) (interface{}, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})

	first, err := q.Enqueue("block", nil)
	require.NoError(t, err)
	waitForStatus(t, q, first.ID, StatusStarted)

	_, err = q.Enqueue("block", nil)
	require.NoError(t, err)

	_, err = q.Enqueue("block", nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_Shutdown(t *testing.T) {
	q := NewQueue(context.Background(), Config{Workers: 1})
	q.Register("noop", func(ctx context.Context, args Args) (interface{}, error) { return nil, nil })

	require.NoError(t, q.Shutdown(time.Second))

	_, err := q.Enqueue("noop", nil)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_PrunesOldJobs(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	q := newTestQueue(t, Config{Workers: 1, Retention: time.Hour}, WithClock(clock))
	q.Register("noop", func(ctx context.Context, args Args) (interface{}, error) { return nil, nil })

	old, err := q.Enqueue("noop", nil)
	require.NoError(t, err)
	waitForStatus(t, q, old.ID, StatusFinished)

	now = now.Add(2 * time.Hour)
	_, err = q.Enqueue("noop", nil)
	require.NoError(t, err)

	_, ok := q.Get(old.ID)
	assert.False(t, ok)
}

func TestQueue_GetUnknown(t *testing.T) {
	q := newTestQueue(t, Config{})
	_, ok := q.Get("nope")
	assert.False(t, ok)
}

func TestArgs_Int(t *testing.T) {
	args := Args{"a": 3, "b": int64(4), "c": float64(5), "d": "six"}

	for key, want := range map[string]int{"a": 3, "b": 4, "c": 5} {
		got, err := args.Int(key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := args.Int("d")
	assert.Error(t, err)
	_, err = args.Int("missing")
	assert.Error(t, err)
}
