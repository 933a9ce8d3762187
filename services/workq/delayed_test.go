package workq_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdcode-go/errcode"
	"kbdcode-go/services/workq"
	"kbdcode-go/services/workq/workqtest"
)

func startQueue(t *testing.T, opts ...workq.Option) *workq.Queue {
	t.Helper()
	q := workq.New(8, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})
	return q
}

// barrier waits until everything submitted so far has run.
func barrier(t *testing.T, q *workq.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Do(ctx, func() {}))
}

func TestDelayedWork_FiresOnceAfterDelay(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	var runs atomic.Int32
	w := q.NewDelayedWork(func() { runs.Add(1) })
	require.NoError(t, w.Schedule(200*time.Millisecond))
	assert.True(t, w.Pending())

	clk.Advance(199 * time.Millisecond)
	barrier(t, q)
	assert.Equal(t, int32(0), runs.Load())

	clk.Advance(time.Millisecond)
	barrier(t, q)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, w.Pending())
	assert.Equal(t, workq.NotScheduled, w.Cancel())
}

func TestDelayedWork_ScheduleWhilePendingKeepsDeadline(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	var runs atomic.Int32
	w := q.NewDelayedWork(func() { runs.Add(1) })
	require.NoError(t, w.Schedule(100*time.Millisecond))
	clk.Advance(50 * time.Millisecond)
	require.NoError(t, w.Schedule(100*time.Millisecond))
	assert.Equal(t, 1, clk.Armed())

	clk.Advance(50 * time.Millisecond)
	barrier(t, q)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDelayedWork_CancelBeforeExpiry(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	var runs atomic.Int32
	w := q.NewDelayedWork(func() { runs.Add(1) })
	require.NoError(t, w.Schedule(100*time.Millisecond))

	assert.Equal(t, workq.Canceled, w.Cancel())
	assert.Equal(t, workq.NotScheduled, w.Cancel())
	assert.Equal(t, 0, clk.Armed())

	clk.Advance(time.Second)
	barrier(t, q)
	assert.Equal(t, int32(0), runs.Load())
}

func TestDelayedWork_CancelWhileQueued(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	gate := make(chan struct{})
	require.NoError(t, q.Submit(func() { <-gate })) // hold the queue

	var runs atomic.Int32
	w := q.NewDelayedWork(func() { runs.Add(1) })
	require.NoError(t, w.Schedule(10*time.Millisecond))
	clk.Advance(10 * time.Millisecond) // handler now sits behind the gate

	assert.True(t, w.Pending())
	assert.Equal(t, workq.Canceled, w.Cancel())
	close(gate)
	barrier(t, q)
	assert.Equal(t, int32(0), runs.Load())
}

func TestDelayedWork_CancelWhileRunning(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	w := q.NewDelayedWork(func() {
		close(entered)
		<-release
		runs.Add(1)
	})
	require.NoError(t, w.Schedule(time.Millisecond))
	clk.Advance(time.Millisecond)
	<-entered

	assert.True(t, w.Running())
	assert.Equal(t, workq.AlreadyRunning, w.Cancel())
	close(release)
	barrier(t, q)

	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, w.Running())
}

func TestDelayedWork_RescheduleFromHandler(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	var runs atomic.Int32
	var w *workq.DelayedWork
	w = q.NewDelayedWork(func() {
		if runs.Add(1) == 1 {
			_ = w.Schedule(5 * time.Millisecond)
		}
	})
	require.NoError(t, w.Schedule(5*time.Millisecond))
	clk.Advance(5 * time.Millisecond)
	barrier(t, q)
	assert.True(t, w.Pending())

	clk.Advance(5 * time.Millisecond)
	barrier(t, q)
	assert.Equal(t, int32(2), runs.Load())
	assert.False(t, w.Pending())
}

func TestDelayedWork_ScheduleErrors(t *testing.T) {
	q := workq.New(1)
	w := q.NewDelayedWork(func() {})
	assert.Equal(t, errcode.InvalidParams, w.Schedule(-time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	cancel()
	<-q.Done()

	assert.Equal(t, errcode.Closed, w.Schedule(time.Millisecond))
	assert.Equal(t, errcode.Closed, q.Submit(func() {}))
}

func TestQueue_SubmitFullIsBusy(t *testing.T) {
	q := workq.New(1)
	require.NoError(t, q.Submit(func() {}))
	assert.Equal(t, errcode.Busy, q.Submit(func() {}))
}

func TestQueue_ExpiryIntoFullQueueStillRuns(t *testing.T) {
	clk := &workqtest.Clock{}
	q := workq.New(1, workq.WithAfterFunc(clk.AfterFunc))
	require.NoError(t, q.Submit(func() {})) // fill; Run not started
	require.Equal(t, errcode.Busy, q.Submit(func() {}))

	var runs atomic.Int32
	w := q.NewDelayedWork(func() { runs.Add(1) })
	require.NoError(t, w.Schedule(time.Millisecond))
	clk.Advance(time.Millisecond)
	assert.True(t, w.Pending(), "expired work waits for Run")

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	t.Cleanup(func() { cancel(); <-q.Done() })

	barrier(t, q)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, w.Pending())
}

func TestQueue_ExpiryRunsBeforeLaterSubmits(t *testing.T) {
	clk := &workqtest.Clock{}
	q := startQueue(t, workq.WithAfterFunc(clk.AfterFunc))

	var order []string
	w := q.NewDelayedWork(func() { order = append(order, "expired") })
	require.NoError(t, w.Schedule(time.Millisecond))
	clk.Advance(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Do(ctx, func() { order = append(order, "submitted") }))
	assert.Equal(t, []string{"expired", "submitted"}, order)
}

func TestQueue_SubmitWait(t *testing.T) {
	q := workq.New(1)
	require.NoError(t, q.Submit(func() {}))

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, q.SubmitWait(short, func() {}), context.DeadlineExceeded)

	ran := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- q.SubmitWait(context.Background(), func() { close(ran) }) }()

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	require.NoError(t, <-errc)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("waited submit never ran")
	}
	cancel()
	<-q.Done()
	assert.Equal(t, errcode.Closed, q.SubmitWait(context.Background(), func() {}))
}

func TestQueue_RealTimer(t *testing.T) {
	q := startQueue(t)
	fired := make(chan struct{})
	w := q.NewDelayedWork(func() { close(fired) })
	require.NoError(t, w.Schedule(5*time.Millisecond))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed work did not fire")
	}
}
