package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	runs    atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error
}

func (j *blockingJob) Name() string {
	return "blocking"
}

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.release != nil {
		<-j.release
	}
	return j.err
}

func TestRunNowDoesNotOverlap(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{release: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob(job, "@every 1h"))

	done := make(chan error, 1)
	go func() {
		done <- s.RunNow(context.Background(), "blocking")
	}()
	<-job.started

	err := s.RunNow(context.Background(), "blocking")
	require.ErrorIs(t, err, ErrJobRunning)

	close(job.release)
	require.NoError(t, <-done)
	require.Equal(t, int32(1), job.runs.Load())
}

func TestRunNowReturnsJobError(t *testing.T) {
	s := NewCronScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.AddJob(&blockingJob{err: boom}, "0 3 * * *"))
	require.ErrorIs(t, s.RunNow(context.Background(), "blocking"), boom)
	require.Error(t, s.RunNow(context.Background(), "unknown"))
}

func TestAddJobValidation(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&blockingJob{}, "not a cron spec"))
	require.NoError(t, s.AddJob(&blockingJob{}, "*/5 * * * *"))
	require.Error(t, s.AddJob(&blockingJob{}, "*/5 * * * *"))
}

func TestStartStop(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{}
	require.NoError(t, s.AddJob(job, "@every 1h"))
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	require.Equal(t, int32(0), job.runs.Load())
}
