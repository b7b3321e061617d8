package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	job "github.com/maheshrc27/postflow/internal/jobs"
)

type fakeRunner struct {
	calls   int
	summary *job.RunSummary
	err     error
}

func (f *fakeRunner) Run(context.Context, time.Time) (*job.RunSummary, error) {
	f.calls++
	return f.summary, f.err
}

func TestHandlePublishRunTask(t *testing.T) {
	runner := &fakeRunner{summary: &job.RunSummary{RunID: "abc", Processed: 3}}
	q := NewQueue(runner, zaptest.NewLogger(t))

	task, err := NewPublishRunTask(time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskTypePublishRun, task.Type())

	require.NoError(t, q.HandlePublishRunTask(context.Background(), task))
	assert.Equal(t, 1, runner.calls)
}

func TestHandlePublishRunTask_InProgressIsNotRetried(t *testing.T) {
	q := NewQueue(&fakeRunner{err: job.ErrRunInProgress}, zaptest.NewLogger(t))
	task, err := NewPublishRunTask(time.Now(), time.Minute)
	require.NoError(t, err)

	assert.NoError(t, q.HandlePublishRunTask(context.Background(), task))
}

func TestHandlePublishRunTask_Errors(t *testing.T) {
	boom := errors.New("select due posts: connection reset")
	q := NewQueue(&fakeRunner{err: boom}, zaptest.NewLogger(t))
	task, err := NewPublishRunTask(time.Now(), time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, q.HandlePublishRunTask(context.Background(), task), boom)

	bad := asynq.NewTask(TaskTypePublishRun, []byte("{"))
	assert.ErrorIs(t, q.HandlePublishRunTask(context.Background(), bad), asynq.SkipRetry)
}
