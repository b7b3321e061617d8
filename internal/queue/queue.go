package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	job "github.com/maheshrc27/postflow/internal/jobs"
)

const TaskTypePublishRun = "publish:run"

type PublishRunPayload struct {
	TriggeredAt time.Time `json:"triggered_at"`
}

// Runner is the publish orchestrator as seen by the queue worker.
type Runner interface {
	Run(ctx context.Context, now time.Time) (*job.RunSummary, error)
}

type Queue struct {
	runner Runner
	log    *zap.Logger
}

func NewQueue(runner Runner, log *zap.Logger) *Queue {
	return &Queue{
		runner: runner,
		log:    log,
	}
}
