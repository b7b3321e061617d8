package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	job "github.com/maheshrc27/postflow/internal/jobs"
)

func (q *Queue) HandlePublishRunTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}

	summary, err := q.runner.Run(ctx, time.Now())
	if err != nil {
		if errors.Is(err, job.ErrRunInProgress) {
			q.log.Info("skipping scheduled run, another run is in progress")
			return nil
		}
		return err
	}

	q.log.Info("scheduled run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
	)
	return nil
}

// NewServeMux routes queue tasks to their handlers.
func (q *Queue) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishRun, q.HandlePublishRunTask)
	return mux
}
