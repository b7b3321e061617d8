package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// NewPublishRunTask builds the periodic publish task. Unique keeps a slow run and the next
// tick from both sitting in the queue.
func NewPublishRunTask(now time.Time, uniqueFor time.Duration) (*asynq.Task, error) {
	if uniqueFor < time.Second {
		uniqueFor = time.Minute
	}

	payload, err := json.Marshal(PublishRunPayload{TriggeredAt: now})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypePublishRun, payload,
		asynq.MaxRetry(0),
		asynq.Unique(uniqueFor),
		asynq.Timeout(uniqueFor),
	), nil
}

// RegisterPublishSchedule adds the publish run to the periodic scheduler at cronspec.
func RegisterPublishSchedule(scheduler *asynq.Scheduler, cronspec string, runTimeout time.Duration) (string, error) {
	task, err := NewPublishRunTask(time.Now(), runTimeout)
	if err != nil {
		return "", err
	}

	entryID, err := scheduler.Register(cronspec, task)
	if err != nil {
		return "", fmt.Errorf("register %q: %w", cronspec, err)
	}
	return entryID, nil
}
