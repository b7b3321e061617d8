package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	job "github.com/maheshrc27/postflow/internal/jobs"
)

const (
	msgNothingDue = "No posts to publish at this time."
	msgInProgress = "Publish run already in progress."
)

type PublishRunner interface {
	Run(ctx context.Context, now time.Time) (*job.RunSummary, error)
}

type JobHandler struct {
	runner PublishRunner
	log    *zap.Logger
	now    func() time.Time
}

func NewJobHandler(runner PublishRunner, log *zap.Logger) *JobHandler {
	return &JobHandler{runner: runner, log: log, now: time.Now}
}

// RunPublishJob runs the publisher once, synchronously, and reports how many due posts it
// picked up.
func (h *JobHandler) RunPublishJob(c *fiber.Ctx) error {
	summary, err := h.runner.Run(c.Context(), h.now())
	if err != nil {
		if errors.Is(err, job.ErrRunInProgress) {
			return messageResponse(c, msgInProgress)
		}
		h.log.Error("publish run failed", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}

	if summary.Processed == 0 {
		return messageResponse(c, msgNothingDue)
	}
	return messageResponse(c, fmt.Sprintf("Processed %d posts.", summary.Processed))
}
