package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/maheshrc27/postflow/internal/errortracking"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
)

var ErrRunInProgress = errors.New("publish run already in progress")

const (
	runResultOK     = "ok"
	runResultEmpty  = "empty"
	runResultError  = "error"
	runResultLocked = "locked"
)

// statusWriteTimeout bounds each status or history write. Writes outlive the run deadline
// so a post the platform already accepted is still recorded.
const statusWriteTimeout = 10 * time.Second

type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

type PublishOptions struct {
	BatchSize       int
	UserConcurrency int
	RunTimeout      time.Duration
}

// RunSummary reports one run. Processed counts every due post selected, whatever its outcome.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

type PublishJob struct {
	posts    repository.PostRepository
	attempts repository.PublishAttemptRepository
	creds    service.CredentialResolver
	media    service.MediaResolver
	registry *platform.Registry
	locker   Locker
	opts     PublishOptions
	log      *zap.Logger
}

func NewPublishJob(
	posts repository.PostRepository,
	attempts repository.PublishAttemptRepository,
	creds service.CredentialResolver,
	media service.MediaResolver,
	registry *platform.Registry,
	locker Locker,
	opts PublishOptions,
	log *zap.Logger) *PublishJob {
	if opts.UserConcurrency <= 0 {
		opts.UserConcurrency = 8
	}
	return &PublishJob{
		posts:    posts,
		attempts: attempts,
		creds:    creds,
		media:    media,
		registry: registry,
		locker:   locker,
		opts:     opts,
		log:      log,
	}
}

// Run publishes every post due at now. Only a failure to read the due posts, or another run
// holding the lock, is returned as an error; everything else is handled per post.
func (j *PublishJob) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	started := time.Now()

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	log := j.log.With(zap.String("run_id", runID))

	if j.locker != nil {
		release, err := j.locker.Acquire(ctx)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				log.Info("another publish run holds the lock")
				metrics.ObserveRun(runResultLocked, time.Since(started))
				return nil, ErrRunInProgress
			}
			metrics.ObserveRun(runResultError, time.Since(started))
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	if j.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.RunTimeout)
		defer cancel()
	}

	due, err := j.posts.SelectDue(ctx, now, j.opts.BatchSize)
	if err != nil {
		log.Error("failed to select due posts", zap.Error(err))
		errortracking.Capture(err, map[string]string{"stage": "select", "run_id": runID})
		metrics.ObserveRun(runResultError, time.Since(started))
		return nil, fmt.Errorf("select due posts: %w", err)
	}

	summary := &RunSummary{RunID: runID, Processed: len(due)}
	if len(due) == 0 {
		log.Debug("no posts due")
		metrics.ObserveRun(runResultEmpty, time.Since(started))
		return summary, nil
	}

	groups := groupByUser(due)
	log.Info("publishing due posts", zap.Int("posts", len(due)), zap.Int("users", len(groups)))

	p := pool.NewWithResults[groupOutcome]().WithMaxGoroutines(j.opts.UserConcurrency)
	for _, g := range groups {
		p.Go(func() groupOutcome {
			return j.processUser(ctx, log, g, now)
		})
	}

	for _, o := range p.Wait() {
		summary.Published += o.published
		summary.Failed += o.failed
		summary.Skipped += o.skipped
	}

	log.Info("publish run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("took", time.Since(started)),
	)
	metrics.ObserveRun(runResultOK, time.Since(started))

	return summary, nil
}

type userGroup struct {
	userID uuid.UUID
	posts  []*models.ScheduledPost
}

type groupOutcome struct {
	published int
	failed    int
	skipped   int
}

func (o *groupOutcome) add(outcome string) {
	switch outcome {
	case metrics.OutcomePublished:
		o.published++
	case metrics.OutcomeFailed:
		o.failed++
	default:
		o.skipped++
	}
}

// groupByUser keeps the selector's order both across groups and within each group.
func groupByUser(posts []*models.ScheduledPost) []userGroup {
	index := make(map[uuid.UUID]int)
	var groups []userGroup
	for _, p := range posts {
		i, ok := index[p.UserID]
		if !ok {
			i = len(groups)
			index[p.UserID] = i
			groups = append(groups, userGroup{userID: p.UserID})
		}
		groups[i].posts = append(groups[i].posts, p)
	}
	return groups
}

// connectionCache resolves each provider at most once per user group.
type connectionCache struct {
	creds  service.CredentialResolver
	userID uuid.UUID
	conns  map[string]*models.PlatformConnection
	errs   map[string]error
}

func (c *connectionCache) get(ctx context.Context, provider string) (*models.PlatformConnection, error) {
	if conn, ok := c.conns[provider]; ok {
		return conn, nil
	}
	if err, ok := c.errs[provider]; ok {
		return nil, err
	}

	conn, err := c.creds.Resolve(ctx, c.userID, provider)
	if err != nil {
		c.errs[provider] = err
		return nil, err
	}
	c.conns[provider] = conn
	return conn, nil
}

// processUser handles one user's posts in order. It never returns an error: every post
// ends up published, failed or skipped.
func (j *PublishJob) processUser(ctx context.Context, log *zap.Logger, g userGroup, now time.Time) groupOutcome {
	log = log.With(zap.String("user_id", g.userID.String()))
	cache := &connectionCache{
		creds:  j.creds,
		userID: g.userID,
		conns:  make(map[string]*models.PlatformConnection),
		errs:   make(map[string]error),
	}

	var out groupOutcome
	for _, post := range g.posts {
		out.add(j.processPost(ctx, log, cache, post, now))
	}
	return out
}

func (j *PublishJob) processPost(ctx context.Context, log *zap.Logger, cache *connectionCache, post *models.ScheduledPost, now time.Time) (outcome string) {
	log = log.With(zap.String("post_id", post.ID.String()), zap.String("channel", post.Channel))

	driver := j.registry.For(post.Channel)
	if !platform.IsSupported(driver) {
		log.Warn("channel not supported yet, skipping post")
		metrics.IncPost("unsupported", metrics.OutcomeSkipped)
		return metrics.OutcomeSkipped
	}
	channel := driver.Channel()

	defer func() {
		if r := recover(); r != nil {
			outcome = j.fail(ctx, log, post, channel, fmt.Errorf("panic while publishing: %v", r))
		}
	}()

	conn, err := cache.get(ctx, driver.Provider())
	if err != nil {
		if errors.Is(err, service.ErrNoConnection) {
			log.Info("no active connection, skipping post", zap.String("provider", driver.Provider()))
		} else {
			log.Error("failed to resolve connection, skipping post", zap.String("provider", driver.Provider()), zap.Error(err))
			errortracking.Capture(err, map[string]string{"stage": "credentials", "provider": driver.Provider()})
		}
		metrics.IncPost(channel, metrics.OutcomeSkipped)
		return metrics.OutcomeSkipped
	}

	target := *post
	if post.HasImage() {
		resolved, err := j.media.Resolve(ctx, *post.ImageURL)
		if err != nil {
			return j.fail(ctx, log, post, channel, fmt.Errorf("resolve image: %w", err))
		}
		target.ImageURL = &resolved
	}

	result, err := driver.Publish(ctx, &target, conn)
	if err != nil {
		return j.fail(ctx, log, post, channel, err)
	}
	if result == nil {
		result = &models.PublishResult{}
	}

	return j.succeed(ctx, log, post, channel, result, now)
}

// writeContext detaches from the run deadline and applies statusWriteTimeout.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}

func (j *PublishJob) succeed(ctx context.Context, log *zap.Logger, post *models.ScheduledPost, channel string, result *models.PublishResult, now time.Time) string {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	updated, err := j.posts.MarkPublished(ctx, post.ID, now)
	if err != nil {
		log.Error("post published but status write failed", zap.Error(err))
		errortracking.Capture(err, map[string]string{"stage": "mark_published", "channel": channel})
	} else if !updated {
		log.Warn("post left the scheduled state before it could be marked published")
	}

	j.recordAttempt(ctx, log, post, channel, result.PlatformPostID, "")

	log.Info("post published", zap.String("platform_post_id", result.PlatformPostID))
	metrics.IncPost(channel, metrics.OutcomePublished)
	return metrics.OutcomePublished
}

func (j *PublishJob) fail(ctx context.Context, log *zap.Logger, post *models.ScheduledPost, channel string, cause error) string {
	log.Error("failed to publish post", zap.Error(cause))

	var pending *platform.PendingPublishError
	if errors.As(cause, &pending) {
		log.Warn("platform may still publish this post, reconcile by publish id",
			zap.String("publish_id", pending.PublishID))
	}

	ctx, cancel := writeContext(ctx)
	defer cancel()

	updated, err := j.posts.MarkFailed(ctx, post.ID)
	if err != nil {
		log.Error("failed to mark post failed", zap.Error(err))
	} else if !updated {
		log.Warn("post left the scheduled state before it could be marked failed")
	}

	j.recordAttempt(ctx, log, post, channel, "", cause.Error())

	if !errors.Is(cause, platform.ErrMissingImage) {
		errortracking.Capture(cause, map[string]string{"stage": "publish", "channel": channel})
	}
	metrics.IncPost(channel, metrics.OutcomeFailed)
	return metrics.OutcomeFailed
}

// recordAttempt expects a context from writeContext.
func (j *PublishJob) recordAttempt(ctx context.Context, log *zap.Logger, post *models.ScheduledPost, channel, platformPostID, errMsg string) {
	if j.attempts == nil {
		return
	}
	_, err := j.attempts.Create(ctx, &models.PublishAttempt{
		PostID:         post.ID,
		UserID:         post.UserID,
		Channel:        channel,
		PlatformPostID: platformPostID,
		ErrorMessage:   errMsg,
	})
	if err != nil {
		log.Warn("failed to record publish attempt", zap.Error(err))
	}
}
