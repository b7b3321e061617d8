package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const refreshConcurrency = 10

type TokenRefreshJob struct {
	cr         repository.ConnectionRepository
	refreshers map[string]platform.TokenRefresher
	secretKey  []byte
	window     time.Duration
	log        *zap.Logger
}

func NewTokenRefreshJob(
	cr repository.ConnectionRepository,
	secretKey string,
	window time.Duration,
	log *zap.Logger,
	refreshers ...platform.TokenRefresher) *TokenRefreshJob {
	byProvider := make(map[string]platform.TokenRefresher, len(refreshers))
	for _, r := range refreshers {
		byProvider[r.Provider()] = r
	}
	return &TokenRefreshJob{
		cr:         cr,
		refreshers: byProvider,
		secretKey:  []byte(secretKey),
		window:     window,
		log:        log,
	}
}

// RefreshTokens is the cron entry point.
func (c *TokenRefreshJob) RefreshTokens() {
	c.Run(context.Background(), time.Now())
}

// Run refreshes every active connection whose token expires before now+window.
// It returns how many connections were refreshed.
func (c *TokenRefreshJob) Run(ctx context.Context, now time.Time) int {
	conns, err := c.cr.ListExpiring(ctx, now.Add(c.window))
	if err != nil {
		c.log.Error("failed to list expiring connections", zap.Error(err))
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)
	semaphore := make(chan struct{}, refreshConcurrency)

	for _, conn := range conns {
		refresher, ok := c.refreshers[conn.Provider]
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.PlatformConnection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			log := c.log.With(zap.String("connection_id", conn.ID.String()), zap.String("provider", conn.Provider))
			if err := c.refresh(ctx, refresher, conn); err != nil {
				log.Warn("unable to refresh token", zap.Error(err))
				metrics.IncTokenRefresh(conn.Provider, "error")
				return
			}

			log.Info("token refreshed")
			metrics.IncTokenRefresh(conn.Provider, "ok")
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(conn)
	}

	wg.Wait()
	return refreshed
}

func (c *TokenRefreshJob) refresh(ctx context.Context, refresher platform.TokenRefresher, stored *models.PlatformConnection) error {
	accessToken, err := utils.Decrypt(stored.AccessToken, c.secretKey)
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}

	plain := *stored
	plain.AccessToken = accessToken
	if stored.RefreshToken != "" {
		if plain.RefreshToken, err = utils.Decrypt(stored.RefreshToken, c.secretKey); err != nil {
			return fmt.Errorf("decrypt refresh token: %w", err)
		}
	}

	token, err := refresher.Refresh(ctx, &plain)
	if err != nil {
		return err
	}

	update := &models.PlatformConnection{TokenExpiresAt: &token.ExpiresAt}
	if update.AccessToken, err = utils.Encrypt([]byte(token.AccessToken), c.secretKey); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if token.RefreshToken != "" {
		if update.RefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), c.secretKey); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	if err := c.cr.SetToken(ctx, stored.ID, stored.AccessToken, update); err != nil {
		if errors.Is(err, repository.ErrTokenChanged) {
			c.log.Info("connection changed during refresh, keeping newer token", zap.String("connection_id", stored.ID.String()))
			return nil
		}
		return err
	}
	return nil
}
