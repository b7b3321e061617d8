package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

var ErrNoConnection = errors.New("no active connection")

// CredentialResolver returns a user's active connection for a provider with its tokens
// decrypted and ready for a driver.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, provider string) (*models.PlatformConnection, error)
}

type credentialService struct {
	connRepo  repository.ConnectionRepository
	secretKey []byte
}

func NewCredentialService(connRepo repository.ConnectionRepository, secretKey string) CredentialResolver {
	return &credentialService{connRepo: connRepo, secretKey: []byte(secretKey)}
}

func (s *credentialService) Resolve(ctx context.Context, userID uuid.UUID, provider string) (*models.PlatformConnection, error) {
	conn, err := s.connRepo.GetActive(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoConnection, provider)
	}

	accessToken, err := utils.Decrypt(conn.AccessToken, s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s access token: %w", provider, err)
	}

	resolved := *conn
	resolved.AccessToken = accessToken

	if conn.RefreshToken != "" {
		refreshToken, err := utils.Decrypt(conn.RefreshToken, s.secretKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s refresh token: %w", provider, err)
		}
		resolved.RefreshToken = refreshToken
	}

	return &resolved, nil
}
