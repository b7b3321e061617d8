package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
)

var ErrTokenChanged = errors.New("access token changed since it was read")

type ConnectionRepository interface {
	// GetActive returns the most recently updated active connection for the user and
	// provider, or nil, nil when there is none.
	GetActive(ctx context.Context, userID uuid.UUID, provider string) (*models.PlatformConnection, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.PlatformConnection, error)
	SetToken(ctx context.Context, id uuid.UUID, oldAccessToken string, conn *models.PlatformConnection) error
}

type connectionRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db, sb: statementBuilder()}
}

var connectionColumns = []string{
	"id",
	"user_id",
	"provider",
	"access_token",
	"refresh_token",
	"account_id",
	"is_active",
	"token_expires_at",
	"updated_at",
}

func (r *connectionRepository) GetActive(ctx context.Context, userID uuid.UUID, provider string) (*models.PlatformConnection, error) {
	sqlStr, args, err := r.sb.
		Select(connectionColumns...).
		From("platform_connections").
		Where(sq.Eq{"user_id": userID, "provider": provider, "is_active": true}).
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get active connection: %w", err)
	}

	conn, err := scanConnection(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active connection: %w", err)
	}

	return conn, nil
}

func (r *connectionRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.PlatformConnection, error) {
	sqlStr, args, err := r.sb.
		Select(connectionColumns...).
		From("platform_connections").
		Where(sq.Eq{"is_active": true}).
		Where(sq.NotEq{"token_expires_at": nil}).
		Where(sq.LtOrEq{"token_expires_at": before}).
		OrderBy("token_expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expiring connections: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list expiring connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.PlatformConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}

	return conns, nil
}

// SetToken stores refreshed tokens only if the access token still matches oldAccessToken,
// so a refresh racing with a reconnect does not overwrite the newer credentials.
func (r *connectionRepository) SetToken(ctx context.Context, id uuid.UUID, oldAccessToken string, conn *models.PlatformConnection) error {
	q := r.sb.
		Update("platform_connections").
		Set("access_token", conn.AccessToken).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "access_token": oldAccessToken})

	if conn.RefreshToken != "" {
		q = q.Set("refresh_token", conn.RefreshToken)
	}
	if conn.TokenExpiresAt != nil {
		q = q.Set("token_expires_at", *conn.TokenExpiresAt)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set token: %w", err)
	}

	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTokenChanged
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.PlatformConnection, error) {
	var (
		c            models.PlatformConnection
		refreshToken sql.NullString
		expiresAt    sql.NullTime
	)

	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Provider,
		&c.AccessToken,
		&refreshToken,
		&c.AccountID,
		&c.IsActive,
		&expiresAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.RefreshToken = refreshToken.String
	if expiresAt.Valid {
		t := expiresAt.Time
		c.TokenExpiresAt = &t
	}

	return &c, nil
}
