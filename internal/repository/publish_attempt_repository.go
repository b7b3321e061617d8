package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

type PublishAttemptRepository interface {
	Create(ctx context.Context, pa *models.PublishAttempt) (int64, error)
}

type publishAttemptRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPublishAttemptRepository(db *sql.DB) PublishAttemptRepository {
	return &publishAttemptRepository{db: db, sb: statementBuilder()}
}

func (r *publishAttemptRepository) Create(ctx context.Context, pa *models.PublishAttempt) (int64, error) {
	sqlStr, args, err := r.sb.
		Insert("publish_attempts").
		Columns("post_id", "user_id", "channel", "platform_post_id", "error_message").
		Values(pa.PostID, pa.UserID, pa.Channel, nullIfEmpty(pa.PlatformPostID), nullIfEmpty(pa.ErrorMessage)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert publish attempt: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert publish attempt: %w", err)
	}

	return id, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
