package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
)

const defaultBatchSize = 100

type PostRepository interface {
	// SelectDue returns every post with status scheduled and scheduled_at <= now, reading
	// in keyset pages of batchSize. Nothing due is an empty slice, not an error.
	SelectDue(ctx context.Context, now time.Time, batchSize int) ([]*models.ScheduledPost, error)
	// MarkPublished and MarkFailed move a still-scheduled post to its terminal status.
	// They report false when the post had already left the scheduled state.
	MarkPublished(ctx context.Context, postID uuid.UUID, publishedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, postID uuid.UUID) (bool, error)
}

type postRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db, sb: statementBuilder()}
}

type dueCursor struct {
	scheduledAt time.Time
	id          uuid.UUID
}

func (r *postRepository) SelectDue(ctx context.Context, now time.Time, batchSize int) ([]*models.ScheduledPost, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var (
		posts  []*models.ScheduledPost
		cursor *dueCursor
	)
	for {
		page, err := r.selectDuePage(ctx, now, batchSize, cursor)
		if err != nil {
			return nil, err
		}
		posts = append(posts, page...)

		if len(page) < batchSize {
			break
		}
		last := page[len(page)-1]
		cursor = &dueCursor{scheduledAt: last.ScheduledAt, id: last.ID}
	}

	if posts == nil {
		posts = []*models.ScheduledPost{}
	}
	return posts, nil
}

func (r *postRepository) selectDuePage(ctx context.Context, now time.Time, limit int, cursor *dueCursor) ([]*models.ScheduledPost, error) {
	q := r.sb.
		Select(
			"p.id",
			"p.user_id",
			"p.body_text",
			"p.image_url",
			"c.name",
			"p.status",
			"p.scheduled_at",
			"p.published_at",
		).
		From("scheduled_posts p").
		Join("channels c ON c.id = p.channel_id").
		Where(sq.Eq{"p.status": models.PostStatusScheduled}).
		Where(sq.LtOrEq{"p.scheduled_at": now}).
		OrderBy("p.scheduled_at ASC", "p.id ASC").
		Limit(uint64(limit))

	if cursor != nil {
		q = q.Where("(p.scheduled_at, p.id) > (?, ?)", cursor.scheduledAt, cursor.id)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select due posts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.ScheduledPost, 0, limit)
	for rows.Next() {
		var (
			p           models.ScheduledPost
			bodyText    sql.NullString
			imageURL    sql.NullString
			publishedAt sql.NullTime
		)
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&bodyText,
			&imageURL,
			&p.Channel,
			&p.Status,
			&p.ScheduledAt,
			&publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan due post: %w", err)
		}

		if bodyText.Valid {
			s := bodyText.String
			p.BodyText = &s
		}
		if imageURL.Valid {
			s := imageURL.String
			p.ImageURL = &s
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			p.PublishedAt = &t
		}

		posts = append(posts, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due posts: %w", err)
	}

	return posts, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID uuid.UUID, publishedAt time.Time) (bool, error) {
	q := r.sb.
		Update("scheduled_posts").
		Set("status", models.PostStatusPublished).
		Set("published_at", publishedAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": postID, "status": models.PostStatusScheduled})

	return r.execUpdate(ctx, q, "mark post published")
}

func (r *postRepository) MarkFailed(ctx context.Context, postID uuid.UUID) (bool, error) {
	q := r.sb.
		Update("scheduled_posts").
		Set("status", models.PostStatusFailed).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": postID, "status": models.PostStatusScheduled})

	return r.execUpdate(ctx, q, "mark post failed")
}

func (r *postRepository) execUpdate(ctx context.Context, q sq.UpdateBuilder, op string) (bool, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build %s: %w", op, err)
	}

	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected == 1, nil
}
