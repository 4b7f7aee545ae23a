package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brainwaves/notification/internal/domain"
)

const notificationColumns = "id, user_id, actor_id, type, content, post_id, comment_id, metadata, is_read, created_at"

// Repository is the PostgreSQL implementation of domain.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new postgres Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindRecent looks up the newest row with the same dedup tuple created after since.
// IS NOT DISTINCT FROM makes a NULL key field match only a NULL column.
func (r *Repository) FindRecent(ctx context.Context, key domain.DedupKey, since time.Time) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		  AND actor_id IS NOT DISTINCT FROM $2
		  AND type = $3
		  AND post_id IS NOT DISTINCT FROM $4
		  AND comment_id IS NOT DISTINCT FROM $5
		  AND created_at > $6
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, key.UserID, key.ActorID, string(key.Type), key.PostID, key.CommentID, since)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent notification: %w", err)
	}
	return n, nil
}

// Create inserts a new notification record.
func (r *Repository) Create(ctx context.Context, in domain.CreateNotificationInput) (*domain.Notification, error) {
	metaJSON, err := marshalMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, actor_id, type, content, post_id, comment_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+notificationColumns,
		in.UserID, in.ActorID, string(in.Type), in.Content, in.PostID, in.CommentID, metaJSON)

	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// BatchCreate inserts all inputs with a single statement. Rows whose dedup
// tuple already exists after since are skipped by the NOT EXISTS guard.
func (r *Repository) BatchCreate(ctx context.Context, inputs []domain.CreateNotificationInput, since time.Time) ([]*domain.Notification, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	// Each row has 7 params: user_id, actor_id, type, content, post_id, comment_id, metadata.
	// $1 is the window start.
	const paramsPerRow = 7
	args := make([]any, 0, 1+len(inputs)*paramsPerRow)
	args = append(args, since)
	valuesClauses := make([]string, 0, len(inputs))

	for i, in := range inputs {
		base := 1 + i*paramsPerRow
		metaJSON, err := marshalMetadata(in.Metadata)
		if err != nil {
			return nil, err
		}
		valuesClauses = append(valuesClauses, fmt.Sprintf(
			"($%d::text,$%d::text,$%d::text,$%d::text,$%d::text,$%d::text,$%d::jsonb)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			in.UserID, in.ActorID, string(in.Type),
			in.Content, in.PostID, in.CommentID, metaJSON,
		)
	}

	query := "INSERT INTO notifications (user_id, actor_id, type, content, post_id, comment_id, metadata) " +
		"SELECT v.user_id, v.actor_id, v.type, v.content, v.post_id, v.comment_id, v.metadata FROM (VALUES " +
		strings.Join(valuesClauses, ",") +
		") AS v(user_id, actor_id, type, content, post_id, comment_id, metadata) " +
		"WHERE NOT EXISTS (SELECT 1 FROM notifications n WHERE n.user_id = v.user_id " +
		"AND n.actor_id IS NOT DISTINCT FROM v.actor_id AND n.type = v.type " +
		"AND n.post_id IS NOT DISTINCT FROM v.post_id AND n.comment_id IS NOT DISTINCT FROM v.comment_id " +
		"AND n.created_at > $1) " +
		"RETURNING " + notificationColumns

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch insert notifications: %w", err)
	}
	return collect(rows)
}

// List fetches a page of notifications for a user, joined with actor and post summaries.
func (r *Repository) List(ctx context.Context, f domain.NotificationFilter) ([]*domain.Notification, error) {
	where, args := filterClause(f, "n.")
	query := `
		SELECT n.id, n.user_id, n.actor_id, n.type, n.content, n.post_id, n.comment_id,
		       n.metadata, n.is_read, n.created_at,
		       u.id, u.name, u.image, p.id, p.title, p.slug
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		LEFT JOIN posts p ON p.id = n.post_id
		WHERE ` + where

	paramIdx := len(args) + 1
	query += fmt.Sprintf(" ORDER BY n.created_at DESC, n.id DESC LIMIT $%d OFFSET $%d", paramIdx, paramIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Notification, 0, f.Limit)
	for rows.Next() {
		var (
			n                       domain.Notification
			metaJSON                []byte
			actorID, actorName      *string
			actorImage              *string
			postID, postTitle, slug *string
		)
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.ActorID, &n.Type, &n.Content, &n.PostID, &n.CommentID,
			&metaJSON, &n.IsRead, &n.CreatedAt,
			&actorID, &actorName, &actorImage, &postID, &postTitle, &slug,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &n.Metadata)
		}
		if actorID != nil {
			n.Actor = &domain.ActorSummary{ID: *actorID, Name: domain.Deref(actorName), Image: domain.Deref(actorImage)}
		}
		if postID != nil {
			n.Post = &domain.PostSummary{ID: *postID, Title: domain.Deref(postTitle), Slug: domain.Deref(slug)}
		}
		results = append(results, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return results, nil
}

// Count returns the number of rows matching the filter.
func (r *Repository) Count(ctx context.Context, f domain.NotificationFilter) (int64, error) {
	where, args := filterClause(f, "")
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// CountUnread returns the count of unread notifications for a user.
func (r *Repository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks a single notification as read. Returns nil when nothing matched.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, userID string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE
		RETURNING `+notificationColumns, id, userID)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// MarkAllRead marks all unread notifications for a user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE
		RETURNING `+notificationColumns, userID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	return collect(rows)
}

// Delete removes a notification belonging to the user. Returns nil when nothing matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, userID string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete notification: %w", err)
	}
	return n, nil
}

// DeleteAll removes every notification of the user.
func (r *Repository) DeleteAll(ctx context.Context, userID string) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`DELETE FROM notifications WHERE user_id = $1 RETURNING `+notificationColumns, userID)
	if err != nil {
		return nil, fmt.Errorf("delete all notifications: %w", err)
	}
	return collect(rows)
}

// DeleteMatching removes the notifications whose cause was undone.
func (r *Repository) DeleteMatching(ctx context.Context, key domain.RemovalKey) ([]*domain.Notification, error) {
	query := `DELETE FROM notifications WHERE user_id = $1 AND actor_id = $2 AND type = $3`
	args := []any{key.UserID, key.ActorID, string(key.Type)}
	if key.PostID != nil {
		args = append(args, *key.PostID)
		query += fmt.Sprintf(" AND post_id = $%d", len(args))
	}
	if key.CommentID != nil {
		args = append(args, *key.CommentID)
		query += fmt.Sprintf(" AND comment_id = $%d", len(args))
	}
	query += " RETURNING " + notificationColumns

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete matching notifications: %w", err)
	}
	return collect(rows)
}

// PurgeOlderThan deletes notifications older than the given number of days.
func (r *Repository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// filterClause renders the WHERE conditions of f with the given column prefix.
func filterClause(f domain.NotificationFilter, prefix string) (string, []any) {
	conds := []string{prefix + "user_id = $1"}
	args := []any{f.UserID}
	if f.UnreadOnly {
		conds = append(conds, prefix+"is_read = FALSE")
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("%stype = $%d", prefix, len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func collect(rows pgx.Rows) ([]*domain.Notification, error) {
	defer rows.Close()
	var results []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// scanNotification is a helper to scan a row into a Notification struct.
type scannable interface {
	Scan(dest ...any) error
}

func scanNotification(row scannable) (*domain.Notification, error) {
	var n domain.Notification
	var metaJSON []byte

	err := row.Scan(
		&n.ID, &n.UserID, &n.ActorID, &n.Type, &n.Content, &n.PostID, &n.CommentID,
		&metaJSON, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &n.Metadata)
	}
	return &n, nil
}

var _ domain.Repository = (*Repository)(nil)
