package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brainwaves/notification/internal/domain"
)

// Directory resolves recipients from the blog's users, posts and comments tables.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a Directory over the shared pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// PostAuthor returns the author of postID, or "" if the post is gone.
func (d *Directory) PostAuthor(ctx context.Context, postID string) (string, error) {
	var authorID string
	err := d.pool.QueryRow(ctx, `SELECT author_id FROM posts WHERE id = $1`, postID).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("post author %s: %w", postID, err)
	}
	return authorID, nil
}

// CommentAuthor returns the author and post of commentID.
func (d *Directory) CommentAuthor(ctx context.Context, commentID string) (string, string, error) {
	var authorID, postID string
	err := d.pool.QueryRow(ctx,
		`SELECT author_id, post_id FROM comments WHERE id = $1`, commentID,
	).Scan(&authorID, &postID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("comment author %s: %w", commentID, err)
	}
	return authorID, postID, nil
}

// UsersByName returns every user whose display name equals name exactly.
// Names are not unique, so more than one id may come back.
func (d *Directory) UsersByName(ctx context.Context, name string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM users WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("users by name: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("users by name: %w", err)
	}
	return ids, nil
}

var _ domain.Directory = (*Directory)(nil)
