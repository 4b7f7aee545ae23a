package memory

import (
	"context"
	"sync"

	"github.com/brainwaves/notification/internal/domain"
)

type comment struct {
	authorID string
	postID   string
}

// Directory implements domain.Directory from registered fixtures.
type Directory struct {
	mu       sync.RWMutex
	posts    map[string]string
	comments map[string]comment
	names    map[string][]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		posts:    make(map[string]string),
		comments: make(map[string]comment),
		names:    make(map[string][]string),
	}
}

// AddUser registers a user display name.
func (d *Directory) AddUser(id, name string) {
	d.mu.Lock()
	d.names[name] = append(d.names[name], id)
	d.mu.Unlock()
}

// AddPost registers a post and its author.
func (d *Directory) AddPost(postID, authorID string) {
	d.mu.Lock()
	d.posts[postID] = authorID
	d.mu.Unlock()
}

// AddComment registers a comment, its author and its post.
func (d *Directory) AddComment(commentID, authorID, postID string) {
	d.mu.Lock()
	d.comments[commentID] = comment{authorID: authorID, postID: postID}
	d.mu.Unlock()
}

func (d *Directory) PostAuthor(_ context.Context, postID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.posts[postID], nil
}

func (d *Directory) CommentAuthor(_ context.Context, commentID string) (string, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := d.comments[commentID]
	return c.authorID, c.postID, nil
}

func (d *Directory) UsersByName(_ context.Context, name string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.names[name]...), nil
}

var _ domain.Directory = (*Directory)(nil)
