package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
)

// Triggers turns blog actions into notifications. Each helper resolves the
// recipient from the content directory and delegates to the creation engine;
// likes go through the Batcher when one is configured.
type Triggers struct {
	svc        *Service
	batch      *Batcher
	dir        domain.Directory
	contentMax int
}

// NewTriggers wires the helpers. batch may be nil, in which case likes are
// created synchronously.
func NewTriggers(svc *Service, batch *Batcher, dir domain.Directory, contentMax int) *Triggers {
	if contentMax <= 0 {
		contentMax = 100
	}
	return &Triggers{svc: svc, batch: batch, dir: dir, contentMax: contentMax}
}

// NotifyOnLike notifies the post's author of a like.
func (t *Triggers) NotifyOnLike(ctx context.Context, postID, likerID string) error {
	authorID, err := t.dir.PostAuthor(ctx, postID)
	if err != nil || authorID == "" {
		return err
	}
	in := domain.CreateNotificationInput{
		UserID:  authorID,
		ActorID: domain.Ref(likerID),
		Type:    domain.TypeLike,
		PostID:  domain.Ref(postID),
	}
	if t.batch != nil {
		return t.batch.Queue(ctx, in)
	}
	_, err = t.svc.Create(ctx, in)
	return err
}

// NotifyOnComment notifies the post's author of a new comment.
func (t *Triggers) NotifyOnComment(ctx context.Context, postID, commenterID, content, commentID string) (*domain.Notification, error) {
	authorID, err := t.dir.PostAuthor(ctx, postID)
	if err != nil || authorID == "" {
		return nil, err
	}
	return t.svc.Create(ctx, domain.CreateNotificationInput{
		UserID:    authorID,
		ActorID:   domain.Ref(commenterID),
		Type:      domain.TypeComment,
		Content:   domain.Ref(truncate(content, t.contentMax)),
		PostID:    domain.Ref(postID),
		CommentID: domain.Ref(commentID),
	})
}

// NotifyOnReply notifies the parent comment's author. The post id is taken
// from the parent comment.
func (t *Triggers) NotifyOnReply(ctx context.Context, parentCommentID, replierID, content, replyID string) (*domain.Notification, error) {
	authorID, postID, err := t.dir.CommentAuthor(ctx, parentCommentID)
	if err != nil || authorID == "" {
		return nil, err
	}
	return t.svc.Create(ctx, domain.CreateNotificationInput{
		UserID:    authorID,
		ActorID:   domain.Ref(replierID),
		Type:      domain.TypeReply,
		Content:   domain.Ref(truncate(content, t.contentMax)),
		PostID:    domain.Ref(postID),
		CommentID: domain.Ref(replyID),
	})
}

// NotifyOnFollow notifies the followed user.
func (t *Triggers) NotifyOnFollow(ctx context.Context, followedUserID, followerID string) (*domain.Notification, error) {
	return t.svc.Create(ctx, domain.CreateNotificationInput{
		UserID:  followedUserID,
		ActorID: domain.Ref(followerID),
		Type:    domain.TypeFollow,
	})
}

// NotifyOnMention notifies a mentioned user. commentID may be empty.
func (t *Triggers) NotifyOnMention(ctx context.Context, mentionedUserID, mentionerID, postID, commentID string) (*domain.Notification, error) {
	return t.svc.Create(ctx, domain.CreateNotificationInput{
		UserID:    mentionedUserID,
		ActorID:   domain.Ref(mentionerID),
		Type:      domain.TypeMention,
		PostID:    domain.Ref(postID),
		CommentID: domain.Ref(commentID),
	})
}

// NotifyMentions resolves every distinct @name in text and notifies each
// matching user once. Unknown names are skipped. Returns how many
// notifications were created or already existed.
func (t *Triggers) NotifyMentions(ctx context.Context, text, mentionerID, postID, commentID string) (int, error) {
	names := ExtractMentions(text)
	if len(names) == 0 {
		return 0, nil
	}

	notified := make(map[string]struct{})
	for _, name := range names {
		ids, err := t.dir.UsersByName(ctx, name)
		if err != nil {
			return len(notified), fmt.Errorf("resolve mention @%s: %w", name, err)
		}
		if len(ids) == 0 {
			log.Debug().Str("name", name).Msg("mention did not resolve to a user")
			continue
		}
		for _, id := range ids {
			if _, ok := notified[id]; ok {
				continue
			}
			n, err := t.NotifyOnMention(ctx, id, mentionerID, postID, commentID)
			if err != nil {
				return len(notified), err
			}
			if n != nil {
				notified[id] = struct{}{}
			}
		}
	}
	return len(notified), nil
}

// NotifySystem sends an actor-less notification to userID.
func (t *Triggers) NotifySystem(ctx context.Context, userID, content string, metadata map[string]any) (*domain.Notification, error) {
	return t.svc.Create(ctx, domain.CreateNotificationInput{
		UserID:   userID,
		Type:     domain.TypeSystem,
		Content:  domain.Ref(content),
		Metadata: metadata,
	})
}

// RemoveLike deletes the like notification, including one still queued.
func (t *Triggers) RemoveLike(ctx context.Context, postID, likerID string) error {
	authorID, err := t.dir.PostAuthor(ctx, postID)
	if err != nil || authorID == "" {
		return err
	}
	key := domain.RemovalKey{
		UserID:  authorID,
		ActorID: likerID,
		Type:    domain.TypeLike,
		PostID:  domain.Ref(postID),
	}
	if t.batch != nil {
		t.batch.Discard(key)
	}
	_, err = t.svc.RemoveMatching(ctx, key)
	return err
}

// RemoveComment deletes the notification a removed comment produced: COMMENT
// for a top-level comment, REPLY when parentCommentID is set.
func (t *Triggers) RemoveComment(ctx context.Context, postID, commenterID, commentID, parentCommentID string) error {
	var (
		recipient string
		typ       = domain.TypeComment
		err       error
	)
	if parentCommentID != "" {
		typ = domain.TypeReply
		recipient, _, err = t.dir.CommentAuthor(ctx, parentCommentID)
	} else {
		recipient, err = t.dir.PostAuthor(ctx, postID)
	}
	if err != nil || recipient == "" {
		return err
	}
	_, err = t.svc.RemoveMatching(ctx, domain.RemovalKey{
		UserID:    recipient,
		ActorID:   commenterID,
		Type:      typ,
		CommentID: domain.Ref(commentID),
	})
	return err
}

// RemoveFollow deletes the follow notification.
func (t *Triggers) RemoveFollow(ctx context.Context, followedUserID, followerID string) error {
	_, err := t.svc.RemoveMatching(ctx, domain.RemovalKey{
		UserID:  followedUserID,
		ActorID: followerID,
		Type:    domain.TypeFollow,
	})
	return err
}

// Dispatch routes a domain action to its helper. Comments and replies also
// notify the users they mention.
func (t *Triggers) Dispatch(ctx context.Context, a domain.Action) error {
	switch a.Kind {
	case domain.ActionLike:
		return t.NotifyOnLike(ctx, a.PostID, a.ActorID)
	case domain.ActionUnlike:
		return t.RemoveLike(ctx, a.PostID, a.ActorID)
	case domain.ActionComment:
		if _, err := t.NotifyOnComment(ctx, a.PostID, a.ActorID, a.Content, a.CommentID); err != nil {
			return err
		}
		_, err := t.NotifyMentions(ctx, a.Content, a.ActorID, a.PostID, a.CommentID)
		return err
	case domain.ActionUncomment:
		return t.RemoveComment(ctx, a.PostID, a.ActorID, a.CommentID, a.ParentCommentID)
	case domain.ActionReply:
		if _, err := t.NotifyOnReply(ctx, a.ParentCommentID, a.ActorID, a.Content, a.CommentID); err != nil {
			return err
		}
		postID := a.PostID
		if postID == "" {
			var err error
			if _, postID, err = t.dir.CommentAuthor(ctx, a.ParentCommentID); err != nil {
				return err
			}
		}
		_, err := t.NotifyMentions(ctx, a.Content, a.ActorID, postID, a.CommentID)
		return err
	case domain.ActionFollow:
		_, err := t.NotifyOnFollow(ctx, a.TargetUserID, a.ActorID)
		return err
	case domain.ActionUnfollow:
		return t.RemoveFollow(ctx, a.TargetUserID, a.ActorID)
	case domain.ActionSystem:
		_, err := t.NotifySystem(ctx, a.TargetUserID, a.Content, a.Metadata)
		return err
	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, a.Kind)
	}
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
