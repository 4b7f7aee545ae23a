// Package messages renders the human-readable title and body of a notification.
package messages

import (
	"fmt"
	"strconv"

	"github.com/brainwaves/notification/internal/domain"
)

// Render returns the title and body shown for n. Actor and post summaries are
// used when loaded; otherwise neutral placeholders are substituted.
func Render(n *domain.Notification) (string, string) {
	actor := actorName(n)
	content := domain.Deref(n.Content)

	switch n.Type {
	case domain.TypeLike:
		return LikeTitle, fmt.Sprintf(LikeBody, actor, postTitle(n))
	case domain.TypeComment:
		return CommentTitle, fmt.Sprintf(CommentBody, actor, postTitle(n), content)
	case domain.TypeReply:
		return ReplyTitle, fmt.Sprintf(ReplyBody, actor, content)
	case domain.TypeFollow:
		return FollowTitle, fmt.Sprintf(FollowBody, actor)
	case domain.TypeMention:
		return MentionTitle, fmt.Sprintf(MentionBody, actor, postTitle(n))
	case domain.TypeSystem:
		return SystemTitle, content
	default:
		return string(n.Type), content
	}
}

func actorName(n *domain.Notification) string {
	if n.Actor != nil && n.Actor.Name != "" {
		return n.Actor.Name
	}
	return fallbackActor
}

func postTitle(n *domain.Notification) string {
	if n.Post != nil && n.Post.Title != "" {
		return strconv.Quote(n.Post.Title)
	}
	return fallbackPost
}
