package handlers

import (
	"encoding/json"

	"github.com/brainwaves/notification/internal/domain"
)

func init() {
	Register(TopicBlogEvents, "LIKE_CREATED", blogHandler(domain.ActionLike))
	Register(TopicBlogEvents, "LIKE_REMOVED", blogHandler(domain.ActionUnlike))
	Register(TopicBlogEvents, "COMMENT_CREATED", blogHandler(domain.ActionComment))
	Register(TopicBlogEvents, "COMMENT_REMOVED", blogHandler(domain.ActionUncomment))
	Register(TopicBlogEvents, "REPLY_CREATED", blogHandler(domain.ActionReply))
	Register(TopicBlogEvents, "FOLLOW_CREATED", blogHandler(domain.ActionFollow))
	Register(TopicBlogEvents, "FOLLOW_REMOVED", blogHandler(domain.ActionUnfollow))
}

type blogEnv struct {
	EventType string `json:"eventType"`
	EventID   string `json:"eventId"`
	Payload   struct {
		ActorID         string `json:"actorId"`
		PostID          string `json:"postId"`
		CommentID       string `json:"commentId"`
		ParentCommentID string `json:"parentCommentId"`
		TargetUserID    string `json:"targetUserId"`
		Content         string `json:"content"`
	} `json:"payload"`
}

func blogHandler(kind domain.ActionKind) func([]byte) *domain.Action {
	return func(data []byte) *domain.Action {
		var env blogEnv
		if err := json.Unmarshal(data, &env); err != nil {
			return nil
		}
		p := env.Payload
		a := &domain.Action{
			Kind:            kind,
			ActorID:         p.ActorID,
			TargetUserID:    p.TargetUserID,
			PostID:          p.PostID,
			CommentID:       p.CommentID,
			ParentCommentID: p.ParentCommentID,
			Content:         p.Content,
			SourceEventID:   env.EventID,
		}
		if !complete(a) {
			return nil
		}
		return a
	}
}

// complete reports whether a carries the fields its kind needs.
func complete(a *domain.Action) bool {
	if a.ActorID == "" {
		return false
	}
	switch a.Kind {
	case domain.ActionLike, domain.ActionUnlike:
		return a.PostID != ""
	case domain.ActionComment:
		return a.PostID != "" && a.CommentID != ""
	case domain.ActionUncomment:
		return a.CommentID != "" && (a.PostID != "" || a.ParentCommentID != "")
	case domain.ActionReply:
		return a.ParentCommentID != "" && a.CommentID != ""
	case domain.ActionFollow, domain.ActionUnfollow:
		return a.TargetUserID != ""
	default:
		return false
	}
}
