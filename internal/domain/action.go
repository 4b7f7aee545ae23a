package domain

// ActionKind is a blog domain action that may create or remove notifications.
type ActionKind string

const (
	ActionLike      ActionKind = "LIKE"
	ActionUnlike    ActionKind = "UNLIKE"
	ActionComment   ActionKind = "COMMENT"
	ActionUncomment ActionKind = "UNCOMMENT"
	ActionReply     ActionKind = "REPLY"
	ActionFollow    ActionKind = "FOLLOW"
	ActionUnfollow  ActionKind = "UNFOLLOW"
	ActionSystem    ActionKind = "SYSTEM"
)

// Action is the transport-neutral form of a domain action, produced by the
// Kafka handlers and consumed by application.Triggers.
//
// Field use by kind:
//   - LIKE, UNLIKE:          ActorID, PostID
//   - COMMENT:               ActorID, PostID, CommentID, Content
//   - UNCOMMENT:             ActorID, PostID, CommentID
//   - REPLY:                 ActorID, ParentCommentID, CommentID, Content
//   - FOLLOW, UNFOLLOW:      ActorID, TargetUserID
//   - SYSTEM:                TargetUserID, Content, Metadata
type Action struct {
	Kind            ActionKind
	ActorID         string
	TargetUserID    string
	PostID          string
	CommentID       string
	ParentCommentID string
	Content         string
	Metadata        map[string]any
	SourceEventID   string
}
