package messages

// ─── Activity ────────────────────────────────────────────────────────────────

const (
	LikeTitle = "New like"
	LikeBody  = "%s liked your post %s."

	CommentTitle = "New comment"
	CommentBody  = "%s commented on %s: %s"

	ReplyTitle = "New reply"
	ReplyBody  = "%s replied to your comment: %s"

	FollowTitle = "New follower"
	FollowBody  = "%s started following you."

	MentionTitle = "You were mentioned"
	MentionBody  = "%s mentioned you in %s."
)

// ─── System ──────────────────────────────────────────────────────────────────

const (
	SystemTitle = "Announcement"

	fallbackActor = "Someone"
	fallbackPost  = "a post"
)
