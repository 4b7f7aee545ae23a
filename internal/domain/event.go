package domain

// EventKind tags a realtime change to a user's notification set.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is pushed on the recipient's channel after the store write and
// cache invalidation have completed.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Notification *Notification `json:"notification"`
}

// ChannelPrefix is prepended to a user id to form its realtime channel.
const ChannelPrefix = "notifications:user:"

// Channel returns the realtime channel identifier for a recipient.
func Channel(userID string) string {
	return ChannelPrefix + userID
}
