package handlers

import (
	"github.com/brainwaves/notification/internal/kafka/registry"
)

// Topics consumed by the service.
const (
	TopicBlogEvents = "blog-events"
	TopicCommands   = "notification-commands"
)

// Register is a convenience alias so each domain file calls Register(...)
// instead of registry.Register(...).
func Register(topic, eventType string, h registry.EventHandler) {
	registry.Register(topic, eventType, h)
}

// RegisterDirect registers a handler for topics that don't use eventType routing.
func RegisterDirect(topic string, h registry.EventHandler) {
	registry.Register(topic, "", h)
}
