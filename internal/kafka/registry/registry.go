// Package registry maps Kafka records to domain actions. Each handler file
// registers itself via init(), so the consumer never changes when a new
// event type is added.
package registry

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
)

// EventHandler maps raw Kafka message bytes to a domain action.
// Returning nil means "skip this event".
type EventHandler func(data []byte) *domain.Action

var handlers = map[string]EventHandler{}

// Register binds a handler to a {topic}:{eventType} key.
// Panics on duplicate registration to catch wiring mistakes at startup.
func Register(topic, eventType string, h EventHandler) {
	key := topic + ":" + eventType
	if _, exists := handlers[key]; exists {
		panic("registry: duplicate handler registered for key: " + key)
	}
	handlers[key] = h
}

// Dispatch calls the handler for topic and the record's "eventType" field.
// Returns nil if no handler matches or data cannot be parsed.
func Dispatch(topic string, data []byte) *domain.Action {
	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Warn().Str("topic", topic).Err(err).Msg("registry: failed to read eventType")
		return nil
	}

	key := topic + ":" + envelope.EventType
	h, ok := handlers[key]
	if !ok {
		log.Debug().Str("key", key).Msg("registry: no handler registered")
		return nil
	}
	return h(data)
}

// DispatchDirect calls the handler registered for a topic without eventType
// routing, as used by notification-commands.
func DispatchDirect(topic string, data []byte) *domain.Action {
	h, ok := handlers[topic+":"]
	if !ok {
		return nil
	}
	return h(data)
}
