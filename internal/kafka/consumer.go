package kafka

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/kafka/registry"

	// Blank import triggers init() in each handler file,
	// registering all event handlers into the registry.
	_ "github.com/brainwaves/notification/internal/kafka/handlers"
)

// Dispatcher applies a domain action. *application.Triggers implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, a domain.Action) error
}

// Consumer wraps the franz-go Kafka client.
type Consumer struct {
	client     *kgo.Client
	dispatcher Dispatcher
}

// New creates a Consumer with the given brokers, group ID, and topics.
func New(brokers []string, groupID string, topics []string, d Dispatcher) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, dispatcher: d}, nil
}

// Start begins polling Kafka and processing records. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	log.Info().Msg("kafka consumer started")

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("kafka fetch error")
		})

		fetches.EachRecord(func(r *kgo.Record) {
			process(ctx, c.dispatcher, r.Topic, r.Key, r.Value)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			log.Error().Err(err).Msg("kafka commit error")
		}
	}

	c.client.Close()
	log.Info().Msg("kafka consumer stopped")
}

// process maps a record to an action via the registry and dispatches it.
// Dispatch failures are logged and the offset is still committed; the blog
// actions are replayable from their source if a notification is lost.
func process(ctx context.Context, d Dispatcher, topic string, key, value []byte) {
	log.Debug().
		Str("topic", topic).
		Str("key", string(key)).
		Msg("processing kafka record")

	// notification-commands doesn't use eventType routing
	action := registry.DispatchDirect(topic, value)
	if action == nil {
		action = registry.Dispatch(topic, value)
	}
	if action == nil {
		log.Debug().Str("topic", topic).Msg("no handler matched, skipping")
		return
	}

	if err := d.Dispatch(ctx, *action); err != nil {
		log.Error().Err(err).
			Str("topic", topic).
			Str("kind", string(action.Kind)).
			Str("actor", action.ActorID).
			Str("source_event_id", action.SourceEventID).
			Msg("failed to apply blog action from kafka event")
	}
}
