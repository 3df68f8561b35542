package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/pkg/metrics"
)

const (
	// StreamName is the name of the chat feed stream.
	StreamName = "CHAT_FEED"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// Feed publishes committed messages and chat events and hands out
// per-chat subscriptions. Each subscription receives every message
// committed after it was opened, exactly once, and never messages
// belonging to another chat.
type Feed struct {
	client *Client
}

// NewFeed creates a feed on an established client.
func NewFeed(client *Client) *Feed {
	return &Feed{client: client}
}

// EnsureStream ensures the chat feed stream exists.
func (f *Feed) EnsureStream(ctx context.Context) error {
	js := f.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Committed chat messages and roster events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject a message is published on.
func MessageSubject(chatID string, sender model.SenderType) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, chatID, sender)
}

// EventSubject returns the subject a chat event is published on.
func EventSubject(chatID string, eventType model.ChatEventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, chatID, eventType)
}

// PublishMessage publishes a committed message to the feed.
func (f *Feed) PublishMessage(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = f.client.JetStream().Publish(ctx, MessageSubject(msg.ChatID, msg.SenderType), data)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.RealtimePublishesTotal.WithLabelValues("message").Inc()
	return nil
}

// PublishChatEvent publishes a roster change to the feed.
func (f *Feed) PublishChatEvent(ctx context.Context, event model.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = f.client.JetStream().Publish(ctx, EventSubject(event.ChatID, event.Type), data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.RealtimePublishesTotal.WithLabelValues("event").Inc()
	return nil
}

// SubscribeMessages delivers each message committed to the chat after the
// subscription opens. The returned function releases the subscription and
// must be called before a subscription for a different chat is opened on
// the same consumer side.
func (f *Feed) SubscribeMessages(ctx context.Context, chatID string, fn func(model.Message)) (func(), error) {
	filter := fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, chatID)

	cons, err := f.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create consumer: %v", ErrSubscription, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		var msg model.Message
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			f.client.logger.Warn("undecodable feed message",
				zap.String("subject", m.Subject()), zap.Error(err))
			return
		}
		metrics.RealtimeDeliveriesTotal.WithLabelValues("message").Inc()
		fn(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", ErrSubscription, err)
	}

	return cc.Stop, nil
}

// SubscribeChatEvents delivers roster events for all chats, used by the
// agent console to refresh its chat list.
func (f *Feed) SubscribeChatEvents(ctx context.Context, fn func(model.ChatEvent)) (func(), error) {
	filter := fmt.Sprintf("%s.*.event.>", SubjectPrefix)

	cons, err := f.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create consumer: %v", ErrSubscription, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		var event model.ChatEvent
		if err := json.Unmarshal(m.Data(), &event); err != nil {
			f.client.logger.Warn("undecodable feed event",
				zap.String("subject", m.Subject()), zap.Error(err))
			return
		}
		metrics.RealtimeDeliveriesTotal.WithLabelValues("event").Inc()
		fn(event)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", ErrSubscription, err)
	}

	return cc.Stop, nil
}
