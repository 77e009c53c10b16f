package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/events"
)

const (
	StreamName    = "work-report-events"
	ConsumerGroup = "report-projection"
)

// Publisher is implemented by anything that can emit domain events.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// streamClient is the subset of *redis.Client the bus uses
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XPending(ctx context.Context, stream, group string) *redis.XPendingCmd
	Close() error
}

// RedisEventBus implements event bus using Redis Streams
type RedisEventBus struct {
	client     streamClient
	stream     string
	retryAfter time.Duration
	now        func() time.Time
}

// NewRedisEventBus creates a new Redis event bus
func NewRedisEventBus(host, port, password string) (*RedisEventBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisEventBus{client: client, stream: StreamName, retryAfter: 5 * time.Second, now: time.Now}, nil
}

// Publish publishes an event to the stream
func (r *RedisEventBus) Publish(ctx context.Context, event *events.Event) error {
	eventJSON, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"report_id":  event.ReportID,
			"payload":    string(eventJSON),
			"timestamp":  event.Timestamp.Format(time.RFC3339),
		},
	}

	if _, err := r.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"report_id":  event.ReportID,
	}).Debug("[EVENT] published")
	return nil
}

// CreateConsumerGroup creates a consumer group if it doesn't exist
func (r *RedisEventBus) CreateConsumerGroup(ctx context.Context, consumerGroup string) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Consume reads events for consumerGroup until ctx is cancelled. A message is
// acknowledged only after handler returns nil.
//
// The consumer's own pending entries are read first, so events left
// unacknowledged by a crash are handled again on restart. A handler failure
// schedules another pass over the pending entries after retryAfter.
func (r *RedisEventBus) Consume(ctx context.Context, consumerGroup, consumerName string, handler func(context.Context, *events.Event) error) error {
	if err := r.CreateConsumerGroup(ctx, consumerGroup); err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{"group": consumerGroup, "consumer": consumerName})
	cursor := "0"
	var retryAt time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if cursor == ">" && !retryAt.IsZero() && !r.now().Before(retryAt) {
			log.Info("[CONSUMER] retrying pending events")
			cursor = "0"
			retryAt = time.Time{}
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{r.stream, cursor},
			Count:    50,
			Block:    1 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("[CONSUMER] failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		received, failed := 0, 0
		for _, stream := range streams {
			for _, message := range stream.Messages {
				received++
				event, err := parseMessage(message)
				if err != nil {
					log.WithError(err).WithField("message_id", message.ID).Error("[CONSUMER] dropping malformed message")
					r.ack(ctx, consumerGroup, message.ID)
					continue
				}

				if err := handler(ctx, event); err != nil {
					failed++
					log.WithError(err).WithField("event_id", event.EventID).Error("[CONSUMER] failed to process event")
					continue
				}

				r.ack(ctx, consumerGroup, message.ID)
			}
		}

		if failed > 0 && retryAt.IsZero() {
			retryAt = r.now().Add(r.retryAfter)
		}
		// pending entries are exhausted or only failures remain
		if cursor == "0" && (received == 0 || failed > 0) {
			cursor = ">"
		}
	}
}

func (r *RedisEventBus) ack(ctx context.Context, consumerGroup, id string) {
	if err := r.client.XAck(ctx, r.stream, consumerGroup, id).Err(); err != nil {
		logrus.WithError(err).WithField("message_id", id).Warn("[CONSUMER] failed to acknowledge message")
	}
}

// parseMessage parses a Redis stream message into an Event
func parseMessage(message redis.XMessage) (*events.Event, error) {
	payload, ok := message.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid payload in message")
	}

	event, err := events.FromJSON([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventType == "" {
		if t, ok := message.Values["event_type"].(string); ok {
			event.EventType = t
		}
	}

	return event, nil
}

// Close closes the Redis connection
func (r *RedisEventBus) Close() error {
	return r.client.Close()
}

// GetPendingCount returns the number of pending messages
func (r *RedisEventBus) GetPendingCount(ctx context.Context, consumerGroup string) (int64, error) {
	info, err := r.client.XPending(ctx, r.stream, consumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}

// LogPublisher stands in for Redis when no broker is configured. It only
// logs the events it is given.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event *events.Event) error {
	logrus.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"report_id":  event.ReportID,
	}).Info("[EVENT] broker disabled, event not delivered")
	return nil
}
