package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// DefaultStreamKey is the Redis stream carrying every change event.
	DefaultStreamKey = "events:fibs"
	// DefaultGroup is the consumer group shared by all reactor workers.
	DefaultGroup = "reactors"

	envelopeField = "envelope"
	causeField    = "cause"
)

// Delivery is one stream entry handed to a consumer.
// Envelope is nil when the entry could not be decoded.
type Delivery struct {
	ID       string
	Raw      string
	Envelope *Envelope
	Err      error
}

// Stream is an at-least-once event bus backed by a Redis stream and a
// consumer group. Entries stay pending until acknowledged.
type Stream struct {
	client  rueidis.Client
	key     string
	deadKey string
	group   string
	logger  *zap.Logger
}

// NewStream creates a stream bus on the given key and consumer group.
func NewStream(client rueidis.Client, key, group string, logger *zap.Logger) *Stream {
	if key == "" {
		key = DefaultStreamKey
	}
	if group == "" {
		group = DefaultGroup
	}

	return &Stream{
		client:  client,
		key:     key,
		deadKey: key + ":dead",
		group:   group,
		logger:  logger.Named("event_stream"),
	}
}

// Key returns the stream key.
func (s *Stream) Key() string {
	return s.key
}

// DeadKey returns the dead-letter stream key.
func (s *Stream) DeadKey() string {
	return s.deadKey
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.client.Do(ctx,
		s.client.B().XgroupCreate().Key(s.key).Group(s.group).Id("0").Mkstream().Build(),
	).Error()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish appends an envelope to the stream and returns the entry ID.
func (s *Stream) Publish(ctx context.Context, env *Envelope) (string, error) {
	data, err := env.Marshal()
	if err != nil {
		return "", err
	}

	id, err := s.client.Do(ctx,
		s.client.B().Xadd().Key(s.key).Id("*").FieldValue().FieldValue(envelopeField, data).Build(),
	).ToString()
	if err != nil {
		return "", fmt.Errorf("failed to publish event %s: %w", env.ID, err)
	}

	return id, nil
}

// Read returns up to count entries for the consumer. With pending set it
// returns entries already delivered to this consumer but never acknowledged,
// otherwise it returns new entries, waiting up to block when block is positive.
func (s *Stream) Read(
	ctx context.Context, consumer string, count int64, block time.Duration, pending bool,
) ([]Delivery, error) {
	id := ">"
	if pending {
		id = "0"
	}

	var cmd rueidis.Completed
	if block > 0 && !pending {
		cmd = s.client.B().Xreadgroup().Group(s.group, consumer).Count(count).
			Block(block.Milliseconds()).Streams().Key(s.key).Id(id).Build()
	} else {
		cmd = s.client.B().Xreadgroup().Group(s.group, consumer).Count(count).
			Streams().Key(s.key).Id(id).Build()
	}

	streams, err := s.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	entries := streams[s.key]
	deliveries := make([]Delivery, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.FieldValues[envelopeField]
		if !ok {
			// Trimmed entries come back from the pending list without fields
			deliveries = append(deliveries, Delivery{ID: entry.ID, Err: ErrEmptyEntry})
			continue
		}

		env, err := UnmarshalEnvelope(raw)
		deliveries = append(deliveries, Delivery{ID: entry.ID, Raw: raw, Envelope: env, Err: err})
	}

	return deliveries, nil
}

// Ack acknowledges entries so they are not delivered again.
func (s *Stream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.client.Do(ctx, s.client.B().Xack().Key(s.key).Group(s.group).Id(ids...).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to ack %d entries: %w", len(ids), err)
	}
	return nil
}

// DeadLetter copies an entry to the dead-letter stream and acknowledges it.
func (s *Stream) DeadLetter(ctx context.Context, d Delivery, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	err := s.client.Do(ctx,
		s.client.B().Xadd().Key(s.deadKey).Id("*").FieldValue().
			FieldValue(envelopeField, d.Raw).
			FieldValue(causeField, reason).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to dead-letter entry %s: %w", d.ID, err)
	}

	s.logger.Warn("Moved event to dead-letter stream",
		zap.String("entryID", d.ID),
		zap.String("cause", reason))

	return s.Ack(ctx, d.ID)
}
