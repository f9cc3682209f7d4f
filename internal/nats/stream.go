package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/lumenhq/agent-platform/internal/model"
)

const (
	// StreamName is the name of the pipeline event stream.
	StreamName = "AGENT_EVENTS"

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix = "agents"
)

// StreamManager handles JetStream stream operations for pipeline events.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the event stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat pipeline events: approvals, conversations, messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a pipeline event.
func EventSubject(organizationID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, organizationID, conversationID, eventType)
}

// OrganizationFilter returns the filter subject for all events of an
// organization.
func OrganizationFilter(organizationID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, organizationID)
}

// ConversationFilter returns the filter subject for all events in a
// conversation.
func ConversationFilter(organizationID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, organizationID, conversationID)
}

// PublishEvent publishes a pipeline event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := EventSubject(event.OrganizationID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}
