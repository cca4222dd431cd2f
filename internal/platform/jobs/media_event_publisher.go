// Package jobs publishes background job and event messages.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/services"
)

// MediaCommittedMessage is the wire payload of a media committed event.
type MediaCommittedMessage struct {
	Kind        string    `json:"kind"`
	Index       *int      `json:"index,omitempty"`
	ID          *int      `json:"id,omitempty"`
	Image       string    `json:"image,omitempty"`
	SessionID   string    `json:"sessionId"`
	CommittedAt time.Time `json:"committedAt"`
}

// PubSubMediaEventPublisher publishes catalog media commits to a Pub/Sub topic so downstream
// consumers (CDN purges, catalog mirrors) can react.
type PubSubMediaEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.MediaEventPublisher = (*PubSubMediaEventPublisher)(nil)

// NewPubSubMediaEventPublisher constructs a Pub/Sub backed publisher.
func NewPubSubMediaEventPublisher(topic *pubsub.Topic) (*PubSubMediaEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub media publisher: topic is required")
	}
	return &PubSubMediaEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishMediaCommitted publishes event and waits for the server acknowledgement.
func (p *PubSubMediaEventPublisher) PublishMediaCommitted(ctx context.Context, event services.MediaCommittedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub media publisher: not initialised")
	}

	msg := MediaCommittedMessage{
		Kind:        string(event.Target.Kind),
		Image:       event.Image,
		SessionID:   event.SessionID,
		CommittedAt: event.CommittedAt.UTC(),
	}
	slot := event.Target.ID
	if event.Target.Kind == domain.EditKindHero {
		index := event.Target.Index
		msg.Index = &index
		slot = index
	} else {
		id := event.Target.ID
		msg.ID = &id
	}

	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal media event: %w", err)
	}
	attrs := map[string]string{
		"eventType": "catalog.media.committed",
		"kind":      msg.Kind,
		"slot":      strconv.Itoa(slot),
	}
	setAttr(attrs, "sessionId", event.SessionID)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish media event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
