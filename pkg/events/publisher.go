package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher pushes audit events onto the in-process event bus. Publishing is
// best effort: an audit failure never fails the user's request.
type Publisher struct {
	bus    message.Publisher
	topic  string
	logger *log.Logger
}

func NewPublisher(bus message.Publisher, topic string, logger *log.Logger) *Publisher {
	return &Publisher{bus: bus, topic: topic, logger: logger}
}

func (p *Publisher) Publish(event Event) {
	payload, err := json.Marshal(envelope{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		if p.logger != nil {
			p.logger.Printf("[ERROR] Failed to marshal event %s: %v", event.EventType(), err)
		}
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := p.bus.Publish(p.topic, msg); err != nil && p.logger != nil {
		p.logger.Printf("[ERROR] Failed to publish event %s: %v", event.EventType(), err)
	}
}
