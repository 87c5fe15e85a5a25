package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes every event on "<prefix>.<eventType>".
type NATSSink struct {
	pub    Publisher
	prefix string
}

func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "quiz.events"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// ConnectNATS dials the broker with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(_ context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := s.prefix + "." + e.Type
	if err := s.pub.Publish(subject, raw); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
