package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/nats-io/nats.go"
)

const (
	SubjectUnitCompleted = "elevation.units.completed"
	SubjectUnitFailed    = "elevation.units.failed"
)

// NATSPublisher announces work units that reached a terminal state.
type NATSPublisher struct {
	conn *nats.Conn
}

func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("elevation-service"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func SubjectFor(t model.UnitEventType) (string, error) {
	switch t {
	case model.EventUnitCompleted:
		return SubjectUnitCompleted, nil
	case model.EventUnitExhausted:
		return SubjectUnitFailed, nil
	}
	return "", fmt.Errorf("unknown unit event type %q", t)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev model.UnitEvent) error {
	if p.conn == nil {
		return fmt.Errorf("not connected")
	}
	subject, err := SubjectFor(ev.Type)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal unit event: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s for unit %s: %w", subject, ev.UnitID, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.UnitEvent) error { return nil }
