package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

var errNilPublisher = errors.New("nats publisher not initialized")

type publishConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NatsPublisher sends JSON-encoded job events over core NATS.
type NatsPublisher struct {
	nc publishConn
}

// NewNatsPublisher dials NATS at the provided URL.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	opts := []nats.Option{
		nats.Name("modhost-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (p *NatsPublisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}

// PublishJobEvent encodes evt and publishes it on Subject(evt.Status).
func (p *NatsPublisher) PublishJobEvent(_ context.Context, evt JobEvent) error {
	if p == nil || p.nc == nil {
		return errNilPublisher
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(evt.Status), data)
}
