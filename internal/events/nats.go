package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsConn is the slice of *nats.Conn the bus uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
}

// NATSBus publishes events as core NATS messages.
type NATSBus struct {
	nc natsConn
}

// ConnectNATS dials url and returns a bus over the connection.
func ConnectNATS(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("gallery"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{nc: nc}, nil
}

func (b *NATSBus) Publish(_ context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	return b.nc.Publish(Subject(e.Type), payload)
}

// Subscribe delivers every gallery event to handler until ctx is done.
func (b *NATSBus) Subscribe(ctx context.Context, handler func(Event)) error {
	sub, err := b.nc.Subscribe(natsWildcard, func(msg *nats.Msg) {
		dispatch("nats", msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("subscribe nats: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close drains in-flight messages and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
