package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATS publishes each notification as a JSON Event on a core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject string, opts ...nats.Option) (*NATS, error) {
	opts = append([]nats.Option{nats.Name("dumpcycle"), nats.Timeout(5 * time.Second)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Notify(ctx context.Context, subject, body string) error {
	data, err := json.Marshal(newEvent(subject, body))
	if err != nil {
		return fmt.Errorf("failed to marshal nats event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish nats event: %w", err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush nats event: %w", err)
	}
	return nil
}

func (n *NATS) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
