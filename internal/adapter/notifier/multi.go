package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/semmidev/dumpcycle/internal/domain"
)

type Logger interface {
	Warnf(template string, args ...interface{})
}

// Channel is a notifier that can name itself in log lines.
type Channel interface {
	domain.Notifier
	Name() string
}

// Multi fans a notification out to every configured channel. One failing
// channel does not stop delivery to the rest.
type Multi struct {
	channels []Channel
	logger   Logger
}

func NewMulti(logger Logger, channels ...Channel) *Multi {
	return &Multi{channels: channels, logger: logger}
}

func (m *Multi) Add(ch Channel) {
	m.channels = append(m.channels, ch)
}

func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, subject, body); err != nil {
			if m.logger != nil {
				m.logger.Warnf("notification via %s failed: %v", ch.Name(), err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases channels holding connections.
func (m *Multi) Close() {
	for _, ch := range m.channels {
		if c, ok := ch.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
