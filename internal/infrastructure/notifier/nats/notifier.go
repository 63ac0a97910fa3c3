package natsnotifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/metrics"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSubjectPrefix = "swap"
	connectTimeout       = 10 * time.Second
	reconnectWait        = 5 * time.Second
	flushTimeout         = 2 * time.Second
)

type notifier struct {
	conn   *nats.Conn
	prefix string
}

// NewNotifier connects to the NATS server at url. Events are published as
// JSON to <prefix>.<chainId>.<EventType>.
func NewNotifier(url, prefix string) (ports.Notifier, error) {
	if len(url) <= 0 {
		return nil, fmt.Errorf("missing nats url")
	}
	if len(prefix) <= 0 {
		prefix = defaultSubjectPrefix
	}

	conn, err := nats.Connect(url,
		nats.Name("multiverse-resolverd"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("nats connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &notifier{conn, prefix}, nil
}

func (n *notifier) Notify(ctx context.Context, events []domain.Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", event.GetType(), err)
		}
		if err := n.conn.Publish(Subject(n.prefix, event), payload); err != nil {
			return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
		}
	}

	timeout := flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil
	}
	return n.conn.FlushTimeout(timeout)
}

func (n *notifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

// Subject is the NATS subject an event is published on.
func Subject(prefix string, event domain.Event) string {
	return fmt.Sprintf("%s.%d.%s", prefix, event.GetChainId(), event.GetType())
}
