package noopnotifier

import (
	"context"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type notifier struct{}

// NewNotifier returns a notifier that only logs the events at debug level.
func NewNotifier() ports.Notifier {
	return notifier{}
}

func (notifier) Notify(_ context.Context, events []domain.Event) error {
	for _, event := range events {
		log.Debugf("event %s on chain %d", event.GetType(), event.GetChainId())
	}
	return nil
}

func (notifier) Close() {}
