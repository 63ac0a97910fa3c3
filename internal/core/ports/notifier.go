package ports

import (
	"context"

	"github.com/13x54n/multiverse/internal/core/domain"
)

// Notifier forwards state transitions to off-chain observers.
type Notifier interface {
	Notify(ctx context.Context, events []domain.Event) error
	Close()
}
