package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// keeper is an unexported service running while the main application service
// is started. It refunds escrows once their public cancellation opens and
// cancels orders once their grace period is over, both on behalf of the
// local resolver. On start it also resumes the fills of the local resolver
// whose destination escrow was never deployed.
type keeper struct {
	*service
	scheduler ports.SchedulerService

	// cache of scheduled tasks, avoid scheduling the same refund multiple times
	locker         sync.Locker
	scheduledTasks map[string]struct{}
}

func newKeeper(svc *service, scheduler ports.SchedulerService) *keeper {
	return &keeper{
		svc,
		scheduler,
		&sync.Mutex{},
		make(map[string]struct{}),
	}
}

func (k *keeper) start() error {
	k.scheduler.Start()

	ctx := context.Background()
	pending := 0
	for _, id := range k.chainIds {
		c := k.chains[id]

		orders, err := c.repoManager.Orders().GetAllOrders(ctx)
		if err != nil {
			return err
		}
		for i := range orders {
			order := &orders[i]
			if order.IsActive() {
				if err := k.scheduleOrder(c, order); err != nil {
					return err
				}
			}
			pending += k.resumeFills(ctx, c, order)
		}

		escrows, err := c.repoManager.Escrows().GetActiveEscrows(ctx)
		if err != nil {
			return err
		}
		for i := range escrows {
			if err := k.scheduleEscrow(c, &escrows[i]); err != nil {
				return err
			}
		}
	}
	metrics.PendingDestinations.Set(float64(pending))

	return nil
}

func (k *keeper) stop() {
	k.scheduler.Stop()
}

func (k *keeper) onOrderEvents(events []domain.Event) {
	if len(events) <= 0 {
		return
	}
	created, ok := events[len(events)-1].(domain.OrderCreated)
	if !ok {
		return
	}
	c, err := k.getChain(created.ChainId)
	if err != nil {
		return
	}
	order, err := c.repoManager.Orders().GetOrder(context.Background(), created.OrderHash)
	if err != nil {
		log.WithError(err).Warnf("failed to get order %s", created.OrderHash)
		return
	}
	if err := k.scheduleOrder(c, order); err != nil {
		log.WithError(err).Warnf("failed to schedule timeout cancel of order %s", order.Hash)
	}
}

func (k *keeper) onEscrowEvents(events []domain.Event) {
	if len(events) <= 0 {
		return
	}
	created, ok := events[len(events)-1].(domain.EscrowCreated)
	if !ok {
		return
	}
	c, err := k.getChain(created.ChainId)
	if err != nil {
		return
	}
	escrow, err := c.repoManager.Escrows().GetEscrow(context.Background(), created.Address)
	if err != nil {
		log.WithError(err).Warnf("failed to get escrow %s", created.Address)
		return
	}
	if err := k.scheduleEscrow(c, escrow); err != nil {
		log.WithError(err).Warnf("failed to schedule refund of escrow %s", escrow.Address)
	}
}

func (k *keeper) scheduleOrder(c *chain, order *domain.Order) error {
	hash := order.Hash
	return k.schedule(c, orderKey(hash), order.CancellableAt()+1, "order_cancel", func(ctx context.Context) error {
		_, err := k.registry.CancelOrder(ctx, c.id, hash, k.resolverAddr)
		return err
	})
}

func (k *keeper) scheduleEscrow(c *chain, escrow *domain.Escrow) error {
	address := escrow.Address
	return k.schedule(c, escrowKey(c.id, address), escrow.PublicCancelAt()+1, "escrow_refund", func(ctx context.Context) error {
		_, err := k.escrows.PublicCancel(ctx, c.id, address, k.resolverAddr)
		return err
	})
}

// schedule sets up run to be executed once the chain clock reaches at. The
// chain clock is converted to wall clock with the delay known at scheduling
// time, a task woken up too early is scheduled again.
func (k *keeper) schedule(
	c *chain, key string, at uint64, kind string, run func(ctx context.Context) error,
) error {
	k.locker.Lock()
	if _, scheduled := k.scheduledTasks[key]; scheduled {
		k.locker.Unlock()
		return nil
	}
	k.scheduledTasks[key] = struct{}{}
	k.locker.Unlock()

	task := k.createTask(c, key, at, kind, run)
	if err := k.scheduleAt(c, at, task); err != nil {
		k.removeTask(key)
		return err
	}

	log.Debugf(
		"scheduled %s of %s at %s", kind, key, time.Unix(int64(at), 0).Format("2006-01-02 15:04:05"),
	)
	return nil
}

func (k *keeper) scheduleAt(c *chain, at uint64, task func()) error {
	now := c.now()
	if at <= now {
		go task()
		return nil
	}
	return k.scheduler.ScheduleTaskOnce(k.scheduler.AddNow(int64(at-now)), task)
}

func (k *keeper) createTask(
	c *chain, key string, at uint64, kind string, run func(ctx context.Context) error,
) func() {
	var task func()
	task = func() {
		if c.now() < at {
			if err := k.scheduleAt(c, at, task); err != nil {
				k.removeTask(key)
				log.WithError(err).Warnf("failed to reschedule %s of %s", kind, key)
			}
			return
		}
		defer k.removeTask(key)

		err := run(context.Background())
		switch {
		case err == nil:
			metrics.KeeperTasks.WithLabelValues(kind, "success").Inc()
			log.Infof("keeper executed %s of %s", kind, key)
		case errors.Is(err, domain.ErrNotActive):
			metrics.KeeperTasks.WithLabelValues(kind, "skipped").Inc()
			log.Debugf("skipping %s of %s, already settled", kind, key)
		default:
			metrics.KeeperTasks.WithLabelValues(kind, "failure").Inc()
			log.WithError(err).Warnf("keeper failed to execute %s of %s", kind, key)
		}
	}
	return task
}

func (k *keeper) removeTask(key string) {
	k.locker.Lock()
	defer k.locker.Unlock()
	delete(k.scheduledTasks, key)
}

// resumeFills deploys the missing destination escrows of the fills made by
// the local resolver and returns how many are still missing.
func (k *keeper) resumeFills(ctx context.Context, src *chain, order *domain.Order) int {
	dst, err := k.getChain(order.DstChainId)
	if err != nil {
		return 0
	}

	pending := 0
	for _, fill := range order.Fills {
		if fill.Resolver != k.resolverAddr {
			continue
		}
		address, _ := k.escrows.predict(order.Hash, order.Hashlock, fill.Index, domain.EscrowRoleDestination)
		_, err := dst.repoManager.Escrows().GetEscrow(ctx, address)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrEscrowNotFound) {
			log.WithError(err).Warnf("failed to get escrow %s", address)
			continue
		}

		if _, _, err := k.resolver.ensureDestination(ctx, dst, order, fill); err != nil {
			pending++
			log.WithError(err).Warnf(
				"failed to resume destination escrow of order %s fill %d", order.Hash, fill.Index,
			)
			continue
		}
		log.Infof("resumed destination escrow of order %s fill %d from chain %d", order.Hash, fill.Index, src.id)
	}
	return pending
}
