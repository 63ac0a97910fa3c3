package application

import (
	"context"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// secretRelay claims, on behalf of the local resolver, the escrows unlocked
// by a secret revealed by a withdrawal on another chain.
type secretRelay struct {
	*service
}

func (r *secretRelay) onEscrowEvents(events []domain.Event) {
	if r.resolverAddr == (common.Address{}) || len(events) <= 0 {
		return
	}
	withdrawn, ok := events[len(events)-1].(domain.EscrowWithdrawn)
	if !ok || len(withdrawn.Secret) <= 0 {
		return
	}
	r.claim(context.Background(), withdrawn)
}

func (r *secretRelay) claim(ctx context.Context, revealed domain.EscrowWithdrawn) {
	for _, id := range r.chainIds {
		if id == revealed.ChainId {
			continue
		}
		c := r.chains[id]

		escrows, err := c.repoManager.Escrows().GetEscrowsByOrder(ctx, revealed.OrderHash)
		if err != nil {
			log.WithError(err).Warnf("failed to list escrows of order %s on chain %d", revealed.OrderHash, id)
			continue
		}
		for _, escrow := range escrows {
			if !escrow.IsActive() ||
				escrow.Hashlock != revealed.Hashlock ||
				escrow.Beneficiary != r.resolverAddr {
				continue
			}

			var err error
			if escrow.IsExpired(c.now()) {
				_, err = r.escrows.PublicWithdraw(ctx, id, escrow.Address, revealed.Secret, r.resolverAddr)
			} else {
				_, err = r.escrows.Withdraw(ctx, id, escrow.Address, revealed.Secret, r.resolverAddr, r.resolverAddr)
			}
			if err != nil {
				metrics.RelayedSecrets.WithLabelValues("failure").Inc()
				log.WithError(err).Warnf("failed to claim escrow %s on chain %d", escrow.Address, id)
				continue
			}
			metrics.RelayedSecrets.WithLabelValues("success").Inc()
			log.Infof(
				"claimed escrow %s on chain %d with secret revealed on chain %d",
				escrow.Address, id, revealed.ChainId,
			)
		}
	}
}
