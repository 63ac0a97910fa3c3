package application

import (
	"context"
	"fmt"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// AdminCapability proves the holder was verified as the owner. Admin
// operations only accept a capability obtained from RequireAdmin.
type AdminCapability struct {
	admin common.Address
}

func (c *AdminCapability) Address() common.Address {
	return c.admin
}

type adminService struct {
	*service
}

func (a *adminService) RequireAdmin(caller common.Address) (*AdminCapability, error) {
	if !a.policy.IsOwner(caller) {
		return nil, fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller)
	}
	return &AdminCapability{caller}, nil
}

func (a *adminService) GetAccessList(_ context.Context) AccessList {
	return AccessList{
		Owner:           a.policy.Owner(),
		Resolvers:       a.policy.Resolvers(),
		SupportedChains: a.policy.SupportedChains(),
	}
}

func (a *adminService) AddResolver(
	_ context.Context, capability *AdminCapability, resolver common.Address,
) error {
	if err := a.check(capability); err != nil {
		return err
	}
	if err := a.policy.AddResolver(resolver); err != nil {
		return err
	}
	log.Infof("admin %s authorized resolver %s", capability.admin, resolver)
	return nil
}

func (a *adminService) RemoveResolver(
	_ context.Context, capability *AdminCapability, resolver common.Address,
) error {
	if err := a.check(capability); err != nil {
		return err
	}
	if err := a.policy.RemoveResolver(resolver); err != nil {
		return err
	}
	log.Infof("admin %s revoked resolver %s", capability.admin, resolver)
	return nil
}

func (a *adminService) AddSupportedChain(
	_ context.Context, capability *AdminCapability, chainId uint64,
) error {
	if err := a.check(capability); err != nil {
		return err
	}
	if _, err := a.getChain(chainId); err != nil {
		return err
	}
	if err := a.policy.AddSupportedChain(chainId); err != nil {
		return err
	}
	log.Infof("admin %s enabled chain %d", capability.admin, chainId)
	return nil
}

func (a *adminService) RemoveSupportedChain(
	_ context.Context, capability *AdminCapability, chainId uint64,
) error {
	if err := a.check(capability); err != nil {
		return err
	}
	if err := a.policy.RemoveSupportedChain(chainId); err != nil {
		return err
	}
	log.Infof("admin %s disabled chain %d", capability.admin, chainId)
	return nil
}

// EmergencyWithdraw moves the whole custody of an escrow to recipient,
// bypassing the secret, once the emergency delay after expiry has elapsed.
func (a *adminService) EmergencyWithdraw(
	ctx context.Context, capability *AdminCapability, chainId uint64,
	address, recipient common.Address,
) (*domain.Escrow, error) {
	if err := a.check(capability); err != nil {
		return nil, err
	}

	escrow, err := a.escrows.settle(
		ctx, "emergency_withdraw", chainId, address,
		func(escrow *domain.Escrow, now uint64) (domain.Event, error) {
			return escrow.EmergencyWithdraw(capability.admin, recipient, a.emergencyDelay, now)
		},
	)
	if err != nil {
		return nil, err
	}

	log.Warnf("admin %s emergency withdrew escrow %s on chain %d to %s", capability.admin, address, chainId, recipient)
	return escrow, nil
}

// check rejects a capability that was not issued for the current owner.
func (a *adminService) check(capability *AdminCapability) error {
	if capability == nil || !a.policy.IsOwner(capability.admin) {
		return fmt.Errorf("%w: missing admin capability", domain.ErrUnauthorized)
	}
	return nil
}
