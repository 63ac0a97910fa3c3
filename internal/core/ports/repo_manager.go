package ports

import "github.com/13x54n/multiverse/internal/core/domain"

type RepoManager interface {
	Orders() domain.OrderRepository
	Escrows() domain.EscrowRepository
	Close()
}
