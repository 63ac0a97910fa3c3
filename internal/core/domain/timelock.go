package domain

import (
	"fmt"
	"math"
)

const (
	EscrowPrivatePhase EscrowPhase = iota
	EscrowPublicPhase
)

type EscrowPhase int

func (p EscrowPhase) String() string {
	switch p {
	case EscrowPublicPhase:
		return "PUBLIC"
	default:
		return "PRIVATE"
	}
}

// TimelockExpiry returns createdAt + duration, rejecting zero durations and
// values that don't fit the time representation.
func TimelockExpiry(createdAt, duration uint64) (uint64, error) {
	if duration == 0 {
		return 0, fmt.Errorf("%w: duration must be greater than 0", ErrInvalidTimelock)
	}
	if createdAt > math.MaxUint64-duration {
		return 0, ErrTimelockOverflow
	}
	return createdAt + duration, nil
}

// IsExpired reports whether now is strictly after createdAt + duration.
// The boundary instant itself still belongs to the private window.
func IsExpired(createdAt, duration, now uint64) bool {
	return now > addSaturating(createdAt, duration)
}

func IsBeforeDeadline(deadline, now uint64) bool {
	return now <= deadline
}

func PhaseAt(createdAt, duration, now uint64) EscrowPhase {
	if IsExpired(createdAt, duration, now) {
		return EscrowPublicPhase
	}
	return EscrowPrivatePhase
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
