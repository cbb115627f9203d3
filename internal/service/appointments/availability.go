package appointments

import (
	"context"

	"github.com/google/uuid"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/store"
)

// Checker decides whether a therapist slot is already occupied by an active
// appointment.
type Checker struct {
	policy domain.ConflictPolicy
}

func NewChecker(policy domain.ConflictPolicy) *Checker {
	if policy == "" {
		policy = domain.ConflictPolicyOverlap
	}
	return &Checker{policy: policy}
}

func (c *Checker) Policy() domain.ConflictPolicy {
	return c.policy
}

// IsSlotTaken reports whether slot collides with an active appointment other
// than exclude. Unassigned slots are never taken. To make the answer binding,
// r must be the SlotTx of the transaction that will write the booking.
func (c *Checker) IsSlotTaken(ctx context.Context, r store.SlotReader, slot domain.Slot, exclude uuid.UUID) (bool, error) {
	if !slot.Assigned() {
		return false, nil
	}
	return r.SlotTaken(ctx, domain.SlotQuery{
		Slot:      slot,
		Policy:    c.policy,
		ExcludeID: exclude,
	})
}
