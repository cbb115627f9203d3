package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConflictPolicy selects how two slots of the same therapist are compared.
type ConflictPolicy string

const (
	// ConflictPolicyOverlap treats slots as half-open [start, start+duration)
	// intervals and reports a conflict when they intersect.
	ConflictPolicyOverlap ConflictPolicy = "overlap"
	// ConflictPolicyExact only reports a conflict for identical start instants.
	ConflictPolicyExact ConflictPolicy = "exact"
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConflictPolicyOverlap:
		return ConflictPolicyOverlap, nil
	case ConflictPolicyExact:
		return ConflictPolicyExact, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// Slot is the unit of conflict detection for a therapist.
type Slot struct {
	TherapistRef string
	Start        time.Time
	Duration     time.Duration
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Assigned reports whether the slot belongs to a therapist. Unassigned slots
// never conflict with anything.
func (s Slot) Assigned() bool {
	return s.TherapistRef != ""
}

func (s Slot) Conflicts(other Slot, policy ConflictPolicy) bool {
	if !s.Assigned() || s.TherapistRef != other.TherapistRef {
		return false
	}
	if policy == ConflictPolicyExact {
		return s.Start.Equal(other.Start)
	}
	if s.Start.Equal(other.Start) {
		return true
	}
	return s.Start.Before(other.End()) && s.End().After(other.Start)
}

// SlotQuery asks whether any active appointment other than ExcludeID
// occupies Slot under Policy.
type SlotQuery struct {
	Slot      Slot
	Policy    ConflictPolicy
	ExcludeID uuid.UUID
}
