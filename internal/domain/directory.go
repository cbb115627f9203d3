package domain

import (
	"strings"

	"github.com/uptrace/bun"
)

// Patient is the read-only view of a patient record owned by the patient
// registry.
type Patient struct {
	bun.BaseModel `bun:"table:patients,alias:p"`

	Ref       string `bun:"id,pk"`
	FirstName string `bun:"first_name"`
	LastName  string `bun:"last_name"`
	Email     string `bun:"email"`
}

func (p Patient) DisplayName() string {
	return joinName(p.FirstName, p.LastName, p.Ref)
}

// Therapist is the read-only view of a clinic user that can take sessions.
type Therapist struct {
	bun.BaseModel `bun:"table:therapists,alias:t"`

	Ref      string `bun:"id,pk"`
	FullName string `bun:"full_name"`
	Email    string `bun:"email"`
}

func (t Therapist) DisplayName() string {
	return joinName(t.FullName, "", t.Ref)
}

func joinName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return fallback
	}
	return name
}
