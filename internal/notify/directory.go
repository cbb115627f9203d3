package notify

import (
	"context"
	"sync"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/store"
)

// StaticDirectory is an in-memory Directory for deployments without a
// patient registry.
type StaticDirectory struct {
	mu         sync.RWMutex
	patients   map[string]domain.Patient
	therapists map[string]domain.Therapist
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		patients:   make(map[string]domain.Patient),
		therapists: make(map[string]domain.Therapist),
	}
}

func (d *StaticDirectory) PutPatient(p domain.Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.Ref] = p
}

func (d *StaticDirectory) PutTherapist(t domain.Therapist) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.therapists[t.Ref] = t
}

func (d *StaticDirectory) Patient(ctx context.Context, ref string) (domain.Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[ref]
	if !ok {
		return domain.Patient{}, store.ErrNotFound
	}
	return p, nil
}

func (d *StaticDirectory) Therapist(ctx context.Context, ref string) (domain.Therapist, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.therapists[ref]
	if !ok {
		return domain.Therapist{}, store.ErrNotFound
	}
	return t, nil
}

var _ Directory = (*StaticDirectory)(nil)
