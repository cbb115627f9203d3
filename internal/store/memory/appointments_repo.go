// Package memory is an in-process appointment store. It backs tests and
// single-instance deployments that run without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/store"
)

type AppointmentRepo struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]domain.Appointment
	// One admission mutex per therapist ref ever seen. Entries are never
	// evicted; the table grows with the clinic's therapist roster only.
	locks *xsync.MapOf[string, *sync.Mutex]
	now   func() time.Time
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{
		rows:  make(map[uuid.UUID]domain.Appointment),
		locks: xsync.NewMapOf[string, *sync.Mutex](),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (r *AppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	return r.filter(func(domain.Appointment) bool { return true }), nil
}

func (r *AppointmentRepo) ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return !a.StartTime.Before(now) && a.Status == domain.AppointmentStatusPending
	}), nil
}

func (r *AppointmentRepo) ListRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return !a.StartTime.Before(start) && !a.StartTime.After(end)
	}), nil
}

func (r *AppointmentRepo) ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return a.TherapistRef == therapistRef
	}), nil
}

func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error) {
	return r.filter(func(a domain.Appointment) bool {
		return a.PatientRef == patientRef
	}), nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *AppointmentRepo) MarkConfirmationSent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	a.ConfirmationSent = true
	a.UpdatedAt = r.now()
	r.rows[id] = a
	return nil
}

func (r *AppointmentRepo) SlotTaken(ctx context.Context, q domain.SlotQuery) (bool, error) {
	if !q.Slot.Assigned() {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, a := range r.rows {
		if id == q.ExcludeID || !a.Status.Active() {
			continue
		}
		if q.Slot.Conflicts(a.Slot(), q.Policy) {
			return true, nil
		}
	}
	return false, nil
}

func (r *AppointmentRepo) InTherapistTransaction(ctx context.Context, therapistRef string, fn func(ctx context.Context, tx store.SlotTx) error) error {
	if therapistRef != "" {
		lock, _ := r.locks.LoadOrCompute(therapistRef, func() *sync.Mutex { return &sync.Mutex{} })
		lock.Lock()
		defer lock.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, slotTx{repo: r})
}

func (r *AppointmentRepo) filter(keep func(domain.Appointment) bool) []domain.Appointment {
	r.mu.RLock()
	out := make([]domain.Appointment, 0, len(r.rows))
	for _, a := range r.rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// slotOccupied mirrors the appointments_active_slot_key unique index of the
// Postgres schema. Callers must hold r.mu.
func (r *AppointmentRepo) slotOccupied(appt domain.Appointment) bool {
	if appt.TherapistRef == "" || !appt.Status.Active() {
		return false
	}
	for id, a := range r.rows {
		if id == appt.ID || !a.Status.Active() {
			continue
		}
		if a.TherapistRef == appt.TherapistRef && a.StartTime.Equal(appt.StartTime) {
			return true
		}
	}
	return false
}

type slotTx struct {
	repo *AppointmentRepo
}

func (t slotTx) SlotTaken(ctx context.Context, q domain.SlotQuery) (bool, error) {
	return t.repo.SlotTaken(ctx, q)
}

func (t slotTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return t.repo.Get(ctx, id)
}

func (t slotTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.ID != uuid.Nil {
		if existing, ok := r.rows[appt.ID]; ok {
			if !existing.SameBooking(appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	if r.slotOccupied(appt) {
		return domain.Appointment{}, store.ErrConflict
	}

	now := r.now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	r.rows[appt.ID] = appt
	return appt, nil
}

func (t slotTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if r.slotOccupied(appt) {
		return domain.Appointment{}, store.ErrConflict
	}

	existing.PatientRef = appt.PatientRef
	existing.TherapistRef = appt.TherapistRef
	existing.StartTime = appt.StartTime
	existing.DurationMinutes = appt.DurationMinutes
	existing.Status = appt.Status
	existing.Reason = appt.Reason
	existing.Notes = appt.Notes
	existing.UpdatedAt = r.now()
	r.rows[appt.ID] = existing
	return existing, nil
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)
