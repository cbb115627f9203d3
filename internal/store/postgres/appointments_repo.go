package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/store"
)

const activeSlotConstraint = "appointments_active_slot_key"

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type slotTx struct {
	tx bun.IDB
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return slotTx{tx: r.db}.GetAppointment(ctx, id)
}

func (r *AppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListUpcoming(ctx context.Context, now time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("start_time >= ?", now).
		Where("status = ?", domain.AppointmentStatusPending).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListRange(ctx context.Context, start, end time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("start_time >= ?", start).
		Where("start_time <= ?", end).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByTherapist(ctx context.Context, therapistRef string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("therapist_ref = ?", therapistRef).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientRef string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("patient_ref = ?", patientRef).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) MarkConfirmationSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("confirmation_sent = TRUE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) SlotTaken(ctx context.Context, q domain.SlotQuery) (bool, error) {
	return slotTx{tx: r.db}.SlotTaken(ctx, q)
}

func (r *AppointmentRepo) InTherapistTransaction(ctx context.Context, therapistRef string, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if therapistRef != "" {
			if err := lockTherapistSchedule(ctx, tx, therapistRef); err != nil {
				return err
			}
		}
		return fn(ctx, slotTx{tx: tx})
	})
}

func lockTherapistSchedule(ctx context.Context, tx bun.Tx, therapistRef string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "therapist:"+therapistRef).Exec(ctx)
	return err
}

func (r slotTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.tx.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r slotTx) SlotTaken(ctx context.Context, q domain.SlotQuery) (bool, error) {
	if !q.Slot.Assigned() {
		return false, nil
	}

	sel := r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("therapist_ref = ?", q.Slot.TherapistRef).
		Where("status <> ?", domain.AppointmentStatusCancelled)

	if q.Policy == domain.ConflictPolicyExact {
		sel = sel.Where("start_time = ?", q.Slot.Start)
	} else {
		sel = sel.
			Where("start_time < ?", q.Slot.End()).
			Where("start_time + make_interval(mins => duration_minutes) > ?", q.Slot.Start)
	}
	if q.ExcludeID != uuid.Nil {
		sel = sel.Where("id <> ?", q.ExcludeID)
	}

	return sel.Exists(ctx)
}

func (r slotTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt

	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotConstraint {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		existing, err := r.GetAppointment(ctx, m.ID)
		if err != nil {
			return domain.Appointment{}, err
		}
		if !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}

	return m, nil
}

func (r slotTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt

	res, err := r.tx.NewUpdate().
		Model(&m).
		Column(
			"patient_ref",
			"therapist_ref",
			"start_time",
			"duration_minutes",
			"status",
			"reason",
			"notes",
			"updated_at",
		).
		WherePK().
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotConstraint {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)
