package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"therapia/backend/internal/domain"
	"therapia/backend/internal/store"
)

// DirectoryRepo resolves patient and therapist references against the
// registry tables. It never writes.
type DirectoryRepo struct {
	db *bun.DB
}

func NewDirectoryRepo(db *bun.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

func (r *DirectoryRepo) Patient(ctx context.Context, ref string) (domain.Patient, error) {
	var p domain.Patient
	err := r.db.NewSelect().
		Model(&p).
		Where("id = ?", ref).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Patient{}, store.ErrNotFound
		}
		return domain.Patient{}, err
	}
	return p, nil
}

func (r *DirectoryRepo) Therapist(ctx context.Context, ref string) (domain.Therapist, error) {
	var t domain.Therapist
	err := r.db.NewSelect().
		Model(&t).
		Where("id = ?", ref).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Therapist{}, store.ErrNotFound
		}
		return domain.Therapist{}, err
	}
	return t, nil
}
