package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civreg/internal/registry"
	"civreg/pkg/platform/sentinel"
)

// Postgres serves lookups from the mirrored registry extract table. Read-only:
// the extract is loaded by an external sync job, never written by the engine.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByNationalID(ctx context.Context, nationalID string) (registry.Record, error) {
	query := `
		SELECT national_id, first_name, middle_name, last_name, date_of_birth,
		       gender, household, ward, district, biometrics
		FROM identity_registry
		WHERE national_id = $1
	`
	var r registry.Record
	err := s.db.QueryRowContext(ctx, query, nationalID).Scan(
		&r.NationalID, &r.FirstName, &r.MiddleName, &r.LastName, &r.DateOfBirth,
		&r.Gender, &r.Household, &r.Ward, &r.District, &r.Biometrics,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, fmt.Errorf("query identity registry: %w", sentinel.ErrUnavailable)
	}
	return r, nil
}
