package citizen

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"civreg/internal/registration/models"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

const pqUniqueViolation = "23505"

// Postgres persists citizens in the citizens table. Execute serializes
// transitions per citizen with SELECT ... FOR UPDATE inside one transaction,
// the row-lock equivalent of the in-memory entity mutex.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, c *models.Citizen) error {
	verification, err := marshalVerification(c.Verification)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO citizens (
			id, national_id, first_name, middle_name, last_name, date_of_birth,
			gender, marital_status, employment_status, nationality, address,
			status, identity_verified, verification_data, rejection_reason,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID), c.NationalID, c.FirstName, c.MiddleName, c.LastName,
		c.DateOfBirth, c.Gender, c.MaritalStatus, c.EmploymentStatus,
		c.Nationality, c.Address, string(c.Status), c.IdentityVerified,
		verification, c.RejectionReason, c.CreatedAt, c.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert citizen: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, citizenID id.CitizenID) (*models.Citizen, error) {
	return scanCitizen(s.db.QueryRowContext(ctx, selectCitizen+` WHERE id = $1`, uuid.UUID(citizenID)))
}

func (s *Postgres) FindByNationalID(ctx context.Context, nationalID string) (*models.Citizen, error) {
	return scanCitizen(s.db.QueryRowContext(ctx, selectCitizen+` WHERE national_id = $1`, nationalID))
}

// Execute locks the citizen row, runs validate then mutate, and writes the
// result back in the same transaction. Validation failures roll back with no
// state change.
func (s *Postgres) Execute(
	ctx context.Context,
	citizenID id.CitizenID,
	validate func(*models.Citizen) error,
	mutate func(*models.Citizen),
) (*models.Citizen, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", sentinel.ErrUnavailable)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, selectCitizen+` WHERE id = $1 FOR UPDATE`, uuid.UUID(citizenID))
	c, err := scanCitizen(row)
	if err != nil {
		return nil, err
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)

	verification, err := marshalVerification(c.Verification)
	if err != nil {
		return nil, err
	}
	update := `
		UPDATE citizens
		SET status = $2, identity_verified = $3, verification_data = $4,
		    rejection_reason = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(c.ID), string(c.Status), c.IdentityVerified, verification,
		c.RejectionReason, c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update citizen: %w", sentinel.ErrUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit citizen update: %w", sentinel.ErrUnavailable)
	}
	return c, nil
}

const selectCitizen = `
	SELECT id, national_id, first_name, middle_name, last_name, date_of_birth,
	       gender, marital_status, employment_status, nationality, address,
	       status, identity_verified, verification_data, rejection_reason,
	       created_at, updated_at
	FROM citizens
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCitizen(row rowScanner) (*models.Citizen, error) {
	var (
		c            models.Citizen
		citizenID    uuid.UUID
		status       string
		verification []byte
	)
	err := row.Scan(
		&citizenID, &c.NationalID, &c.FirstName, &c.MiddleName, &c.LastName,
		&c.DateOfBirth, &c.Gender, &c.MaritalStatus, &c.EmploymentStatus,
		&c.Nationality, &c.Address, &status, &c.IdentityVerified,
		&verification, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan citizen: %w", sentinel.ErrUnavailable)
	}
	c.ID = id.CitizenID(citizenID)
	c.Status = models.RegistrationStatus(status)
	if len(verification) > 0 {
		var data models.VerificationData
		if err := json.Unmarshal(verification, &data); err != nil {
			return nil, fmt.Errorf("unmarshal verification data: %w", err)
		}
		c.Verification = &data
	}
	return &c, nil
}

func marshalVerification(v *models.VerificationData) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal verification data: %w", err)
	}
	return payload, nil
}
