package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"civreg/internal/document/models"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

const pqUniqueViolation = "23505"

// Postgres persists document requests in the document_requests table. Execute
// serializes decisions per request with SELECT ... FOR UPDATE inside one
// transaction.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, r *models.Request) error {
	query := `
		INSERT INTO document_requests (
			id, citizen_id, doc_type, purpose, status, rejection_reason,
			signature_ref, stamp_ref, artifact_ref, decided_by, decided_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID), uuid.UUID(r.CitizenID), string(r.Type), r.Purpose,
		string(r.Status), r.RejectionReason, r.SignatureRef, r.StampRef,
		r.ArtifactRef, decidedByValue(r), r.DecidedAt, r.CreatedAt, r.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert document request: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, requestID id.DocumentRequestID) (*models.Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, selectRequest+` WHERE id = $1`, uuid.UUID(requestID)))
}

func (s *Postgres) ListByCitizen(ctx context.Context, citizenID id.CitizenID) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRequest+` WHERE citizen_id = $1 ORDER BY created_at, id`, uuid.UUID(citizenID))
	if err != nil {
		return nil, fmt.Errorf("list document requests: %w", sentinel.ErrUnavailable)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list document requests: %w", sentinel.ErrUnavailable)
	}
	return out, nil
}

// Execute locks the request row, runs validate then mutate, and writes the
// result back in the same transaction.
func (s *Postgres) Execute(
	ctx context.Context,
	requestID id.DocumentRequestID,
	validate func(*models.Request) error,
	mutate func(*models.Request),
) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", sentinel.ErrUnavailable)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, selectRequest+` WHERE id = $1 FOR UPDATE`, uuid.UUID(requestID))
	r, err := scanRequest(row)
	if err != nil {
		return nil, err
	}

	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)

	update := `
		UPDATE document_requests
		SET status = $2, rejection_reason = $3, signature_ref = $4,
		    stamp_ref = $5, artifact_ref = $6, decided_by = $7, decided_at = $8,
		    updated_at = $9
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(r.ID), string(r.Status), r.RejectionReason, r.SignatureRef,
		r.StampRef, r.ArtifactRef, decidedByValue(r), r.DecidedAt, r.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update document request: %w", sentinel.ErrUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document request update: %w", sentinel.ErrUnavailable)
	}
	return r, nil
}

const selectRequest = `
	SELECT id, citizen_id, doc_type, purpose, status, rejection_reason,
	       signature_ref, stamp_ref, artifact_ref, decided_by, decided_at,
	       created_at, updated_at
	FROM document_requests
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		r         models.Request
		requestID uuid.UUID
		citizenID uuid.UUID
		docType   string
		status    string
		decidedBy uuid.NullUUID
	)
	err := row.Scan(
		&requestID, &citizenID, &docType, &r.Purpose, &status,
		&r.RejectionReason, &r.SignatureRef, &r.StampRef, &r.ArtifactRef,
		&decidedBy, &r.DecidedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document request: %w", sentinel.ErrUnavailable)
	}
	r.ID = id.DocumentRequestID(requestID)
	r.CitizenID = id.CitizenID(citizenID)
	r.Type = models.DocumentType(docType)
	r.Status = models.DocumentStatus(status)
	if decidedBy.Valid {
		r.DecidedBy = id.ActorID(decidedBy.UUID)
	}
	return &r, nil
}

func decidedByValue(r *models.Request) uuid.NullUUID {
	if r.DecidedAt == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(r.DecidedBy), Valid: true}
}
