package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"contractapi/internal/model"
	"contractapi/internal/repository"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

const contractColumns = `id, short_id, client_id, contract_type, status, original_file_path, signed_file_path, created_at, signed_at, signer_id`

// ContractPostgres is a PostgreSQL implementation of repository.ContractRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ContractPostgres struct {
	db *sql.DB
}

// NewContractPostgres creates a new ContractPostgres repository.
func NewContractPostgres(db *sql.DB) *ContractPostgres {
	return &ContractPostgres{db: db}
}

var _ repository.ContractRepository = (*ContractPostgres)(nil)

// Create inserts a new contract row and returns the stored record.
// A short_id unique violation is mapped to repository.ErrDuplicateShortID so
// the service can remint and retry.
func (r *ContractPostgres) Create(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	const q = `
		INSERT INTO contracts (id, short_id, client_id, contract_type, status, original_file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + contractColumns
	row := r.db.QueryRowContext(ctx, q,
		c.ID,
		c.ShortID,
		c.ClientID,
		c.ContractType,
		c.Status,
		c.OriginalFilePath,
		c.CreatedAt,
	)
	out, err := scanContract(row)
	if err != nil {
		if isShortIDViolation(err) {
			return nil, repository.ErrDuplicateShortID
		}
		return nil, err
	}
	return out, nil
}

// FindByID fetches a single contract by its primary-key UUID.
func (r *ContractPostgres) FindByID(ctx context.Context, id string) (*model.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	return scanContract(r.db.QueryRowContext(ctx, q, id))
}

// FindByShortID fetches a single contract by its unique short identifier.
func (r *ContractPostgres) FindByShortID(ctx context.Context, shortID string) (*model.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE short_id = $1`
	return scanContract(r.db.QueryRowContext(ctx, q, shortID))
}

// ShortIDExists performs a point existence check on the short_id unique index.
func (r *ContractPostgres) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM contracts WHERE short_id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, shortID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkSigned applies the uploaded -> signed transition with the status
// precondition enforced in the UPDATE itself. When the update matches no row
// it distinguishes a missing contract (sql.ErrNoRows) from one whose status
// already changed (repository.ErrStaleStatus) with a follow-up point lookup.
func (r *ContractPostgres) MarkSigned(ctx context.Context, id, signedFilePath, signerID string, signedAt time.Time) (*model.Contract, error) {
	const q = `
		UPDATE contracts
		SET status = $2, signed_file_path = $3, signed_at = $4, signer_id = $5
		WHERE id = $1 AND status = $6
		RETURNING ` + contractColumns
	row := r.db.QueryRowContext(ctx, q,
		id,
		model.StatusSigned,
		signedFilePath,
		signedAt,
		signerID,
		model.StatusUploaded,
	)
	out, err := scanContract(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	// Zero rows matched: either the row is gone or its status moved on.
	if _, lookupErr := r.FindByID(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, repository.ErrStaleStatus
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*model.Contract, error) {
	var (
		c              model.Contract
		signedFilePath sql.NullString
		signedAt       sql.NullTime
		signerID       sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.ShortID,
		&c.ClientID,
		&c.ContractType,
		&c.Status,
		&c.OriginalFilePath,
		&signedFilePath,
		&c.CreatedAt,
		&signedAt,
		&signerID,
	); err != nil {
		return nil, err
	}
	if signedFilePath.Valid {
		c.SignedFilePath = signedFilePath.String
	}
	if signedAt.Valid {
		t := signedAt.Time
		c.SignedAt = &t
	}
	if signerID.Valid {
		s := signerID.String
		c.SignerID = &s
	}
	return &c, nil
}

// isShortIDViolation matches a unique_violation on the short_id constraint.
// Violations of other constraints (the primary key in particular) are not a
// remint signal and propagate as-is.
func isShortIDViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, "short_id")
}

// IsNoRowsError reports whether err means the query matched no row.
func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
