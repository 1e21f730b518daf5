package repository

import (
	"context"
	"errors"
	"time"

	"contractapi/internal/model"
)

// Sentinel errors shared by all ContractRepository implementations.
var (
	// ErrDuplicateShortID is returned by Create when the row violates the
	// short_id unique constraint. The caller is expected to remint and retry;
	// the constraint, not any pre-check, is the authority on uniqueness.
	ErrDuplicateShortID = errors.New("short id already taken")

	// ErrStaleStatus is returned by MarkSigned when the conditional update
	// matched no row because the contract is no longer in the expected
	// status. It is an internal signal; callers translate it before it
	// reaches API consumers.
	ErrStaleStatus = errors.New("contract status changed concurrently")
)

// ContractRepository defines data access for contract rows using SQL only.
// No business logic here — strictly persistence operations.
type ContractRepository interface {
	// Create inserts a new contract row. Returns ErrDuplicateShortID when the
	// short_id unique constraint rejects the insert.
	Create(ctx context.Context, c *model.Contract) (*model.Contract, error)

	// FindByID returns a contract by its primary-key UUID string.
	FindByID(ctx context.Context, id string) (*model.Contract, error)

	// FindByShortID returns a contract by its unique short identifier.
	FindByShortID(ctx context.Context, shortID string) (*model.Contract, error)

	// ShortIDExists reports whether any row already uses shortID. It is an
	// optimization for the minter; Create's constraint remains authoritative.
	ShortIDExists(ctx context.Context, shortID string) (bool, error)

	// MarkSigned applies the uploaded -> signed transition as one conditional
	// update: it writes status, signed file path, signed_at and signer_id iff
	// the row's status is still "uploaded". Returns the updated contract, or
	// ErrStaleStatus when the precondition no longer holds, or sql.ErrNoRows
	// when no row with that id exists at all.
	MarkSigned(ctx context.Context, id, signedFilePath, signerID string, signedAt time.Time) (*model.Contract, error)
}
