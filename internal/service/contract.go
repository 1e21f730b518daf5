package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"contractapi/internal/model"
	"contractapi/internal/repository"
	"contractapi/internal/storage"
)

var (
	ErrIDRequired       = errors.New("identifier is required")
	ErrNotFound         = errors.New("contract not found")
	ErrAlreadySigned    = errors.New("contract already signed")
	ErrMintingExhausted = errors.New("short id minting attempts exhausted")
	ErrReaderNil        = errors.New("reader is nil")
)

// maxMintAttempts bounds the mint/insert retry loop. The short-id space
// (36^8) is large enough that hitting this cap means the entropy source or
// the database is misbehaving, not that the space is full.
const maxMintAttempts = 10

const keyPrefix = "contracts"

// originalKey and signedKey derive the object-storage keys for a contract's
// payloads from its UUID. Keys are never reused because UUIDs are never
// reused, so an orphaned object from a failed insert is only wasted space.
func originalKey(id string) string {
	return fmt.Sprintf("%s/%s/original.pdf", keyPrefix, id)
}

func signedKey(id string) string {
	return fmt.Sprintf("%s/%s/signed.pdf", keyPrefix, id)
}

// ContractService defines the use cases for contract custody: taking in the
// original file, attaching the signed counterpart exactly once, and serving
// the current authoritative version to identifier holders.
type ContractService interface {
	// Upload stores the original payload and creates the contract record with
	// a freshly minted short identifier. The object write happens before the
	// row insert; if the insert fails no row exists and the orphaned object
	// is tolerated.
	Upload(ctx context.Context, clientID, contractType string, r io.Reader, size int64) (*model.Contract, error)

	// Sign stores the signed payload and applies the uploaded -> signed
	// transition. Concurrent calls on the same contract yield exactly one
	// success; the rest get ErrAlreadySigned.
	Sign(ctx context.Context, contractID, signerID string, r io.Reader, size int64) (*model.Contract, error)

	// Resolve maps a caller-supplied identifier (full UUID or short ID) to a
	// contract. Malformed and unknown identifiers are both ErrNotFound.
	Resolve(ctx context.Context, identifier string) (*model.Contract, error)

	// FetchLatest returns the signed payload when the contract is signed and
	// the object is retrievable, else falls back to the original payload.
	FetchLatest(ctx context.Context, c *model.Contract) (io.ReadCloser, model.PayloadKind, error)

	// FetchPayload returns the payload of an explicit kind, with no fallback.
	FetchPayload(ctx context.Context, c *model.Contract, kind model.PayloadKind) (io.ReadCloser, error)
}

// contractService is a concrete implementation of ContractService.
type contractService struct {
	store storage.Storage
	repo  repository.ContractRepository
	mint  shortIDSource
	now   func() time.Time
}

// NewContractService constructs a new ContractService.
func NewContractService(store storage.Storage, repo repository.ContractRepository) ContractService {
	return &contractService{
		store: store,
		repo:  repo,
		mint:  randomShortID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *contractService) Upload(ctx context.Context, clientID, contractType string, r io.Reader, size int64) (*model.Contract, error) {
	if r == nil {
		return nil, ErrReaderNil
	}

	id := uuid.New().String()

	// Object first, row second: a row must never reference an object that
	// was not written.
	if _, err := s.store.Put(ctx, originalKey(id), r, storage.PutObjectOptions{
		Size:        size,
		ContentType: "application/pdf",
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	// The short_id unique constraint is the authority on collisions; the
	// ShortIDExists pre-check inside mintShortID only keeps insert-time
	// retries rare. Either way a collision costs one more loop iteration.
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		shortID, err := s.mintShortID(ctx)
		if err != nil {
			return nil, err
		}

		stored, err := s.repo.Create(ctx, &model.Contract{
			ID:               id,
			ShortID:          shortID,
			ClientID:         clientID,
			ContractType:     contractType,
			Status:           model.StatusUploaded,
			OriginalFilePath: originalKey(id),
			CreatedAt:        s.now(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateShortID) {
				continue
			}
			return nil, fmt.Errorf("db save failed: %w", err)
		}
		return stored, nil
	}
	return nil, ErrMintingExhausted
}

func (s *contractService) Sign(ctx context.Context, contractID, signerID string, r io.Reader, size int64) (*model.Contract, error) {
	if contractID == "" {
		return nil, ErrIDRequired
	}
	if r == nil {
		return nil, ErrReaderNil
	}

	current, err := s.repo.FindByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if current.Signed() {
		return nil, ErrAlreadySigned
	}

	key := signedKey(current.ID)
	if _, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: "application/pdf",
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	// The status precondition lives in the UPDATE itself; losing the race to
	// a concurrent Sign surfaces here as ErrStaleStatus, never as a second
	// success. The object written above is then orphaned, which is fine: a
	// retried Sign would rewrite the same key.
	updated, err := s.repo.MarkSigned(ctx, current.ID, key, signerID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, ErrAlreadySigned
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *contractService) Resolve(ctx context.Context, identifier string) (*model.Contract, error) {
	if identifier == "" {
		return nil, ErrIDRequired
	}

	var (
		c   *model.Contract
		err error
	)
	switch ident := model.ClassifyIdentifier(identifier); ident.Kind {
	case model.IdentifierUUID:
		c, err = s.repo.FindByID(ctx, ident.UUID.String())
	case model.IdentifierShort:
		c, err = s.repo.FindByShortID(ctx, ident.ShortID)
	default:
		// Invalid identifiers never reach the database.
		return nil, ErrNotFound
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// FetchLatest implements the retrieval priority: a signed contract serves its
// signed payload when the object is retrievable, and otherwise degrades to
// the original rather than hard-failing on a dangling signed reference.
// Callers that need strict signed-only semantics use FetchPayload.
func (s *contractService) FetchLatest(ctx context.Context, c *model.Contract) (io.ReadCloser, model.PayloadKind, error) {
	if c.Signed() {
		rc, _, err := s.store.Get(ctx, signedKey(c.ID))
		if err == nil {
			return rc, model.PayloadSigned, nil
		}
	}
	rc, _, err := s.store.Get(ctx, originalKey(c.ID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("read from storage: %w", err)
	}
	return rc, model.PayloadOriginal, nil
}

func (s *contractService) FetchPayload(ctx context.Context, c *model.Contract, kind model.PayloadKind) (io.ReadCloser, error) {
	var key string
	switch kind {
	case model.PayloadOriginal:
		key = originalKey(c.ID)
	case model.PayloadSigned:
		if !c.Signed() {
			return nil, ErrNotFound
		}
		key = signedKey(c.ID)
	default:
		return nil, ErrNotFound
	}

	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read from storage: %w", err)
	}
	return rc, nil
}

// mintShortID draws candidate short identifiers until one passes the
// existence pre-check, bounded by maxMintAttempts.
func (s *contractService) mintShortID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		candidate, err := s.mint()
		if err != nil {
			return "", fmt.Errorf("generate short id: %w", err)
		}
		exists, err := s.repo.ShortIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrMintingExhausted
}
