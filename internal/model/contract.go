package model

import "time"

// Status is the lifecycle state of a contract. The only legal transition is
// StatusUploaded -> StatusSigned; there is no transition out of StatusSigned.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusSigned   Status = "signed"
)

// PayloadKind identifies which stored file of a contract is meant.
type PayloadKind string

const (
	PayloadOriginal PayloadKind = "original"
	PayloadSigned   PayloadKind = "signed"
)

// Contract represents one custody record: an original file uploaded by a
// client system and, once signing happens, its signed counterpart.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
type Contract struct {
	ID           string `json:"contract_id"`
	ShortID      string `json:"short_id"`
	ClientID     string `json:"client_id"`
	ContractType string `json:"contract_type"`
	Status       Status `json:"status"`

	// Object-storage keys. OriginalFilePath is set at creation and never
	// changes; SignedFilePath stays empty until the contract is signed.
	OriginalFilePath string `json:"-"`
	SignedFilePath   string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	SignerID  *string    `json:"signer_id,omitempty"`
}

// Signed reports whether the contract has reached its terminal state.
func (c *Contract) Signed() bool {
	return c.Status == StatusSigned
}
