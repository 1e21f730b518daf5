package model

import "github.com/google/uuid"

// IdentifierKind tags the result of classifying a caller-supplied identifier.
type IdentifierKind int

const (
	// IdentifierInvalid means the string can denote no contract; no lookup
	// should be performed for it.
	IdentifierInvalid IdentifierKind = iota
	// IdentifierUUID is the 36-character canonical UUID form.
	IdentifierUUID
	// IdentifierShort is the 8-character share-link alias.
	IdentifierShort
)

// ShortIDLength is the fixed length of short identifiers. Changing it is a
// schema migration, not a runtime knob.
const ShortIDLength = 8

// Identifier is the classified form of a caller-supplied identifier string.
type Identifier struct {
	Kind    IdentifierKind
	UUID    uuid.UUID
	ShortID string
}

// ClassifyIdentifier dispatches purely on length: 36 characters must parse as
// a UUID, 8 characters are taken verbatim as a short ID (case-sensitive, no
// normalization), and everything else is invalid. A 36-character string that
// fails UUID parsing is invalid rather than an error, so malformed input is
// indistinguishable from a record that does not exist.
func ClassifyIdentifier(s string) Identifier {
	switch len(s) {
	case 36:
		id, err := uuid.Parse(s)
		if err != nil {
			return Identifier{Kind: IdentifierInvalid}
		}
		return Identifier{Kind: IdentifierUUID, UUID: id}
	case ShortIDLength:
		return Identifier{Kind: IdentifierShort, ShortID: s}
	default:
		return Identifier{Kind: IdentifierInvalid}
	}
}
