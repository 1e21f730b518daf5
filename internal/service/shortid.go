package service

import (
	"crypto/rand"

	"contractapi/internal/model"
)

// shortIDAlphabet is fixed for the lifetime of the system; short identifiers
// are part of public URLs and of the unique index on the contracts table.
const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// shortIDSource produces one candidate short identifier per call.
type shortIDSource func() (string, error)

// randomShortID draws a uniformly random identifier of model.ShortIDLength
// characters over shortIDAlphabet from crypto/rand. Identifiers double as
// unguessable public download links, so a seeded PRNG is not an option here.
func randomShortID() (string, error) {
	buf := make([]byte, model.ShortIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, model.ShortIDLength)
	for i, b := range buf {
		// 36 does not divide 256, but the bias (4 of 36 symbols being
		// marginally more likely) is irrelevant for collision avoidance in a
		// 36^8 space.
		out[i] = shortIDAlphabet[int(b)%len(shortIDAlphabet)]
	}
	return string(out), nil
}
