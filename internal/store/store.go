package store

import (
	"errors"

	"github.com/RUGU2211/beachguardians-verify/pkg/models"
)

// ErrNotExist is thrown when a challenge (requested by namespace / ID)
// does not exist.
var ErrNotExist = errors.New("the challenge does not exist")

// Store represents a storage backend where OTP challenges are stored.
type Store interface {
	// Set writes a challenge against an ID, overwriting any prior
	// challenge under the same key. Overwrite semantics are intentional:
	// a re-issuance invalidates the previous code.
	Set(namespace, id string, c models.Challenge) error

	// Get retrieves the challenge saved against a given ID.
	Get(namespace, id string) (models.Challenge, error)

	// Delete deletes the challenge saved against a given ID.
	Delete(namespace, id string) error

	// DeleteIfMatch deletes the challenge only if its stored code still
	// equals otp. It returns ErrNotExist if the challenge is gone or has
	// been replaced by a concurrent re-issuance.
	DeleteIfMatch(namespace, id, otp string) error

	// Ping checks if the store is reachable.
	Ping() error
}
