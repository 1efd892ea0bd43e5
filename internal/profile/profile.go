// Package profile defines the durable profile store consumed and
// mirrored into by the verification flows.
package profile

import (
	"context"
	"errors"

	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	"github.com/zerodha/logf"
)

// ErrNotExist is thrown when a profile does not exist. Callers must
// treat it as a possibly-transient state: profile replication may lag
// behind account creation.
var ErrNotExist = errors.New("the profile does not exist")

// Writer is a write-only view of a profile store. Merge performs a
// partial update: fields absent from updates are left untouched.
type Writer interface {
	Merge(ctx context.Context, userID string, updates map[string]interface{}) error
}

// Store is a profile store that can also be read.
type Store interface {
	Writer

	// Get retrieves a profile by user ID.
	Get(ctx context.Context, userID string) (models.Profile, error)

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error
}

// PrimaryWithFallback is a Writer that tries the primary store and, if
// the write fails, falls back to a secondary writable store with the
// identical merge semantics. The secondary copy is advisory
// (last-writer-wins); its own failure is logged, never escalated, since
// the verification that triggered the write has already succeeded.
type PrimaryWithFallback struct {
	primary  Writer
	fallback Writer
	lo       logf.Logger
}

// NewPrimaryWithFallback composes a fallback write policy over two
// writers.
func NewPrimaryWithFallback(primary, fallback Writer, lo logf.Logger) *PrimaryWithFallback {
	return &PrimaryWithFallback{
		primary:  primary,
		fallback: fallback,
		lo:       lo,
	}
}

// Merge writes to the primary and degrades to the fallback on failure.
func (w *PrimaryWithFallback) Merge(ctx context.Context, userID string, updates map[string]interface{}) error {
	err := w.primary.Merge(ctx, userID, updates)
	if err == nil {
		return nil
	}
	w.lo.Error("primary profile write failed, falling back", "error", err, "user_id", userID)

	if ferr := w.fallback.Merge(ctx, userID, updates); ferr != nil {
		w.lo.Error("fallback profile write failed", "error", ferr, "user_id", userID)
	}
	return nil
}
