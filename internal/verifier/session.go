package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
)

// SessionProfile fetches the durable profile for a freshly
// authenticated session, retrying with linearly increasing backoff to
// absorb the replication window between account creation and read
// visibility.
//
// When the profile stays absent after all attempts, (nil, nil) is
// returned: callers must treat "authenticated but profile nil" as a
// valid, display-degraded state rather than an error.
func (v *Verifier) SessionProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", ErrValidation)
	}

	attempts := v.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := v.profiles.Get(ctx, userID)
		if err == nil {
			return &p, nil
		}
		if err != profile.ErrNotExist {
			v.lo.Error("error reading profile", "error", err, "user_id", userID)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		// Absent: wait out the replication lag before the next attempt.
		if i < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * v.retry.BaseDelay):
			}
		}
	}

	v.lo.Debug("profile absent after retries", "user_id", userID, "attempts", attempts)
	return nil, nil
}
