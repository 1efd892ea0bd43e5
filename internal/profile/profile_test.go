package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerodha/logf"
)

type fakeWriter struct {
	err    error
	merges []map[string]interface{}
}

func (f *fakeWriter) Merge(ctx context.Context, userID string, updates map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.merges = append(f.merges, updates)
	return nil
}

func TestPrimaryWithFallbackPrimaryOK(t *testing.T) {
	var (
		primary  = &fakeWriter{}
		fallback = &fakeWriter{}
		w        = NewPrimaryWithFallback(primary, fallback, logf.New(logf.Opts{}))
	)

	err := w.Merge(context.Background(), "uid123", map[string]interface{}{"is_verified": true})
	require.NoError(t, err)
	assert.Len(t, primary.merges, 1, "primary wasn't written")
	assert.Empty(t, fallback.merges, "fallback was written despite a healthy primary")
}

func TestPrimaryWithFallbackDegrades(t *testing.T) {
	var (
		primary  = &fakeWriter{err: errors.New("store unreachable")}
		fallback = &fakeWriter{}
		w        = NewPrimaryWithFallback(primary, fallback, logf.New(logf.Opts{}))
	)

	err := w.Merge(context.Background(), "uid123", map[string]interface{}{"is_verified": true})
	require.NoError(t, err, "fallback write surfaced an error")
	require.Len(t, fallback.merges, 1, "fallback wasn't written")
	assert.Equal(t, map[string]interface{}{"is_verified": true}, fallback.merges[0])
}

func TestPrimaryWithFallbackAbsorbsBothFailures(t *testing.T) {
	var (
		primary  = &fakeWriter{err: errors.New("store unreachable")}
		fallback = &fakeWriter{err: errors.New("also unreachable")}
		w        = NewPrimaryWithFallback(primary, fallback, logf.New(logf.Opts{}))
	)

	// Best effort: the gating verification already succeeded, so neither
	// failure escalates.
	err := w.Merge(context.Background(), "uid123", map[string]interface{}{"is_verified": true})
	assert.NoError(t, err)
}

func TestPrimaryWithFallbackIdempotent(t *testing.T) {
	var (
		primary  = &fakeWriter{}
		fallback = &fakeWriter{}
		w        = NewPrimaryWithFallback(primary, fallback, logf.New(logf.Opts{}))
	)

	updates := map[string]interface{}{"is_verified": true, "is_admin_verified": true}
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Merge(context.Background(), "uid123", updates))
	}
	for _, m := range primary.merges {
		assert.Equal(t, updates, m, "repeated merges diverged")
	}
}
