package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := AlreadyClaimed("certificate exists").WithAchievement("a-1")

	require.Equal(t, KindAlreadyClaimed, KindOf(err))
	require.True(t, errors.Is(err, ErrAlreadyClaimed))
	require.False(t, errors.Is(err, ErrInvalidState))
	require.Contains(t, err.Error(), "already_claimed [achievement a-1]")

	wrapped := fmt.Errorf("claim: %w", err)
	require.True(t, IsKind(wrapped, KindAlreadyClaimed))
	require.True(t, errors.Is(wrapped, ErrAlreadyClaimed))
}

func TestErrorCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := RelayFailure("relay rejected mint").WithCause(cause).WithContext("attempt", 2)

	require.ErrorIs(t, err, cause)
	require.Equal(t, 2, err.Context["attempt"])
	require.Equal(t, "relay_failure: relay rejected mint: connection reset", err.Error())
	require.False(t, err.Kind.Retryable())
	require.True(t, KindRelayTimeout.Retryable())
	require.False(t, KindReplayRejected.Retryable())
}

func TestKindOf_ForeignError(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.False(t, IsKind(nil, KindInternal))
}

func TestKindStrings(t *testing.T) {
	codes := map[Kind]string{
		KindValidation:     "validation",
		KindNotFound:       "not_found",
		KindUnauthorized:   "unauthorized",
		KindInvalidState:   "invalid_state",
		KindAlreadyClaimed: "already_claimed",
		KindReplayRejected: "replay_rejected",
		KindRelayTimeout:   "relay_timeout",
		KindRelayFailure:   "relay_failure",
		KindPrecondition:   "precondition",
		KindInternal:       "internal",
	}
	for k, want := range codes {
		require.Equal(t, want, k.String())
	}
}
