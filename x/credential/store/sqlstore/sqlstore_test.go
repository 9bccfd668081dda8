package sqlstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/store"
	"github.com/compose-network/issuer/x/credential/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:test_" + sanitize(t.Name()) + "?mode=memory&cache=shared"
	s, err := Open(t.Context(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return newTestStore(t) })
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(t.Context(), "oracle", "dsn")
	require.Error(t, err)

	_, err = Open(t.Context(), DriverSQLite, " ")
	require.Error(t, err)
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate(t.Context()))
}

func TestUpdateAchievement_StaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateAchievement(ctx, storetest.NewAchievement("a-1", storetest.Alice, "sports", time.Now())))

	// A writer that lands between our read and our write makes the versioned UPDATE miss.
	_, err := s.UpdateAchievement(ctx, "a-1", func(a *credential.Achievement) error {
		a.Status = credential.StatusSubmitted
		return nil
	})
	require.NoError(t, err)

	stale, err := s.GetAchievement(ctx, "a-1")
	require.NoError(t, err)
	stale.Version = 1
	tx, err := s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	err = casAchievement(ctx, tx, 1, stale)
	require.True(t, errors.Is(err, store.ErrConflict))
}

func TestMapDBError(t *testing.T) {
	require.Nil(t, mapDBError(nil))
	require.ErrorIs(t, mapDBError(errors.New("constraint failed: UNIQUE constraint failed: used_nonces.nonce (1555)")), store.ErrDuplicate)
	require.ErrorIs(t, mapDBError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)")), store.ErrDuplicate)
	other := errors.New("disk I/O error")
	require.Equal(t, other, mapDBError(other))
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
