// Package storetest holds Repository conformance checks shared by every implementation.
package storetest

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/store"
)

var (
	Alice = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	Bob   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	Vera  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// Run executes the conformance suite against repositories built by newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newRepo(t)) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("Verifiers", func(t *testing.T) { testVerifiers(t, newRepo(t)) })
	t.Run("CommitClaim", func(t *testing.T) { testCommitClaim(t, newRepo(t)) })
	t.Run("Nonces", func(t *testing.T) { testNonces(t, newRepo(t)) })
}

// NewAchievement builds a draft record with deterministic timestamps.
func NewAchievement(id string, owner common.Address, category string, created time.Time) *credential.Achievement {
	return &credential.Achievement{
		ID:          id,
		Owner:       owner,
		CategoryID:  category,
		Title:       "title " + id,
		Description: "description " + id,
		Fields:      map[string]string{"event": "Marathon", "date": "2025-04-21"},
		Status:      credential.StatusDraft,
		CreatedAt:   created.UTC(),
		UpdatedAt:   created.UTC(),
		Version:     1,
	}
}

func testCreateGet(t *testing.T, repo store.Repository) {
	ctx := t.Context()
	created := time.Date(2025, 4, 21, 9, 0, 0, 0, time.UTC)
	a := NewAchievement("a-1", Alice, "sports", created)

	require.NoError(t, repo.CreateAchievement(ctx, a))
	require.ErrorIs(t, repo.CreateAchievement(ctx, a), store.ErrDuplicate)

	got, err := repo.GetAchievement(ctx, "a-1")
	require.NoError(t, err)
	require.Equal(t, Alice, got.Owner)
	require.Equal(t, "sports", got.CategoryID)
	require.Equal(t, credential.StatusDraft, got.Status)
	require.Equal(t, "Marathon", got.Fields["event"])
	require.Equal(t, uint64(1), got.Version)
	require.True(t, created.Equal(got.CreatedAt))

	_, err = repo.GetAchievement(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testList(t *testing.T, repo store.Repository) {
	ctx := t.Context()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateAchievement(ctx, NewAchievement("a-1", Alice, "sports", base)))
	require.NoError(t, repo.CreateAchievement(ctx, NewAchievement("b-1", Bob, "education", base.Add(time.Minute))))
	require.NoError(t, repo.CreateAchievement(ctx, NewAchievement("a-2", Alice, "education", base.Add(2*time.Minute))))

	_, err := repo.UpdateAchievement(ctx, "a-2", func(a *credential.Achievement) error {
		a.Status = credential.StatusSubmitted
		return nil
	})
	require.NoError(t, err)

	mine, err := repo.ListAchievements(ctx, store.AchievementFilter{Owner: Alice})
	require.NoError(t, err)
	require.Equal(t, []string{"a-1", "a-2"}, ids(mine))

	submitted, err := repo.ListAchievements(ctx, store.AchievementFilter{Status: credential.StatusSubmitted})
	require.NoError(t, err)
	require.Equal(t, []string{"a-2"}, ids(submitted))

	edu, err := repo.ListAchievements(ctx, store.AchievementFilter{Categories: []string{"education"}})
	require.NoError(t, err)
	require.Equal(t, []string{"b-1", "a-2"}, ids(edu))

	all, err := repo.ListAchievements(ctx, store.AchievementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func testUpdate(t *testing.T, repo store.Repository) {
	ctx := t.Context()
	require.NoError(t, repo.CreateAchievement(ctx, NewAchievement("a-1", Alice, "sports", time.Now())))

	updated, err := repo.UpdateAchievement(ctx, "a-1", func(a *credential.Achievement) error {
		a.Status = credential.StatusSubmitted
		a.Proof = &credential.Proof{Description: "finisher photo", ImageRef: "mem://img"}
		a.Owner = Bob // identity fields are not writable
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, credential.StatusSubmitted, updated.Status)
	require.Equal(t, uint64(2), updated.Version)
	require.Equal(t, Alice, updated.Owner)

	abort := errors.New("precondition failed")
	_, err = repo.UpdateAchievement(ctx, "a-1", func(a *credential.Achievement) error { return abort })
	require.ErrorIs(t, err, abort)

	got, err := repo.GetAchievement(ctx, "a-1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Version)
	require.Equal(t, "finisher photo", got.Proof.Description)

	_, err = repo.UpdateAchievement(ctx, "missing", func(a *credential.Achievement) error { return nil })
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testVerifiers(t *testing.T, repo store.Repository) {
	ctx := t.Context()

	v, err := repo.UpsertVerifier(ctx, &credential.Verifier{
		Address: Vera, DisplayName: "Vera", Credentials: "coach", Categories: []string{"sports"},
	})
	require.NoError(t, err)
	require.False(t, v.RegisteredAt.IsZero())
	first := v.RegisteredAt

	v, err = repo.UpsertVerifier(ctx, &credential.Verifier{
		Address: Vera, DisplayName: "Vera V.", Categories: []string{"education", "sports"},
	})
	require.NoError(t, err)
	require.True(t, first.Equal(v.RegisteredAt))

	got, err := repo.GetVerifier(ctx, Vera)
	require.NoError(t, err)
	require.Equal(t, "Vera V.", got.DisplayName)
	require.Equal(t, []string{"education", "sports"}, got.Categories)

	_, err = repo.GetVerifier(ctx, Bob)
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := repo.ListVerifiers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func testCommitClaim(t *testing.T, repo store.Repository) {
	ctx := t.Context()
	require.NoError(t, repo.CreateAchievement(ctx, NewAchievement("a-1", Alice, "sports", time.Now())))

	cert := &credential.Certificate{
		ID:            "c-1",
		AchievementID: "a-1",
		Owner:         Alice,
		TokenID:       "42",
		TokenURI:      "mem://meta",
		TxHash:        common.HexToHash("0xabc"),
		MintedAt:      time.Now().UTC().Truncate(time.Millisecond),
		Nonce:         common.HexToHash("0x01"),
	}

	// not reserved yet
	_, err := repo.CommitClaim(ctx, cert)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = repo.UpdateAchievement(ctx, "a-1", func(a *credential.Achievement) error {
		a.Status = credential.StatusClaiming
		return nil
	})
	require.NoError(t, err)

	claimed, err := repo.CommitClaim(ctx, cert)
	require.NoError(t, err)
	require.Equal(t, credential.StatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = repo.CommitClaim(ctx, cert)
	require.ErrorIs(t, err, store.ErrDuplicate)

	got, err := repo.GetCertificate(ctx, "a-1")
	require.NoError(t, err)
	require.Equal(t, "42", got.TokenID)
	require.Equal(t, cert.TxHash, got.TxHash)
	require.Equal(t, cert.Nonce, got.Nonce)

	_, err = repo.GetCertificate(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	certs, err := repo.ListCertificates(ctx, Alice)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	certs, err = repo.ListCertificates(ctx, Bob)
	require.NoError(t, err)
	require.Empty(t, certs)
}

func testNonces(t *testing.T, repo store.Repository) {
	ctx := t.Context()
	n := credential.UsedNonce{
		Nonce:         common.HexToHash("0xfeed"),
		AchievementID: "a-1",
		UsedAt:        time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(time.Minute),
	}

	used, err := repo.NonceUsed(ctx, n.Nonce)
	require.NoError(t, err)
	require.False(t, used)

	require.NoError(t, repo.BurnNonce(ctx, n))
	require.ErrorIs(t, repo.BurnNonce(ctx, n), store.ErrDuplicate)

	used, err = repo.NonceUsed(ctx, n.Nonce)
	require.NoError(t, err)
	require.True(t, used)
}

func ids(as []*credential.Achievement) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}
