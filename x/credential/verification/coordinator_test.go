package verification

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/registry"
	"github.com/compose-network/issuer/x/credential/store"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	coach    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	dean     = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

type fixture struct {
	coord        *Coordinator
	achievements *achievement.Store
	registry     *registry.Registry
	metrics      *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := store.NewMemory()
	cat := catalog.MustNew()
	achievements := achievement.New(repo, cat, zerolog.Nop())
	reg := registry.New(repo, cat, zerolog.Nop())
	m := NewMetricsWith(prometheus.NewRegistry())

	_, err := reg.Register(t.Context(), registry.RegisterRequest{Address: coach, Name: "Coach", Categories: []string{"sports"}})
	require.NoError(t, err)
	_, err = reg.Register(t.Context(), registry.RegisterRequest{Address: dean, Name: "Dean", Categories: []string{"education"}})
	require.NoError(t, err)

	return &fixture{
		coord:        NewCoordinator(achievements, reg, m, zerolog.Nop()),
		achievements: achievements,
		registry:     reg,
		metrics:      m,
	}
}

func (f *fixture) create(t *testing.T, category string, fields map[string]string) *credential.Achievement {
	t.Helper()
	a, err := f.achievements.Create(t.Context(), achievement.CreateRequest{
		Owner: owner, CategoryID: category, Title: "achievement", Fields: fields,
	})
	require.NoError(t, err)
	return a
}

func sportsFields() map[string]string {
	return map[string]string{"event": "City 10k", "date": "2025-03-02"}
}

func educationFields() map[string]string {
	return map[string]string{"institution": "MIT", "program": "BSc Physics"}
}

func TestSubmit_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "sports", sportsFields())

	_, err := f.coord.SubmitForVerification(t.Context(), a.ID, stranger, credential.Proof{Description: "photo"})
	require.True(t, credential.IsKind(err, credential.KindUnauthorized))

	got, err := f.coord.SubmitForVerification(t.Context(), a.ID, owner, credential.Proof{Description: "photo"})
	require.NoError(t, err)
	require.Equal(t, credential.StatusSubmitted, got.Status)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues(actionSubmit, "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues(actionSubmit, "unauthorized")))
}

func TestApprove_WrongCategoryIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "education", educationFields())
	_, err := f.coord.SubmitForVerification(t.Context(), a.ID, owner, credential.Proof{Description: "diploma"})
	require.NoError(t, err)

	// sports-only verifier on an education achievement
	_, err = f.coord.Approve(t.Context(), a.ID, coach)
	require.True(t, credential.IsKind(err, credential.KindUnauthorized))

	got, err := f.achievements.Get(t.Context(), a.ID)
	require.NoError(t, err)
	require.Equal(t, credential.StatusSubmitted, got.Status)

	got, err = f.coord.Approve(t.Context(), a.ID, dean)
	require.NoError(t, err)
	require.Equal(t, credential.StatusVerified, got.Status)
	require.Equal(t, dean, got.Verifier)
}

func TestApprove_RevokedCategoryTakesEffect(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "sports", sportsFields())
	_, err := f.coord.SubmitForVerification(t.Context(), a.ID, owner, credential.Proof{Description: "photo"})
	require.NoError(t, err)

	_, err = f.registry.Register(t.Context(), registry.RegisterRequest{Address: coach, Name: "Coach", Categories: []string{"arts"}})
	require.NoError(t, err)

	_, err = f.coord.Approve(t.Context(), a.ID, coach)
	require.True(t, credential.IsKind(err, credential.KindUnauthorized))
}

func TestReject_AndResubmit(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "sports", sportsFields())
	ctx := t.Context()

	_, err := f.coord.SubmitForVerification(ctx, a.ID, owner, credential.Proof{Description: "photo"})
	require.NoError(t, err)

	_, err = f.coord.Reject(ctx, a.ID, dean, "no")
	require.True(t, credential.IsKind(err, credential.KindUnauthorized))

	rejected, err := f.coord.Reject(ctx, a.ID, coach, "finish time not visible")
	require.NoError(t, err)
	require.Equal(t, credential.StatusRejected, rejected.Status)

	resubmitted, err := f.coord.SubmitForVerification(ctx, a.ID, owner, credential.Proof{Description: "official results"})
	require.NoError(t, err)
	require.Equal(t, credential.StatusSubmitted, resubmitted.Status)
	require.Empty(t, resubmitted.RejectionReason)

	verified, err := f.coord.Approve(ctx, a.ID, coach)
	require.NoError(t, err)
	require.Equal(t, credential.StatusVerified, verified.Status)

	_, err = f.coord.SubmitForVerification(ctx, a.ID, owner, credential.Proof{Description: "again"})
	require.True(t, credential.IsKind(err, credential.KindInvalidState))
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	run := f.create(t, "sports", sportsFields())
	degree := f.create(t, "education", educationFields())
	f.create(t, "sports", sportsFields()) // stays draft

	for _, id := range []string{run.ID, degree.ID} {
		_, err := f.coord.SubmitForVerification(ctx, id, owner, credential.Proof{Description: "proof"})
		require.NoError(t, err)
	}

	all, err := f.coord.ListPending(ctx, common.Address{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	mine, err := f.coord.ListPending(ctx, coach)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, run.ID, mine[0].ID)

	none, err := f.coord.ListPending(ctx, stranger)
	require.NoError(t, err)
	require.Empty(t, none)
}
