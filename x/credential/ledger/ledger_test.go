package ledger

import (
	"context"
	"errors"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/metadata"
	"github.com/compose-network/issuer/x/credential/mint"
	"github.com/compose-network/issuer/x/credential/relay"
	"github.com/compose-network/issuer/x/credential/store"
	"github.com/compose-network/issuer/x/credential/store/sqlstore"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	vera  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// relayFunc adapts a function to relay.Relay and records every authorization it saw.
type relayFunc struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, call int, auth *mint.Authorization) (relay.Receipt, error)
	calls []*mint.Authorization
}

func (r *relayFunc) Mint(ctx context.Context, auth *mint.Authorization) (relay.Receipt, error) {
	r.mu.Lock()
	r.calls = append(r.calls, auth)
	call := len(r.calls)
	r.mu.Unlock()
	return r.fn(ctx, call, auth)
}

func (r *relayFunc) seen() []*mint.Authorization {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mint.Authorization(nil), r.calls...)
}

func blockUntilDone(ctx context.Context) (relay.Receipt, error) {
	<-ctx.Done()
	return relay.Receipt{}, ctx.Err()
}

type fixture struct {
	repo         store.Repository
	achievements *achievement.Store
	signer       *mint.Signer
	ledger       *Ledger
	metrics      *Metrics
	objects      *metadata.Memory
}

func newFixture(t *testing.T, r relay.Relay, cfg Config, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWith(t, store.NewMemory(), r, cfg, opts...)
}

func newSQLiteRepo(t *testing.T) store.Repository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	repo, err := sqlstore.Open(t.Context(), "sqlite", "file:ledger_"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newFixtureWith(t *testing.T, repo store.Repository, r relay.Relay, cfg Config, opts ...Option) *fixture {
	t.Helper()
	cat := catalog.MustNew()
	achievements := achievement.New(repo, cat, zerolog.Nop())
	signer, err := mint.GenerateSigner()
	require.NoError(t, err)
	if r == nil {
		r = relay.NewLocal(signer.Address(), zerolog.Nop())
	}
	authorizer := mint.NewAuthorizer(signer, repo, mint.DefaultConfig(), zerolog.Nop())
	objects := metadata.NewMemory("mem://objects")
	m := NewMetricsWith(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m)}, opts...)

	return &fixture{
		repo:         repo,
		achievements: achievements,
		signer:       signer,
		ledger:       New(achievements, repo, cat, authorizer, r, objects, cfg, zerolog.Nop(), opts...),
		metrics:      m,
		objects:      objects,
	}
}

func (f *fixture) verifiedAchievement(t *testing.T) *credential.Achievement {
	t.Helper()
	ctx := t.Context()
	a, err := f.achievements.Create(ctx, achievement.CreateRequest{
		Owner:      alice,
		CategoryID: "sports",
		Title:      "Boston Marathon",
		Fields:     map[string]string{"event": "Boston Marathon", "date": "2025-04-21"},
	})
	require.NoError(t, err)
	_, err = f.achievements.Submit(ctx, a.ID, credential.Proof{Description: "finisher photo"})
	require.NoError(t, err)
	a, err = f.achievements.Verify(ctx, a.ID, vera)
	require.NoError(t, err)
	return a
}

func (f *fixture) status(t *testing.T, id string) credential.Status {
	t.Helper()
	a, err := f.achievements.Get(t.Context(), id)
	require.NoError(t, err)
	return a.Status
}

func TestClaim_EndToEnd(t *testing.T) {
	stub := &relayFunc{fn: func(context.Context, int, *mint.Authorization) (relay.Receipt, error) {
		return relay.Receipt{TokenID: "42", TxHash: common.HexToHash("0xabc")}, nil
	}}
	f := newFixture(t, stub, DefaultConfig())
	a := f.verifiedAchievement(t)

	cert, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "42", cert.TokenID)
	require.Equal(t, common.HexToHash("0xabc"), cert.TxHash)
	require.Equal(t, alice, cert.Owner)
	require.Equal(t, credential.StatusClaimed, f.status(t, a.ID))

	// the token URI points at the uploaded metadata document
	digest, err := metadata.ParseDigest(cert.TokenURI[len("mem://objects/"):])
	require.NoError(t, err)
	obj, err := f.objects.Get(t.Context(), digest)
	require.NoError(t, err)
	require.Equal(t, metadata.ContentTypeJSON, obj.ContentType)

	seen := stub.seen()
	require.Len(t, seen, 1)
	require.Equal(t, cert.Nonce, seen[0].Payload.Nonce)
	require.Equal(t, cert.TokenURI, seen[0].Payload.MetadataURI)

	_, err = f.ledger.Claim(t.Context(), a.ID, alice)
	require.True(t, credential.IsKind(err, credential.KindAlreadyClaimed))

	got, err := f.ledger.Get(t.Context(), a.ID)
	require.NoError(t, err)
	require.Equal(t, cert.ID, got.ID)
	list, err := f.ledger.ListByOwner(t.Context(), alice)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Claims.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Claims.WithLabelValues("already_claimed")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NoncesBurned))
}

func TestClaim_ConcurrentClaimsIssueOnce(t *testing.T) {
	backends := []struct {
		name string
		repo func(t *testing.T) store.Repository
	}{
		{"memory", func(*testing.T) store.Repository { return store.NewMemory() }},
		{"sqlite", newSQLiteRepo},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			f := newFixtureWith(t, b.repo(t), nil, DefaultConfig())
			a := f.verifiedAchievement(t)

			const claimers = 50
			var (
				wg       sync.WaitGroup
				start    = make(chan struct{})
				issued   atomic.Int32
				rejected atomic.Int32
			)
			for i := 0; i < claimers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.ledger.Claim(context.Background(), a.ID, alice)
					switch {
					case err == nil:
						issued.Add(1)
					case credential.IsKind(err, credential.KindAlreadyClaimed):
						rejected.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			require.Equal(t, int32(1), issued.Load())
			require.Equal(t, int32(claimers-1), rejected.Load())
			require.Equal(t, credential.StatusClaimed, f.status(t, a.ID))

			certs, err := f.repo.ListCertificates(t.Context(), alice)
			require.NoError(t, err)
			require.Len(t, certs, 1)
		})
	}
}

func TestRedeem_ReplayRejected(t *testing.T) {
	stub := &relayFunc{fn: func(context.Context, int, *mint.Authorization) (relay.Receipt, error) {
		return relay.Receipt{TokenID: "1", TxHash: common.HexToHash("0x01")}, nil
	}}
	f := newFixture(t, stub, DefaultConfig())
	a := f.verifiedAchievement(t)

	_, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.NoError(t, err)
	captured := stub.seen()[0]

	_, err = f.ledger.Redeem(t.Context(), captured)
	require.True(t, credential.IsKind(err, credential.KindReplayRejected), "got %v", err)
	require.Len(t, stub.seen(), 1, "replayed authorization must not reach the relay")
}

func TestRedeem_ExpiredAuthorizationNotBurned(t *testing.T) {
	stub := &relayFunc{fn: func(context.Context, int, *mint.Authorization) (relay.Receipt, error) {
		return relay.Receipt{TokenID: "1", TxHash: common.HexToHash("0x01")}, nil
	}}
	f := newFixture(t, stub, DefaultConfig(), WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	a := f.verifiedAchievement(t)

	authorizer := mint.NewAuthorizer(f.signer, f.repo, mint.DefaultConfig(), zerolog.Nop())
	auth, err := authorizer.Authorize(t.Context(), a, "mem://objects/meta")
	require.NoError(t, err)

	_, err = f.ledger.Redeem(t.Context(), auth)
	require.True(t, credential.IsKind(err, credential.KindReplayRejected))

	used, err := f.repo.NonceUsed(t.Context(), auth.Payload.Nonce)
	require.NoError(t, err)
	require.False(t, used)
	require.Empty(t, stub.seen())
}

func TestClaim_TimeoutRetriesWithFreshNonce(t *testing.T) {
	var f *fixture
	var inFlight float64
	stub := &relayFunc{fn: func(ctx context.Context, call int, _ *mint.Authorization) (relay.Receipt, error) {
		if call < 3 {
			return blockUntilDone(ctx)
		}
		inFlight = testutil.ToFloat64(f.metrics.InFlight)
		return relay.Receipt{TokenID: "7", TxHash: common.HexToHash("0x07")}, nil
	}}
	f = newFixture(t, stub, Config{RelayTimeout: 20 * time.Millisecond, MaxAttempts: 3})
	a := f.verifiedAchievement(t)

	cert, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "7", cert.TokenID)

	seen := stub.seen()
	require.Len(t, seen, 3)
	nonces := map[common.Hash]bool{}
	for _, auth := range seen {
		nonces[auth.Payload.Nonce] = true
		used, err := f.repo.NonceUsed(t.Context(), auth.Payload.Nonce)
		require.NoError(t, err)
		require.True(t, used)
	}
	require.Len(t, nonces, 3)
	require.Equal(t, seen[2].Payload.Nonce, cert.Nonce)

	require.Equal(t, 1.0, inFlight)
	require.Equal(t, 0.0, testutil.ToFloat64(f.metrics.InFlight))
	require.NoError(t, testutil.CollectAndCompare(f.metrics.Attempts, strings.NewReader(`
# HELP issuer_ledger_claim_attempts Authorizations relayed per claim
# TYPE issuer_ledger_claim_attempts histogram
issuer_ledger_claim_attempts_bucket{le="1"} 0
issuer_ledger_claim_attempts_bucket{le="2"} 0
issuer_ledger_claim_attempts_bucket{le="3"} 1
issuer_ledger_claim_attempts_bucket{le="5"} 1
issuer_ledger_claim_attempts_bucket{le="8"} 1
issuer_ledger_claim_attempts_bucket{le="13"} 1
issuer_ledger_claim_attempts_bucket{le="21"} 1
issuer_ledger_claim_attempts_bucket{le="+Inf"} 1
issuer_ledger_claim_attempts_sum 3
issuer_ledger_claim_attempts_count 1
`)))
}

func TestClaim_TimeoutExhaustedReleases(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	stub := &relayFunc{fn: func(ctx context.Context, _ int, _ *mint.Authorization) (relay.Receipt, error) {
		if fail.Load() {
			return blockUntilDone(ctx)
		}
		return relay.Receipt{TokenID: "9", TxHash: common.HexToHash("0x09")}, nil
	}}
	f := newFixture(t, stub, Config{RelayTimeout: 10 * time.Millisecond, MaxAttempts: 2})
	a := f.verifiedAchievement(t)

	_, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.True(t, credential.IsKind(err, credential.KindRelayTimeout), "got %v", err)
	require.Equal(t, credential.StatusVerified, f.status(t, a.ID))
	require.Len(t, stub.seen(), 2)

	// burned nonces stay burned
	for _, auth := range stub.seen() {
		_, err := f.ledger.Redeem(t.Context(), auth)
		require.True(t, credential.IsKind(err, credential.KindReplayRejected))
	}

	fail.Store(false)
	cert, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "9", cert.TokenID)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Claims.WithLabelValues("relay_timeout")))
}

func TestClaim_RelayFailureReleases(t *testing.T) {
	stub := &relayFunc{fn: func(context.Context, int, *mint.Authorization) (relay.Receipt, error) {
		return relay.Receipt{}, errors.New("execution reverted")
	}}
	f := newFixture(t, stub, DefaultConfig())
	a := f.verifiedAchievement(t)

	_, err := f.ledger.Claim(t.Context(), a.ID, alice)
	require.True(t, credential.IsKind(err, credential.KindRelayFailure))
	require.Len(t, stub.seen(), 1, "non-timeout failures are not retried")
	require.Equal(t, credential.StatusVerified, f.status(t, a.ID))

	_, err = f.ledger.Get(t.Context(), a.ID)
	require.True(t, credential.IsKind(err, credential.KindNotFound))
}

func TestClaim_CallerCancelStopsWithoutRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	stub := &relayFunc{fn: func(rctx context.Context, _ int, _ *mint.Authorization) (relay.Receipt, error) {
		cancel()
		return blockUntilDone(rctx)
	}}
	f := newFixture(t, stub, Config{RelayTimeout: time.Second, MaxAttempts: 3})
	a := f.verifiedAchievement(t)

	_, err := f.ledger.Claim(ctx, a.ID, alice)
	require.True(t, credential.IsKind(err, credential.KindRelayFailure), "got %v", err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Len(t, stub.seen(), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NoncesBurned))
	require.Equal(t, credential.StatusVerified, f.status(t, a.ID))
}

func TestClaim_Preconditions(t *testing.T) {
	f := newFixture(t, nil, DefaultConfig())
	a := f.verifiedAchievement(t)

	_, err := f.ledger.Claim(t.Context(), a.ID, bob)
	require.True(t, credential.IsKind(err, credential.KindUnauthorized))
	require.Equal(t, credential.StatusVerified, f.status(t, a.ID))

	draft, err := f.achievements.Create(t.Context(), achievement.CreateRequest{
		Owner:      alice,
		CategoryID: "sports",
		Title:      "10k",
		Fields:     map[string]string{"event": "10k", "date": "2025-01-01"},
	})
	require.NoError(t, err)
	_, err = f.ledger.Claim(t.Context(), draft.ID, alice)
	require.True(t, credential.IsKind(err, credential.KindInvalidState))

	_, err = f.ledger.Claim(t.Context(), "missing", alice)
	require.True(t, credential.IsKind(err, credential.KindNotFound))

	_, err = f.ledger.ListByOwner(t.Context(), common.Address{})
	require.True(t, credential.IsKind(err, credential.KindValidation))
}
