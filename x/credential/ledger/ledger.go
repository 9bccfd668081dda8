// Package ledger issues certificates exactly once per achievement.
//
// A claim reserves the achievement (verified → claiming), uploads the token
// metadata, then redeems fresh authorizations against the relay. Each redeem
// burns its nonce before the relay is called; a burned nonce is never accepted
// again. Success records the certificate and completes the claim in one step,
// failure releases the reservation back to verified.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/metadata"
	"github.com/compose-network/issuer/x/credential/mint"
	"github.com/compose-network/issuer/x/credential/relay"
	"github.com/compose-network/issuer/x/credential/store"
)

// Repository is the slice of persistence the ledger owns.
type Repository interface {
	store.CertificateRepository
	store.NonceRepository
}

type Authorizer interface {
	Authorize(ctx context.Context, a *credential.Achievement, metadataURI string) (*mint.Authorization, error)
}

type Ledger struct {
	achievements *achievement.Store
	repo         Repository
	catalog      catalog.Catalog
	authorizer   Authorizer
	relay        relay.Relay
	objects      metadata.Store
	cfg          Config
	metrics      *Metrics
	now          func() time.Time
	newID        func() string
	log          zerolog.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(
	achievements *achievement.Store,
	repo Repository,
	cat catalog.Catalog,
	authorizer Authorizer,
	r relay.Relay,
	objects metadata.Store,
	cfg Config,
	log zerolog.Logger,
	opts ...Option,
) *Ledger {
	def := DefaultConfig()
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = def.RelayTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	l := &Ledger{
		achievements: achievements,
		repo:         repo,
		catalog:      cat,
		authorizer:   authorizer,
		relay:        r,
		objects:      objects,
		cfg:          cfg,
		now:          time.Now,
		newID:        uuid.NewString,
		log:          log.With().Str("component", "certificate-ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Claim mints the certificate of a verified achievement for its owner.
func (l *Ledger) Claim(ctx context.Context, id string, owner common.Address) (cert *credential.Certificate, err error) {
	defer func() { l.recordClaim(err) }()

	if existing, err := l.repo.GetCertificate(ctx, id); err == nil && existing != nil {
		return nil, credential.AlreadyClaimed("achievement %q is already claimed", id).WithAchievement(id)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, credential.Internal("failed to look up certificate").WithAchievement(id).WithCause(err)
	}

	reserved, err := l.achievements.Reserve(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	logger := l.log.With().Str("achievement_id", id).Str("owner", owner.Hex()).Logger()
	logger.Info().Msg("Achievement reserved for claim")
	if l.metrics != nil {
		l.metrics.InFlight.Inc()
		defer l.metrics.InFlight.Dec()
	}

	tokenURI, err := l.uploadMetadata(ctx, reserved)
	if err != nil {
		return nil, l.release(ctx, id, err)
	}

	var (
		auth    *mint.Authorization
		receipt relay.Receipt
	)
	for attempt := 1; ; attempt++ {
		auth, err = l.authorizer.Authorize(ctx, reserved, tokenURI)
		if err != nil {
			return nil, l.release(ctx, id, err)
		}
		receipt, err = l.Redeem(ctx, auth)
		if err == nil {
			l.observeAttempts(attempt)
			break
		}
		retryable := credential.KindOf(err).Retryable()
		if retryable && attempt < l.cfg.MaxAttempts && ctx.Err() == nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Relay timed out, retrying with a fresh authorization")
			continue
		}
		if retryable {
			err = credential.RelayTimeout("relay timed out after %d attempts", attempt).
				WithAchievement(id).WithCause(err)
		}
		l.observeAttempts(attempt)
		return nil, l.release(ctx, id, err)
	}

	cert = &credential.Certificate{
		ID:            l.newID(),
		AchievementID: id,
		Owner:         owner,
		TokenID:       receipt.TokenID,
		TokenURI:      tokenURI,
		TxHash:        receipt.TxHash,
		MintedAt:      l.now().UTC(),
		Nonce:         auth.Payload.Nonce,
	}
	// The token exists on chain now; the record must land even if the caller went away.
	if _, err := l.repo.CommitClaim(context.WithoutCancel(ctx), cert); err != nil {
		// No release here: a verified achievement with a minted token could be minted twice.
		logger.Error().
			Err(err).
			Str("token_id", receipt.TokenID).
			Str("tx_hash", receipt.TxHash.Hex()).
			Msg("Minted certificate could not be recorded; achievement left in claiming")
		if errors.Is(err, store.ErrDuplicate) {
			return nil, credential.AlreadyClaimed("achievement %q is already claimed", id).WithAchievement(id)
		}
		return nil, credential.Internal("failed to record minted certificate").WithAchievement(id).WithCause(err)
	}

	logger.Info().
		Str("certificate_id", cert.ID).
		Str("token_id", cert.TokenID).
		Str("tx_hash", cert.TxHash.Hex()).
		Msg("Certificate issued")
	return cert, nil
}

// Redeem burns the authorization's nonce and relays it. Expired or already used
// authorizations are rejected without reaching the relay.
func (l *Ledger) Redeem(ctx context.Context, auth *mint.Authorization) (relay.Receipt, error) {
	if auth == nil {
		return relay.Receipt{}, credential.Validation("authorization is required")
	}
	id := auth.Payload.AchievementID
	now := l.now()
	if mint.Expired(auth, now) {
		return relay.Receipt{}, credential.ReplayRejected("authorization expired").
			WithAchievement(id).WithContext("nonce", auth.Payload.Nonce.Hex())
	}

	err := l.repo.BurnNonce(ctx, credential.UsedNonce{
		Nonce:         auth.Payload.Nonce,
		AchievementID: id,
		UsedAt:        now.UTC(),
		ExpiresAt:     auth.ExpiresAt,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return relay.Receipt{}, credential.ReplayRejected("nonce already used").
			WithAchievement(id).WithContext("nonce", auth.Payload.Nonce.Hex())
	}
	if err != nil {
		return relay.Receipt{}, credential.Internal("failed to burn nonce").WithAchievement(id).WithCause(err)
	}
	if l.metrics != nil {
		l.metrics.NoncesBurned.Inc()
	}

	rctx, cancel := context.WithTimeout(ctx, l.cfg.RelayTimeout)
	defer cancel()
	start := time.Now()
	receipt, err := l.relay.Mint(rctx, auth)
	if l.metrics != nil {
		l.metrics.RelayDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return relay.Receipt{}, credential.RelayFailure("claim canceled while relaying").
				WithAchievement(id).WithCause(err)
		}
		if relay.IsTimeout(err) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return relay.Receipt{}, credential.RelayTimeout("relay did not answer within %s", l.cfg.RelayTimeout).
				WithAchievement(id).WithCause(err)
		}
		return relay.Receipt{}, credential.RelayFailure("relay rejected the mint").WithAchievement(id).WithCause(err)
	}
	return receipt, nil
}

func (l *Ledger) Get(ctx context.Context, achievementID string) (*credential.Certificate, error) {
	cert, err := l.repo.GetCertificate(ctx, achievementID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, credential.NotFound("no certificate for achievement %q", achievementID).WithAchievement(achievementID)
	}
	if err != nil {
		return nil, credential.Internal("failed to load certificate").WithAchievement(achievementID).WithCause(err)
	}
	return cert, nil
}

func (l *Ledger) ListByOwner(ctx context.Context, owner common.Address) ([]*credential.Certificate, error) {
	if owner == (common.Address{}) {
		return nil, credential.Validation("owner address is required")
	}
	certs, err := l.repo.ListCertificates(ctx, owner)
	if err != nil {
		return nil, credential.Internal("failed to list certificates").WithCause(err)
	}
	return certs, nil
}

func (l *Ledger) uploadMetadata(ctx context.Context, a *credential.Achievement) (string, error) {
	cat, ok := l.catalog.Lookup(a.CategoryID)
	if !ok {
		return "", credential.Internal("category %q is not defined", a.CategoryID).WithAchievement(a.ID)
	}
	doc, err := metadata.BuildTokenMetadata(a, cat).Encode()
	if err != nil {
		return "", credential.Internal("failed to encode token metadata").WithAchievement(a.ID).WithCause(err)
	}
	uri, err := l.objects.Put(ctx, metadata.ContentTypeJSON, doc)
	if err != nil {
		return "", credential.Internal("failed to upload token metadata").WithAchievement(a.ID).WithCause(err)
	}
	return uri, nil
}

// release reverts the reservation and returns cause.
func (l *Ledger) release(ctx context.Context, id string, cause error) error {
	if _, err := l.achievements.Release(context.WithoutCancel(ctx), id); err != nil {
		l.log.Error().Err(err).Str("achievement_id", id).Msg("Failed to release claim reservation")
	} else {
		l.log.Warn().Err(cause).Str("achievement_id", id).Msg("Claim failed, reservation released")
	}
	return cause
}

func (l *Ledger) observeAttempts(n int) {
	if l.metrics != nil {
		l.metrics.Attempts.Observe(float64(n))
	}
}

func (l *Ledger) recordClaim(err error) {
	if l.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = credential.KindOf(err).String()
	}
	l.metrics.Claims.WithLabelValues(result).Inc()
}
