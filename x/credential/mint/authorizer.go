// Package mint issues signed mint authorizations for verified achievements.
package mint

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential"
)

// NonceChecker reports whether a nonce was already burned.
type NonceChecker interface {
	NonceUsed(ctx context.Context, nonce common.Hash) (bool, error)
}

type Authorizer struct {
	signer *Signer
	nonces NonceChecker
	cfg    Config
	now    func() time.Time
	random io.Reader
	log    zerolog.Logger
}

type Option func(*Authorizer)

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// WithRandom replaces crypto/rand as the nonce source.
func WithRandom(r io.Reader) Option {
	return func(a *Authorizer) { a.random = r }
}

func NewAuthorizer(signer *Signer, nonces NonceChecker, cfg Config, log zerolog.Logger, opts ...Option) *Authorizer {
	if cfg.AuthorizationTTL <= 0 {
		cfg.AuthorizationTTL = DefaultConfig().AuthorizationTTL
	}
	if cfg.NonceAttempts <= 0 {
		cfg.NonceAttempts = DefaultConfig().NonceAttempts
	}
	a := &Authorizer{
		signer: signer,
		nonces: nonces,
		cfg:    cfg,
		now:    time.Now,
		random: rand.Reader,
		log:    log.With().Str("component", "mint-authorizer").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issuer is the address every authorization is signed by.
func (a *Authorizer) Issuer() common.Address {
	return a.signer.Address()
}

// Authorize signs a fresh, nonce-bound authorization for a verified achievement.
// The nonce is not burned here.
func (a *Authorizer) Authorize(ctx context.Context, ach *credential.Achievement, metadataURI string) (*Authorization, error) {
	if ach == nil {
		return nil, credential.Validation("achievement is required")
	}
	if !ach.Status.OneOf(credential.StatusVerified, credential.StatusClaiming) {
		return nil, credential.Precondition("achievement %q is %s, not verified", ach.ID, ach.Status).
			WithAchievement(ach.ID).WithContext("status", string(ach.Status))
	}
	if strings.TrimSpace(metadataURI) == "" {
		return nil, credential.Validation("metadata URI is required").WithAchievement(ach.ID)
	}

	nonce, err := a.freshNonce(ctx)
	if err != nil {
		return nil, credential.Internal("failed to draw an unused nonce").WithAchievement(ach.ID).WithCause(err)
	}

	issuedAt := a.now().UTC()
	expiresAt := time.Unix(issuedAt.Add(a.cfg.AuthorizationTTL).Unix(), 0).UTC()
	payload := Payload{
		Owner:         ach.Owner,
		AchievementID: ach.ID,
		CategoryID:    ach.CategoryID,
		MetadataURI:   metadataURI,
		Nonce:         nonce,
		ExpiresAt:     uint64(expiresAt.Unix()),
	}
	digest, err := payload.Digest()
	if err != nil {
		return nil, credential.Internal("failed to encode payload").WithAchievement(ach.ID).WithCause(err)
	}
	sig, err := a.signer.SignDigest(digest)
	if err != nil {
		return nil, credential.Internal("failed to sign authorization").WithAchievement(ach.ID).WithCause(err)
	}

	a.log.Debug().
		Str("achievement_id", ach.ID).
		Str("nonce", nonce.Hex()).
		Time("expires_at", expiresAt).
		Msg("Mint authorization issued")

	return &Authorization{
		Payload:   payload,
		Digest:    digest,
		Signature: sig,
		Issuer:    a.signer.Address(),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (a *Authorizer) freshNonce(ctx context.Context) (common.Hash, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.NonceAttempts; attempt++ {
		var nonce common.Hash
		if _, err := io.ReadFull(a.random, nonce[:]); err != nil {
			return common.Hash{}, err
		}
		used, err := a.nonces.NonceUsed(ctx, nonce)
		if err != nil {
			lastErr = err
			continue
		}
		if !used {
			return nonce, nil
		}
		a.log.Warn().Int("attempt", attempt).Str("nonce", nonce.Hex()).Msg("Drew an already used nonce")
	}
	if lastErr != nil {
		return common.Hash{}, lastErr
	}
	return common.Hash{}, errNonceExhausted
}
