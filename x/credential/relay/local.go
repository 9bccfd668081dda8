package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential/mint"
)

var ErrNonceReplayed = errors.New("nonce already redeemed on chain")

var _ Relay = (*Local)(nil)

// Local simulates the certificate contract in process: it checks the issuer signature
// and expiry, rejects reused nonces and assigns sequential token ids.
type Local struct {
	mu       sync.Mutex
	issuer   common.Address
	delay    time.Duration
	now      func() time.Time
	nextID   *big.Int
	redeemed map[common.Hash]struct{}
	log      zerolog.Logger
}

type LocalOption func(*Local)

// WithLatency delays every mint, honouring context cancellation.
func WithLatency(d time.Duration) LocalOption {
	return func(l *Local) { l.delay = d }
}

func WithLocalClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

func NewLocal(issuer common.Address, log zerolog.Logger, opts ...LocalOption) *Local {
	l := &Local{
		issuer:   issuer,
		now:      time.Now,
		nextID:   big.NewInt(1),
		redeemed: make(map[common.Hash]struct{}),
		log:      log.With().Str("component", "local-relay").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Mint(ctx context.Context, auth *mint.Authorization) (Receipt, error) {
	if l.delay > 0 {
		timer := time.NewTimer(l.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Receipt{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
			return Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := mint.Verify(auth, l.issuer, l.now()); err != nil {
		return Receipt{}, fmt.Errorf("authorization rejected: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.redeemed[auth.Payload.Nonce]; seen {
		return Receipt{}, ErrNonceReplayed
	}
	l.redeemed[auth.Payload.Nonce] = struct{}{}

	tokenID := new(big.Int).Set(l.nextID)
	l.nextID.Add(l.nextID, big.NewInt(1))
	txHash := crypto.Keccak256Hash(auth.Digest.Bytes(), common.BigToHash(tokenID).Bytes())

	l.log.Info().
		Str("achievement_id", auth.Payload.AchievementID).
		Str("token_id", tokenID.String()).
		Str("tx_hash", txHash.Hex()).
		Msg("Certificate minted")
	return Receipt{TokenID: tokenID.String(), TxHash: txHash}, nil
}
