// Package relay submits signed mint authorizations to the chain. The chain side is a
// black box: a Relay either returns a receipt or fails.
package relay

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/issuer/x/credential/mint"
)

// ErrTimeout marks a relay call whose outcome is unknown because it did not finish in time.
var ErrTimeout = errors.New("relay timed out")

// Receipt identifies the minted token.
type Receipt struct {
	TokenID string      `json:"token_id"`
	TxHash  common.Hash `json:"tx_hash"`
}

type Relay interface {
	Mint(ctx context.Context, auth *mint.Authorization) (Receipt, error)
}

// IsTimeout reports whether err means the relay call ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
