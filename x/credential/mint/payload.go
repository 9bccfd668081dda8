package mint

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrDigestMismatch   = errors.New("digest does not match payload")
	ErrWrongIssuer      = errors.New("signed by unexpected issuer")
	ErrExpired          = errors.New("authorization expired")

	errNonceExhausted = errors.New("nonce attempts exhausted")
)

// Payload is the data the issuer commits to. It is encoded exactly like the Solidity
// expression abi.encode(owner, achievementId, categoryId, metadataURI, nonce, expiresAt).
type Payload struct {
	Owner         common.Address `json:"owner"`
	AchievementID string         `json:"achievement_id"`
	CategoryID    string         `json:"category_id"`
	MetadataURI   string         `json:"metadata_uri"`
	Nonce         common.Hash    `json:"nonce"`
	ExpiresAt     uint64         `json:"expires_at"`
}

// Authorization is a signed, single-use permission to mint one certificate.
type Authorization struct {
	Payload   Payload        `json:"payload"`
	Digest    common.Hash    `json:"digest"`
	Signature hexutil.Bytes  `json:"signature"`
	Issuer    common.Address `json:"issuer"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

var payloadArguments = abi.Arguments{
	{Name: "owner", Type: mustType("address")},
	{Name: "achievementId", Type: mustType("string")},
	{Name: "categoryId", Type: mustType("string")},
	{Name: "metadataURI", Type: mustType("string")},
	{Name: "nonce", Type: mustType("bytes32")},
	{Name: "expiresAt", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// Encode returns the canonical ABI encoding of p.
func (p Payload) Encode() ([]byte, error) {
	return payloadArguments.Pack(
		p.Owner,
		p.AchievementID,
		p.CategoryID,
		p.MetadataURI,
		[32]byte(p.Nonce),
		new(big.Int).SetUint64(p.ExpiresAt),
	)
}

// Digest is keccak256 of the canonical encoding.
func (p Payload) Digest() (common.Hash, error) {
	enc, err := p.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Verify checks that auth is well formed, signed by issuer and unexpired at now.
func Verify(auth *Authorization, issuer common.Address, now time.Time) error {
	if auth == nil {
		return ErrInvalidSignature
	}
	digest, err := auth.Payload.Digest()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if digest != auth.Digest {
		return ErrDigestMismatch
	}
	signer, err := RecoverSigner(digest, auth.Signature)
	if err != nil {
		return err
	}
	if signer != issuer {
		return fmt.Errorf("%w: %s", ErrWrongIssuer, signer.Hex())
	}
	if Expired(auth, now) {
		return ErrExpired
	}
	return nil
}

// Expired reports whether the payload deadline has passed at now.
func Expired(auth *Authorization, now time.Time) bool {
	return uint64(now.Unix()) >= auth.Payload.ExpiresAt
}
