// Package store defines the Repository the credential components persist through.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/issuer/x/credential"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a compare-and-set lost against a concurrent writer.
	ErrConflict = errors.New("concurrent modification")
)

// MutateFunc receives a copy of the current record and edits it in place.
// Returning an error aborts the update and is passed through unchanged.
type MutateFunc func(a *credential.Achievement) error

// AchievementFilter narrows ListAchievements. Zero values match everything.
type AchievementFilter struct {
	Owner      common.Address
	Status     credential.Status
	Categories []string
}

// Matches reports whether a satisfies the filter.
func (f AchievementFilter) Matches(a *credential.Achievement) bool {
	if f.Owner != (common.Address{}) && a.Owner != f.Owner {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if len(f.Categories) > 0 {
		for _, c := range f.Categories {
			if c == a.CategoryID {
				return true
			}
		}
		return false
	}
	return true
}

type AchievementRepository interface {
	CreateAchievement(ctx context.Context, a *credential.Achievement) error
	GetAchievement(ctx context.Context, id string) (*credential.Achievement, error)
	// ListAchievements returns matches ordered by creation time.
	ListAchievements(ctx context.Context, f AchievementFilter) ([]*credential.Achievement, error)
	// UpdateAchievement applies mutate and stores the result in one atomic step.
	// The write only lands if the record is unchanged since it was read; otherwise ErrConflict.
	UpdateAchievement(ctx context.Context, id string, mutate MutateFunc) (*credential.Achievement, error)
}

type VerifierRepository interface {
	// UpsertVerifier inserts or replaces a verifier, keeping the original RegisteredAt.
	UpsertVerifier(ctx context.Context, v *credential.Verifier) (*credential.Verifier, error)
	GetVerifier(ctx context.Context, addr common.Address) (*credential.Verifier, error)
	ListVerifiers(ctx context.Context) ([]*credential.Verifier, error)
}

type CertificateRepository interface {
	// CommitClaim stores cert and moves its achievement from claiming to claimed atomically.
	// ErrDuplicate if a certificate already exists, ErrConflict if the achievement is not claiming.
	CommitClaim(ctx context.Context, cert *credential.Certificate) (*credential.Achievement, error)
	GetCertificate(ctx context.Context, achievementID string) (*credential.Certificate, error)
	ListCertificates(ctx context.Context, owner common.Address) ([]*credential.Certificate, error)
}

type NonceRepository interface {
	// BurnNonce records n as used. ErrDuplicate if it was already used.
	BurnNonce(ctx context.Context, n credential.UsedNonce) error
	NonceUsed(ctx context.Context, nonce common.Hash) (bool, error)
}

// Repository is the full persistence surface.
type Repository interface {
	AchievementRepository
	VerifierRepository
	CertificateRepository
	NonceRepository
	Close() error
}

// ApplyMutation runs mutate on a copy of cur and stamps the bookkeeping fields.
// Identity fields are restored after mutate so no update can rewrite them.
func ApplyMutation(cur *credential.Achievement, mutate MutateFunc, now time.Time) (*credential.Achievement, error) {
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.Owner = cur.Owner
	next.CategoryID = cur.CategoryID
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	return next, nil
}

// Translate converts repository sentinels into the credential taxonomy for the
// achievement id. Errors already in the taxonomy pass through.
func Translate(err error, id string) error {
	if err == nil {
		return nil
	}
	var ce *credential.Error
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, ErrNotFound):
		return credential.NotFound("achievement %q not found", id).WithAchievement(id)
	case errors.Is(err, ErrConflict):
		return credential.InvalidState("achievement %q was modified concurrently", id).
			WithAchievement(id).WithCause(err)
	case errors.Is(err, ErrDuplicate):
		return credential.Validation("achievement %q already exists", id).WithAchievement(id)
	default:
		return credential.Internal("repository failure").WithAchievement(id).WithCause(err)
	}
}
