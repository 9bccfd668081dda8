// Package achievement owns the achievement lifecycle: creation, proof submission and
// the verify/reject/claim reservation transitions. Every transition is a single
// compare-and-set over the Repository.
package achievement

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/store"
)

// CreateRequest carries the owner-supplied data of a new achievement.
type CreateRequest struct {
	Owner       common.Address
	CategoryID  string
	Title       string
	Description string
	Fields      map[string]string
}

type Store struct {
	repo    store.AchievementRepository
	catalog catalog.Catalog
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(repo store.AchievementRepository, cat catalog.Catalog, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		catalog: cat,
		log:     log.With().Str("component", "achievement-store").Logger(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, req CreateRequest) (*credential.Achievement, error) {
	if req.Owner == (common.Address{}) {
		return nil, credential.Validation("owner address is required")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, credential.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return nil, credential.Validation("title exceeds %d characters", MaxTitleLen)
	}
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLen {
		return nil, credential.Validation("description exceeds %d characters", MaxDescriptionLen)
	}
	cat, ok := s.catalog.Lookup(req.CategoryID)
	if !ok {
		return nil, credential.Validation("unknown category %q", req.CategoryID).
			WithContext("category", req.CategoryID)
	}
	fields := trimFields(req.Fields)
	if err := cat.ValidateFields(fields); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &credential.Achievement{
		ID:          s.newID(),
		Owner:       req.Owner,
		CategoryID:  cat.ID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Fields:      fields,
		Status:      credential.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if err := s.repo.CreateAchievement(ctx, a); err != nil {
		return nil, store.Translate(err, a.ID)
	}

	s.log.Info().
		Str("achievement_id", a.ID).
		Str("owner", a.Owner.Hex()).
		Str("category", a.CategoryID).
		Msg("Achievement created")
	return a, nil
}

// Submit attaches a proof and moves a draft or rejected achievement to submitted.
func (s *Store) Submit(ctx context.Context, id string, proof credential.Proof) (*credential.Achievement, error) {
	proof.Description = strings.TrimSpace(proof.Description)
	proof.ImageRef = strings.TrimSpace(proof.ImageRef)
	if proof.Description == "" {
		return nil, credential.Validation("proof description is required").WithAchievement(id)
	}
	if utf8.RuneCountInString(proof.Description) > MaxDescriptionLen {
		return nil, credential.Validation("proof description exceeds %d characters", MaxDescriptionLen).WithAchievement(id)
	}
	if proof.ImageRef != "" {
		u, err := url.Parse(proof.ImageRef)
		if err != nil || !u.IsAbs() {
			return nil, credential.Validation("proof image reference must be an absolute URI").
				WithAchievement(id).WithContext("image_ref", proof.ImageRef)
		}
	}

	return s.transition(ctx, id, "submit", func(a *credential.Achievement, now time.Time) error {
		if !a.Status.OneOf(credential.StatusDraft, credential.StatusRejected) {
			return credential.InvalidTransition(id, a.Status, "submit")
		}
		cat, ok := s.catalog.Lookup(a.CategoryID)
		if !ok {
			return credential.Validation("category %q is no longer defined", a.CategoryID).WithAchievement(id)
		}
		if err := cat.ValidateFields(a.Fields); err != nil {
			return err
		}
		p := proof
		a.Status = credential.StatusSubmitted
		a.Proof = &p
		a.RejectionReason = ""
		a.Verifier = common.Address{}
		a.SubmittedAt = &now
		return nil
	})
}

// Verify records a positive judgement. Authorization of the verifier is checked by the caller.
func (s *Store) Verify(ctx context.Context, id string, verifier common.Address) (*credential.Achievement, error) {
	if verifier == (common.Address{}) {
		return nil, credential.Validation("verifier address is required").WithAchievement(id)
	}
	return s.transition(ctx, id, "verify", func(a *credential.Achievement, now time.Time) error {
		if a.Status != credential.StatusSubmitted {
			return credential.InvalidTransition(id, a.Status, "verify")
		}
		a.Status = credential.StatusVerified
		a.Verifier = verifier
		a.VerifiedAt = &now
		return nil
	})
}

func (s *Store) Reject(ctx context.Context, id string, verifier common.Address, reason string) (*credential.Achievement, error) {
	if verifier == (common.Address{}) {
		return nil, credential.Validation("verifier address is required").WithAchievement(id)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, credential.Validation("rejection reason is required").WithAchievement(id)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return nil, credential.Validation("rejection reason exceeds %d characters", MaxReasonLen).WithAchievement(id)
	}
	return s.transition(ctx, id, "reject", func(a *credential.Achievement, now time.Time) error {
		if a.Status != credential.StatusSubmitted {
			return credential.InvalidTransition(id, a.Status, "reject")
		}
		a.Status = credential.StatusRejected
		a.Verifier = verifier
		a.RejectionReason = reason
		a.RejectedAt = &now
		return nil
	})
}

// Reserve moves a verified achievement owned by owner into claiming. Exactly one
// concurrent caller wins; the others see AlreadyClaimed.
func (s *Store) Reserve(ctx context.Context, id string, owner common.Address) (*credential.Achievement, error) {
	return s.transition(ctx, id, "claim", func(a *credential.Achievement, _ time.Time) error {
		if a.Owner != owner {
			return credential.Unauthorized("caller is not the owner of achievement %q", id).WithAchievement(id)
		}
		switch {
		case credential.CanTransition(a.Status, credential.StatusClaiming):
			a.Status = credential.StatusClaiming
			return nil
		case a.Status == credential.StatusClaiming || a.Status.Terminal():
			return credential.AlreadyClaimed("achievement %q is already claimed", id).WithAchievement(id)
		default:
			return credential.InvalidTransition(id, a.Status, "claim")
		}
	})
}

// Release reverts a failed reservation back to verified.
func (s *Store) Release(ctx context.Context, id string) (*credential.Achievement, error) {
	return s.transition(ctx, id, "release", func(a *credential.Achievement, _ time.Time) error {
		if a.Status != credential.StatusClaiming {
			return credential.InvalidTransition(id, a.Status, "release")
		}
		a.Status = credential.StatusVerified
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*credential.Achievement, error) {
	a, err := s.repo.GetAchievement(ctx, id)
	if err != nil {
		return nil, store.Translate(err, id)
	}
	return a, nil
}

// ListByOwner returns the owner's achievements ordered by creation.
func (s *Store) ListByOwner(ctx context.Context, owner common.Address) ([]*credential.Achievement, error) {
	if owner == (common.Address{}) {
		return nil, credential.Validation("owner address is required")
	}
	return s.List(ctx, store.AchievementFilter{Owner: owner})
}

func (s *Store) ListByStatus(ctx context.Context, status credential.Status) ([]*credential.Achievement, error) {
	if !status.Valid() {
		return nil, credential.Validation("unknown status %q", status)
	}
	return s.List(ctx, store.AchievementFilter{Status: status})
}

func (s *Store) List(ctx context.Context, f store.AchievementFilter) ([]*credential.Achievement, error) {
	out, err := s.repo.ListAchievements(ctx, f)
	if err != nil {
		return nil, credential.Internal("failed to list achievements").WithCause(err)
	}
	return out, nil
}

func (s *Store) transition(
	ctx context.Context,
	id, op string,
	apply func(a *credential.Achievement, now time.Time) error,
) (*credential.Achievement, error) {
	now := s.now().UTC()
	var (
		from    credential.Status
		updated *credential.Achievement
		err     error
	)
	// A lost version race is re-run against the fresh record so the caller sees
	// the precondition error of the winner's state instead of a bare conflict.
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		updated, err = s.repo.UpdateAchievement(ctx, id, func(a *credential.Achievement) error {
			from = a.Status
			return apply(a, now)
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		s.log.Debug().Err(err).Str("achievement_id", id).Str("op", op).Msg("Transition refused")
		return nil, store.Translate(err, id)
	}

	s.log.Info().
		Str("achievement_id", id).
		Str("op", op).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Uint64("version", updated.Version).
		Msg("Achievement transitioned")
	return updated, nil
}

func trimFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
