// Package verification coordinates proof submission and expert judgement.
package verification

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/store"
)

const (
	actionSubmit  = "submit"
	actionApprove = "approve"
	actionReject  = "reject"
)

// Authorizer answers whether a verifier may judge a category.
type Authorizer interface {
	IsAuthorized(ctx context.Context, addr common.Address, categoryID string) (bool, error)
	CategoriesOf(ctx context.Context, addr common.Address) ([]string, error)
}

type Coordinator struct {
	achievements *achievement.Store
	verifiers    Authorizer
	metrics      *Metrics
	log          zerolog.Logger
}

func NewCoordinator(achievements *achievement.Store, verifiers Authorizer, m *Metrics, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		achievements: achievements,
		verifiers:    verifiers,
		metrics:      m,
		log:          log.With().Str("component", "verification").Logger(),
	}
}

// SubmitForVerification submits proof on behalf of caller, who must own the achievement.
func (c *Coordinator) SubmitForVerification(
	ctx context.Context,
	id string,
	caller common.Address,
	proof credential.Proof,
) (a *credential.Achievement, err error) {
	defer func() { c.metrics.record(actionSubmit, err) }()

	cur, err := c.achievements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Owner != caller {
		return nil, credential.Unauthorized("caller is not the owner of achievement %q", id).
			WithAchievement(id).WithContext("caller", caller.Hex())
	}
	return c.achievements.Submit(ctx, id, proof)
}

// Approve marks a submitted achievement verified. The verifier's categories are
// re-read for every call before the status compare-and-set.
func (c *Coordinator) Approve(ctx context.Context, id string, verifier common.Address) (a *credential.Achievement, err error) {
	defer func() { c.metrics.record(actionApprove, err) }()

	if err := c.authorize(ctx, id, verifier); err != nil {
		return nil, err
	}
	a, err = c.achievements.Verify(ctx, id, verifier)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("achievement_id", id).Str("verifier", verifier.Hex()).Msg("Achievement approved")
	return a, nil
}

func (c *Coordinator) Reject(
	ctx context.Context,
	id string,
	verifier common.Address,
	reason string,
) (a *credential.Achievement, err error) {
	defer func() { c.metrics.record(actionReject, err) }()

	if err := c.authorize(ctx, id, verifier); err != nil {
		return nil, err
	}
	a, err = c.achievements.Reject(ctx, id, verifier, reason)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("achievement_id", id).Str("verifier", verifier.Hex()).Msg("Achievement rejected")
	return a, nil
}

// ListPending returns submitted achievements. A non-zero verifier limits the result
// to the categories they may judge.
func (c *Coordinator) ListPending(ctx context.Context, verifier common.Address) ([]*credential.Achievement, error) {
	f := store.AchievementFilter{Status: credential.StatusSubmitted}
	if verifier != (common.Address{}) {
		cats, err := c.verifiers.CategoriesOf(ctx, verifier)
		if err != nil {
			return nil, err
		}
		if len(cats) == 0 {
			return []*credential.Achievement{}, nil
		}
		f.Categories = cats
	}
	return c.achievements.List(ctx, f)
}

func (c *Coordinator) authorize(ctx context.Context, id string, verifier common.Address) error {
	if verifier == (common.Address{}) {
		return credential.Validation("verifier address is required").WithAchievement(id)
	}
	cur, err := c.achievements.Get(ctx, id)
	if err != nil {
		return err
	}
	ok, err := c.verifiers.IsAuthorized(ctx, verifier, cur.CategoryID)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn().
			Str("achievement_id", id).
			Str("verifier", verifier.Hex()).
			Str("category", cur.CategoryID).
			Msg("Verifier not authorized for category")
		return credential.Unauthorized("verifier %s may not judge category %q", verifier.Hex(), cur.CategoryID).
			WithAchievement(id).WithContext("category", cur.CategoryID)
	}
	return nil
}

func credentialCode(err error) string {
	return credential.KindOf(err).String()
}
