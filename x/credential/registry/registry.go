// Package registry keeps the verifiers and the categories each may judge.
// Reads always go to the repository; an authorization decision is never served
// from a process-local copy.
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/store"
)

const maxNameLen = 120

type RegisterRequest struct {
	Address     common.Address
	Name        string
	Categories  []string
	Credentials string
}

type Registry struct {
	repo    store.VerifierRepository
	catalog catalog.Catalog
	log     zerolog.Logger
}

func New(repo store.VerifierRepository, cat catalog.Catalog, log zerolog.Logger) *Registry {
	return &Registry{
		repo:    repo,
		catalog: cat,
		log:     log.With().Str("component", "verifier-registry").Logger(),
	}
}

// Register inserts or replaces a verifier. Categories must exist in the catalog
// and are stored deduplicated and sorted.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*credential.Verifier, error) {
	if req.Address == (common.Address{}) {
		return nil, credential.Validation("verifier address is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, credential.Validation("verifier name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, credential.Validation("verifier name exceeds %d characters", maxNameLen)
	}
	if len(req.Categories) == 0 {
		return nil, credential.Validation("at least one category is required")
	}

	set := make(map[string]struct{}, len(req.Categories))
	for _, raw := range req.Categories {
		cat, ok := r.catalog.Lookup(raw)
		if !ok {
			return nil, credential.Validation("unknown category %q", raw).WithContext("category", raw)
		}
		set[cat.ID] = struct{}{}
	}
	categories := make([]string, 0, len(set))
	for id := range set {
		categories = append(categories, id)
	}
	sort.Strings(categories)

	v, err := r.repo.UpsertVerifier(ctx, &credential.Verifier{
		Address:     req.Address,
		DisplayName: name,
		Credentials: strings.TrimSpace(req.Credentials),
		Categories:  categories,
	})
	if err != nil {
		return nil, credential.Internal("failed to store verifier").WithCause(err)
	}

	r.log.Info().
		Str("verifier", v.Address.Hex()).
		Strs("categories", v.Categories).
		Msg("Verifier registered")
	return v, nil
}

func (r *Registry) Get(ctx context.Context, addr common.Address) (*credential.Verifier, error) {
	v, err := r.repo.GetVerifier(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, credential.NotFound("verifier %s is not registered", addr.Hex())
	}
	if err != nil {
		return nil, credential.Internal("failed to load verifier").WithCause(err)
	}
	return v, nil
}

// CategoriesOf returns the categories addr may judge; unknown verifiers have none.
func (r *Registry) CategoriesOf(ctx context.Context, addr common.Address) ([]string, error) {
	v, err := r.Get(ctx, addr)
	if credential.IsKind(err, credential.KindNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return v.Categories, nil
}

func (r *Registry) IsAuthorized(ctx context.Context, addr common.Address, categoryID string) (bool, error) {
	cats, err := r.CategoriesOf(ctx, addr)
	if err != nil {
		return false, err
	}
	id := catalog.NormalizeID(categoryID)
	for _, c := range cats {
		if c == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) List(ctx context.Context) ([]*credential.Verifier, error) {
	out, err := r.repo.ListVerifiers(ctx)
	if err != nil {
		return nil, credential.Internal("failed to list verifiers").WithCause(err)
	}
	return out, nil
}
