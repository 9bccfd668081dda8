package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/issuer/x/credential"
)

var _ Repository = (*Memory)(nil)

// Memory is an arena-with-index Repository; suitable for tests and single-instance deployments.
// Records live in append-only arenas addressed by index maps, so listing preserves insertion order.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	achievements []*credential.Achievement
	byID         map[string]int
	byOwner      map[common.Address][]int

	verifiers map[common.Address]*credential.Verifier

	certificates  []*credential.Certificate
	certByAchieve map[string]int

	nonces map[common.Hash]credential.UsedNonce
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		byID:          make(map[string]int),
		byOwner:       make(map[common.Address][]int),
		verifiers:     make(map[common.Address]*credential.Verifier),
		certByAchieve: make(map[string]int),
		nonces:        make(map[common.Hash]credential.UsedNonce),
	}
}

func (m *Memory) CreateAchievement(_ context.Context, a *credential.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[a.ID]; exists {
		return ErrDuplicate
	}
	cp := a.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	idx := len(m.achievements)
	m.achievements = append(m.achievements, cp)
	m.byID[cp.ID] = idx
	m.byOwner[cp.Owner] = append(m.byOwner[cp.Owner], idx)
	a.Version = cp.Version
	return nil
}

func (m *Memory) GetAchievement(_ context.Context, id string) (*credential.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.achievements[idx].Clone(), nil
}

func (m *Memory) ListAchievements(_ context.Context, f AchievementFilter) ([]*credential.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.achievements
	if f.Owner != (common.Address{}) {
		idxs := m.byOwner[f.Owner]
		candidates = make([]*credential.Achievement, 0, len(idxs))
		for _, i := range idxs {
			candidates = append(candidates, m.achievements[i])
		}
	}

	out := make([]*credential.Achievement, 0)
	for _, a := range candidates {
		if f.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// UpdateAchievement holds the write lock across read, mutate and store, so it never conflicts.
func (m *Memory) UpdateAchievement(_ context.Context, id string, mutate MutateFunc) (*credential.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := ApplyMutation(m.achievements[idx], mutate, m.now())
	if err != nil {
		return nil, err
	}
	m.achievements[idx] = next
	return next.Clone(), nil
}

func (m *Memory) UpsertVerifier(_ context.Context, v *credential.Verifier) (*credential.Verifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := v.Clone()
	now := m.now()
	if existing, ok := m.verifiers[v.Address]; ok {
		cp.RegisteredAt = existing.RegisteredAt
	} else if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = now
	}
	cp.UpdatedAt = now
	m.verifiers[v.Address] = cp
	return cp.Clone(), nil
}

func (m *Memory) GetVerifier(_ context.Context, addr common.Address) (*credential.Verifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verifiers[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return v.Clone(), nil
}

func (m *Memory) ListVerifiers(_ context.Context) ([]*credential.Verifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*credential.Verifier, 0, len(m.verifiers))
	for _, v := range m.verifiers {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (m *Memory) CommitClaim(_ context.Context, cert *credential.Certificate) (*credential.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.certByAchieve[cert.AchievementID]; exists {
		return nil, ErrDuplicate
	}
	idx, ok := m.byID[cert.AchievementID]
	if !ok {
		return nil, ErrNotFound
	}
	cur := m.achievements[idx]
	if cur.Status != credential.StatusClaiming {
		return nil, ErrConflict
	}

	next, _ := ApplyMutation(cur, func(a *credential.Achievement) error {
		minted := cert.MintedAt
		a.Status = credential.StatusClaimed
		a.ClaimedAt = &minted
		return nil
	}, m.now())

	cp := *cert
	m.certByAchieve[cp.AchievementID] = len(m.certificates)
	m.certificates = append(m.certificates, &cp)
	m.achievements[idx] = next
	return next.Clone(), nil
}

func (m *Memory) GetCertificate(_ context.Context, achievementID string) (*credential.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.certByAchieve[achievementID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.certificates[idx]
	return &cp, nil
}

func (m *Memory) ListCertificates(_ context.Context, owner common.Address) ([]*credential.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*credential.Certificate, 0)
	for _, c := range m.certificates {
		if owner != (common.Address{}) && c.Owner != owner {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) BurnNonce(_ context.Context, n credential.UsedNonce) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.nonces[n.Nonce]; used {
		return ErrDuplicate
	}
	if n.UsedAt.IsZero() {
		n.UsedAt = m.now()
	}
	m.nonces[n.Nonce] = n
	return nil
}

func (m *Memory) NonceUsed(_ context.Context, nonce common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, used := m.nonces[nonce]
	return used, nil
}

// Close is a no-op for the in-memory repository.
func (m *Memory) Close() error {
	return nil
}
