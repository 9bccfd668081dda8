package credential

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is the evidence an owner attaches when submitting an achievement.
type Proof struct {
	Description string `json:"description"`
	ImageRef    string `json:"image_ref,omitempty"`
}

// Achievement is a user's claim of accomplishment tracked through the verification lifecycle.
type Achievement struct {
	ID              string            `json:"id"`
	Owner           common.Address    `json:"owner"`
	CategoryID      string            `json:"category_id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Fields          map[string]string `json:"fields"`
	Status          Status            `json:"status"`
	Proof           *Proof            `json:"proof,omitempty"`
	Verifier        common.Address    `json:"verifier"`
	RejectionReason string            `json:"rejection_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`

	// Version increases on every stored mutation and backs compare-and-set.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy so stored records never alias caller-held values.
func (a *Achievement) Clone() *Achievement {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Fields != nil {
		cp.Fields = make(map[string]string, len(a.Fields))
		for k, v := range a.Fields {
			cp.Fields[k] = v
		}
	}
	if a.Proof != nil {
		p := *a.Proof
		cp.Proof = &p
	}
	cp.SubmittedAt = cloneTime(a.SubmittedAt)
	cp.VerifiedAt = cloneTime(a.VerifiedAt)
	cp.RejectedAt = cloneTime(a.RejectedAt)
	cp.ClaimedAt = cloneTime(a.ClaimedAt)
	return &cp
}

// Verifier is an identity allowed to judge achievements in a set of categories.
type Verifier struct {
	Address      common.Address `json:"address"`
	DisplayName  string         `json:"display_name"`
	Credentials  string         `json:"credentials"`
	Categories   []string       `json:"categories"`
	RegisteredAt time.Time      `json:"registered_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of v.
func (v *Verifier) Clone() *Verifier {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Categories = append([]string(nil), v.Categories...)
	return &cp
}

// HasCategory reports whether the verifier may judge categoryID.
func (v *Verifier) HasCategory(categoryID string) bool {
	if v == nil {
		return false
	}
	for _, c := range v.Categories {
		if c == categoryID {
			return true
		}
	}
	return false
}

// Certificate is the issued, immutable record bound to exactly one achievement.
type Certificate struct {
	ID            string         `json:"id"`
	AchievementID string         `json:"achievement_id"`
	Owner         common.Address `json:"owner"`
	TokenID       string         `json:"token_id"`
	TokenURI      string         `json:"token_uri"`
	TxHash        common.Hash    `json:"tx_hash"`
	MintedAt      time.Time      `json:"minted_at"`
	Nonce         common.Hash    `json:"nonce"`
}

// UsedNonce records a burned authorization nonce.
type UsedNonce struct {
	Nonce         common.Hash `json:"nonce"`
	AchievementID string      `json:"achievement_id"`
	UsedAt        time.Time   `json:"used_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
