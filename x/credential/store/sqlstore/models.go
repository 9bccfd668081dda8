package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/compose-network/issuer/x/credential"
)

type achievementModel struct {
	bun.BaseModel `bun:"table:achievements"`

	ID               string     `bun:"id,pk"`
	Owner            string     `bun:"owner,notnull"`
	CategoryID       string     `bun:"category_id,notnull"`
	Title            string     `bun:"title,notnull"`
	Description      string     `bun:"description,notnull"`
	Fields           string     `bun:"fields,notnull"`
	Status           string     `bun:"status,notnull"`
	ProofDescription string     `bun:"proof_description"`
	ProofImageRef    string     `bun:"proof_image_ref"`
	HasProof         bool       `bun:"has_proof,notnull"`
	Verifier         string     `bun:"verifier"`
	RejectionReason  string     `bun:"rejection_reason"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
	SubmittedAt      *time.Time `bun:"submitted_at"`
	VerifiedAt       *time.Time `bun:"verified_at"`
	RejectedAt       *time.Time `bun:"rejected_at"`
	ClaimedAt        *time.Time `bun:"claimed_at"`
	Version          uint64     `bun:"version,notnull"`
}

type verifierModel struct {
	bun.BaseModel `bun:"table:verifiers"`

	Address      string    `bun:"address,pk"`
	DisplayName  string    `bun:"display_name,notnull"`
	Credentials  string    `bun:"credentials"`
	Categories   string    `bun:"categories,notnull"`
	RegisteredAt time.Time `bun:"registered_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

type certificateModel struct {
	bun.BaseModel `bun:"table:certificates"`

	ID            string    `bun:"id,pk"`
	AchievementID string    `bun:"achievement_id,notnull,unique"`
	Owner         string    `bun:"owner,notnull"`
	TokenID       string    `bun:"token_id,notnull"`
	TokenURI      string    `bun:"token_uri,notnull"`
	TxHash        string    `bun:"tx_hash,notnull"`
	MintedAt      time.Time `bun:"minted_at,notnull"`
	Nonce         string    `bun:"nonce,notnull"`
}

type nonceModel struct {
	bun.BaseModel `bun:"table:used_nonces"`

	Nonce         string    `bun:"nonce,pk"`
	AchievementID string    `bun:"achievement_id,notnull"`
	UsedAt        time.Time `bun:"used_at,notnull"`
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
}

// --- Mapping helpers ---

func achievementToModel(a *credential.Achievement) (achievementModel, error) {
	fields := a.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return achievementModel{}, err
	}
	m := achievementModel{
		ID:              a.ID,
		Owner:           a.Owner.Hex(),
		CategoryID:      a.CategoryID,
		Title:           a.Title,
		Description:     a.Description,
		Fields:          string(raw),
		Status:          string(a.Status),
		RejectionReason: a.RejectionReason,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
		SubmittedAt:     utcPtr(a.SubmittedAt),
		VerifiedAt:      utcPtr(a.VerifiedAt),
		RejectedAt:      utcPtr(a.RejectedAt),
		ClaimedAt:       utcPtr(a.ClaimedAt),
		Version:         a.Version,
	}
	if a.Verifier != (common.Address{}) {
		m.Verifier = a.Verifier.Hex()
	}
	if a.Proof != nil {
		m.HasProof = true
		m.ProofDescription = a.Proof.Description
		m.ProofImageRef = a.Proof.ImageRef
	}
	return m, nil
}

func modelToAchievement(m achievementModel) (*credential.Achievement, error) {
	fields := map[string]string{}
	if strings.TrimSpace(m.Fields) != "" {
		if err := json.Unmarshal([]byte(m.Fields), &fields); err != nil {
			return nil, err
		}
	}
	a := &credential.Achievement{
		ID:              m.ID,
		Owner:           common.HexToAddress(m.Owner),
		CategoryID:      m.CategoryID,
		Title:           m.Title,
		Description:     m.Description,
		Fields:          fields,
		Status:          credential.Status(m.Status),
		RejectionReason: m.RejectionReason,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		SubmittedAt:     utcPtr(m.SubmittedAt),
		VerifiedAt:      utcPtr(m.VerifiedAt),
		RejectedAt:      utcPtr(m.RejectedAt),
		ClaimedAt:       utcPtr(m.ClaimedAt),
		Version:         m.Version,
	}
	if m.Verifier != "" {
		a.Verifier = common.HexToAddress(m.Verifier)
	}
	if m.HasProof {
		a.Proof = &credential.Proof{Description: m.ProofDescription, ImageRef: m.ProofImageRef}
	}
	return a, nil
}

func verifierToModel(v *credential.Verifier) verifierModel {
	return verifierModel{
		Address:      v.Address.Hex(),
		DisplayName:  v.DisplayName,
		Credentials:  v.Credentials,
		Categories:   strings.Join(v.Categories, ","),
		RegisteredAt: v.RegisteredAt.UTC(),
		UpdatedAt:    v.UpdatedAt.UTC(),
	}
}

func modelToVerifier(m verifierModel) *credential.Verifier {
	cats := []string{}
	if m.Categories != "" {
		cats = strings.Split(m.Categories, ",")
	}
	return &credential.Verifier{
		Address:      common.HexToAddress(m.Address),
		DisplayName:  m.DisplayName,
		Credentials:  m.Credentials,
		Categories:   cats,
		RegisteredAt: m.RegisteredAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func certificateToModel(c *credential.Certificate) certificateModel {
	return certificateModel{
		ID:            c.ID,
		AchievementID: c.AchievementID,
		Owner:         c.Owner.Hex(),
		TokenID:       c.TokenID,
		TokenURI:      c.TokenURI,
		TxHash:        c.TxHash.Hex(),
		MintedAt:      c.MintedAt.UTC(),
		Nonce:         c.Nonce.Hex(),
	}
}

func modelToCertificate(m certificateModel) *credential.Certificate {
	return &credential.Certificate{
		ID:            m.ID,
		AchievementID: m.AchievementID,
		Owner:         common.HexToAddress(m.Owner),
		TokenID:       m.TokenID,
		TokenURI:      m.TokenURI,
		TxHash:        common.HexToHash(m.TxHash),
		MintedAt:      m.MintedAt.UTC(),
		Nonce:         common.HexToHash(m.Nonce),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
