package metadata

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/catalog"
)

const ContentTypeJSON = "application/json"

// Attribute follows the OpenSea trait convention.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// TokenMetadata is the ERC-721 metadata document a certificate's tokenURI points at.
type TokenMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// BuildTokenMetadata describes a verified achievement.
func BuildTokenMetadata(a *credential.Achievement, cat catalog.Category) TokenMetadata {
	md := TokenMetadata{
		Name:        a.Title,
		Description: a.Description,
		Attributes: []Attribute{
			{TraitType: "category", Value: cat.Name},
			{TraitType: "achievement_id", Value: a.ID},
			{TraitType: "owner", Value: a.Owner.Hex()},
		},
	}
	if a.Proof != nil {
		md.Image = a.Proof.ImageRef
	}
	if a.Verifier != (common.Address{}) {
		md.Attributes = append(md.Attributes, Attribute{TraitType: "verifier", Value: a.Verifier.Hex()})
	}
	if a.VerifiedAt != nil {
		md.Attributes = append(md.Attributes, Attribute{TraitType: "verified_at", Value: a.VerifiedAt.UTC().Format(time.RFC3339)})
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		md.Attributes = append(md.Attributes, Attribute{TraitType: k, Value: a.Fields[k]})
	}
	return md
}

// Encode returns the canonical JSON document. Identical achievements encode identically.
func (m TokenMetadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}
