package metadata

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/catalog"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestMemory_ContentAddressed(t *testing.T) {
	m := NewMemory("http://localhost:8080/v1/objects/")
	ctx := t.Context()

	uri, err := m.Put(ctx, ContentTypeJSON, []byte(`{"a":1}`))
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte(`{"a":1}`))
	require.Equal(t, "http://localhost:8080/v1/objects/"+strings.TrimPrefix(digest.Hex(), "0x"), uri)

	again, err := m.Put(ctx, ContentTypeJSON, []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, uri, again)

	obj, err := m.Get(ctx, digest)
	require.NoError(t, err)
	require.Equal(t, ContentTypeJSON, obj.ContentType)
	require.Equal(t, []byte(`{"a":1}`), obj.Data)

	_, err = m.Get(ctx, common.Hash{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Put(ctx, ContentTypeJSON, nil)
	require.Error(t, err)
}

func TestParseDigest(t *testing.T) {
	d := crypto.Keccak256Hash([]byte("x"))
	for _, in := range []string{d.Hex(), strings.TrimPrefix(d.Hex(), "0x")} {
		got, err := ParseDigest(in)
		require.NoError(t, err)
		require.Equal(t, d, got)
	}
	_, err := ParseDigest("0x1234")
	require.Error(t, err)
	_, err = ParseDigest("zz")
	require.Error(t, err)
}

func TestImageStore(t *testing.T) {
	images := NewImageStore(NewMemory("mem://objects"), 64)
	ctx := t.Context()

	uri, contentType, err := images.PutImage(ctx, pngHeader)
	require.NoError(t, err)
	require.Equal(t, "image/png", contentType)
	require.True(t, strings.HasPrefix(uri, "mem://objects/"))

	_, _, err = images.PutImage(ctx, []byte("plain text is not an image"))
	require.True(t, credential.IsKind(err, credential.KindValidation))

	_, _, err = images.PutImage(ctx, append(append([]byte(nil), pngHeader...), make([]byte, 64)...))
	require.True(t, credential.IsKind(err, credential.KindValidation))

	_, _, err = images.PutImage(ctx, nil)
	require.True(t, credential.IsKind(err, credential.KindValidation))
}

func TestBuildTokenMetadata(t *testing.T) {
	verifiedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	cat, ok := catalog.MustNew().Lookup("sports")
	require.True(t, ok)

	a := &credential.Achievement{
		ID:          "ach-1",
		Owner:       common.HexToAddress("0xaa"),
		CategoryID:  "sports",
		Title:       "Boston Marathon",
		Description: "Finished in 3:05",
		Fields:      map[string]string{"event": "Boston Marathon", "date": "2025-04-21"},
		Proof:       &credential.Proof{Description: "bib", ImageRef: "mem://objects/img"},
		Verifier:    common.HexToAddress("0xcc"),
		VerifiedAt:  &verifiedAt,
	}
	md := BuildTokenMetadata(a, cat)
	require.Equal(t, "Boston Marathon", md.Name)
	require.Equal(t, "mem://objects/img", md.Image)

	enc, err := md.Encode()
	require.NoError(t, err)
	again, err := BuildTokenMetadata(a, cat).Encode()
	require.NoError(t, err)
	require.Equal(t, enc, again)

	var decoded TokenMetadata
	require.NoError(t, json.Unmarshal(enc, &decoded))
	traits := map[string]string{}
	for _, attr := range decoded.Attributes {
		traits[attr.TraitType] = attr.Value
	}
	require.Equal(t, "2025-04-21", traits["date"])
	require.Equal(t, "2025-05-01T12:00:00Z", traits["verified_at"])
	require.Equal(t, a.Verifier.Hex(), traits["verifier"])
	// fields come after the fixed traits, sorted by name
	require.Equal(t, "date", decoded.Attributes[len(decoded.Attributes)-2].TraitType)
}
