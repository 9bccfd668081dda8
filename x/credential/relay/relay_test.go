package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/mint"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type noNonces struct{}

func (noNonces) NonceUsed(context.Context, common.Hash) (bool, error) { return false, nil }

func signedAuthorization(t *testing.T) (*mint.Authorization, *mint.Signer) {
	t.Helper()
	signer, err := mint.GenerateSigner()
	require.NoError(t, err)
	authorizer := mint.NewAuthorizer(signer, noNonces{}, mint.DefaultConfig(), zerolog.Nop())
	auth, err := authorizer.Authorize(t.Context(), &credential.Achievement{
		ID:         "ach-1",
		Owner:      common.HexToAddress("0xaa"),
		CategoryID: "sports",
		Status:     credential.StatusVerified,
	}, "mem://objects/meta")
	require.NoError(t, err)
	return auth, signer
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestLocal_MintsSequentialTokens(t *testing.T) {
	auth, signer := signedAuthorization(t)
	l := NewLocal(signer.Address(), zerolog.Nop())

	r, err := l.Mint(t.Context(), auth)
	require.NoError(t, err)
	require.Equal(t, "1", r.TokenID)
	require.NotEqual(t, common.Hash{}, r.TxHash)

	_, err = l.Mint(t.Context(), auth)
	require.ErrorIs(t, err, ErrNonceReplayed)

	other, _ := signedAuthorization(t)
	_, err = l.Mint(t.Context(), other)
	require.ErrorIs(t, err, mint.ErrWrongIssuer)
}

func TestLocal_RejectsExpired(t *testing.T) {
	auth, signer := signedAuthorization(t)
	l := NewLocal(signer.Address(), zerolog.Nop(), WithLocalClock(func() time.Time { return time.Now().Add(time.Hour) }))

	_, err := l.Mint(t.Context(), auth)
	require.ErrorIs(t, err, mint.ErrExpired)
}

func TestLocal_LatencyHonoursDeadline(t *testing.T) {
	auth, signer := signedAuthorization(t)
	l := NewLocal(signer.Address(), zerolog.Nop(), WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Mint(ctx, auth)
	require.True(t, IsTimeout(err))
}

func TestLocal_CancelIsNotTimeout(t *testing.T) {
	auth, signer := signedAuthorization(t)
	l := NewLocal(signer.Address(), zerolog.Nop(), WithLatency(time.Second))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := l.Mint(ctx, auth)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTimeout(err))
}

func TestHTTPClient_Mint(t *testing.T) {
	auth, _ := signedAuthorization(t)
	var sent mintRequest
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/v1/mint", req.URL.Path)
		require.Equal(t, "application/json", req.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
		return jsonResponse(http.StatusOK,
			`{"success":true,"token_id":"42","tx_hash":"0x0000000000000000000000000000000000000000000000000000000000000abc"}`), nil
	})

	client, err := NewHTTPClient("http://relay.local/v1", &http.Client{Transport: mock}, zerolog.Nop())
	require.NoError(t, err)

	r, err := client.Mint(t.Context(), auth)
	require.NoError(t, err)
	require.Equal(t, "42", r.TokenID)
	require.Equal(t, common.HexToHash("0xabc"), r.TxHash)

	require.Equal(t, auth.Digest, sent.Digest)
	require.Equal(t, auth.Issuer, sent.Issuer)
	require.Equal(t, []byte(auth.Signature), []byte(sent.Signature))
	require.Equal(t, auth.Payload, sent.Payload)
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		resp    *http.Response
		err     error
		timeout bool
	}{
		{name: "server error", resp: jsonResponse(http.StatusInternalServerError, "boom")},
		{name: "gateway timeout", resp: jsonResponse(http.StatusGatewayTimeout, ""), timeout: true},
		{name: "unsuccessful", resp: jsonResponse(http.StatusOK, `{"success":false,"error":"reverted"}`)},
		{name: "missing token", resp: jsonResponse(http.StatusOK, `{"success":true,"tx_hash":"0x01"}`)},
		{name: "bad hash", resp: jsonResponse(http.StatusOK, `{"success":true,"token_id":"1","tx_hash":"0x01"}`)},
		{name: "transport deadline", err: context.DeadlineExceeded, timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, _ := signedAuthorization(t)
			mock := roundTripFunc(func(*http.Request) (*http.Response, error) { return tt.resp, tt.err })
			client, err := NewHTTPClient("http://relay.local", &http.Client{Transport: mock}, zerolog.Nop())
			require.NoError(t, err)

			_, err = client.Mint(t.Context(), auth)
			require.Error(t, err)
			require.Equal(t, tt.timeout, IsTimeout(err), "err: %v", err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Mode = ModeHTTP
	require.Error(t, cfg.Validate())
	cfg.BaseURL = "https://relay.example"
	require.NoError(t, cfg.Validate())

	cfg.Mode = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}
