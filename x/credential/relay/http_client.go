package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/compose-network/issuer/x/credential/mint"
)

var _ Relay = (*HTTPClient)(nil)

// HTTPClient submits authorizations to a gasless relay service over REST.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

func NewHTTPClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := log.With().Str("component", "relay-client").Logger()

	logger.Info().
		Str("base_url", rawURL).
		Dur("timeout", httpClient.Timeout).
		Msg("HTTP relay client initialized")

	return &HTTPClient{baseURL: parsed, httpClient: httpClient, log: logger}, nil
}

type mintRequest struct {
	Payload   mint.Payload   `json:"payload"`
	Digest    common.Hash    `json:"digest"`
	Signature hexutil.Bytes  `json:"signature"`
	Issuer    common.Address `json:"issuer"`
}

type mintResponse struct {
	Success bool    `json:"success"`
	TokenID string  `json:"token_id"`
	TxHash  string  `json:"tx_hash"`
	Error   *string `json:"error"`
}

func (c *HTTPClient) Mint(ctx context.Context, auth *mint.Authorization) (Receipt, error) {
	endpoint := c.buildURL("mint")

	body, err := json.Marshal(mintRequest{
		Payload:   auth.Payload,
		Digest:    auth.Digest,
		Signature: auth.Signature,
		Issuer:    auth.Issuer,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Str("endpoint", endpoint).
		Str("achievement_id", auth.Payload.AchievementID).
		Str("nonce", auth.Payload.Nonce.Hex()).
		Msg("submitting mint authorization")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return Receipt{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("mint request failed")
		return Receipt{}, fmt.Errorf("post mint request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusGatewayTimeout || res.StatusCode == http.StatusRequestTimeout {
		return Receipt{}, fmt.Errorf("%w: relay returned %s", ErrTimeout, res.Status)
	}
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("response", string(msg)).
			Msg("relay returned error response")
		return Receipt{}, fmt.Errorf("relay returned %s: %s", res.Status, string(msg))
	}

	var out mintResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		if isTimeout(ctx, err) {
			return Receipt{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Receipt{}, fmt.Errorf("decode relay response: %w", err)
	}
	if !out.Success {
		msg := "relay reported failure"
		if out.Error != nil {
			msg = *out.Error
		}
		return Receipt{}, fmt.Errorf("relay rejected mint: %s", msg)
	}
	if out.TokenID == "" {
		return Receipt{}, errors.New("relay response missing token_id")
	}
	txHash, err := hexutil.Decode(out.TxHash)
	if err != nil || len(txHash) != common.HashLength {
		return Receipt{}, fmt.Errorf("relay response has invalid tx_hash %q", out.TxHash)
	}

	receipt := Receipt{TokenID: out.TokenID, TxHash: common.BytesToHash(txHash)}
	c.log.Info().
		Str("achievement_id", auth.Payload.AchievementID).
		Str("token_id", receipt.TokenID).
		Str("tx_hash", receipt.TxHash.Hex()).
		Msg("mint relayed")
	return receipt, nil
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
