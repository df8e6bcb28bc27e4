package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mintExchange/internal/model"
)

// Client queries a Farcaster-style directory for the profiles linked to addresses.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Resolve returns the profiles linked to address. No match is an empty result.
func (c *Client) Resolve(ctx context.Context, address string) ([]model.Identity, error) {
	address = strings.ToLower(address)
	found, err := c.ResolveMany(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	return found[address], nil
}

// ResolveMany looks up several addresses in one request, keyed by lowercase address.
func (c *Client) ResolveMany(ctx context.Context, addresses []string) (map[string][]model.Identity, error) {
	if len(addresses) == 0 {
		return map[string][]model.Identity{}, nil
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("identity url is not configured")
	}

	lowered := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		lowered = append(lowered, strings.ToLower(addr))
	}
	endpoint := c.baseURL + "/farcaster/user/bulk-by-address?addresses=" + url.QueryEscape(strings.Join(lowered, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string][]model.Identity{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string][]model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	out := make(map[string][]model.Identity, len(payload))
	for addr, identities := range payload {
		out[strings.ToLower(addr)] = identities
	}
	return out, nil
}
