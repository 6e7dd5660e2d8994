package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
)

const DefaultTimeout = 30 * time.Second

// Client is a minimal HTTP client for the Vault API, token-authenticated.
// The demonstration only needs logical reads/writes and a few sys
// endpoints, so it talks to /v1 directly rather than pulling in the full
// Vault SDK.
type Client struct {
	address    string
	token      string
	httpClient *http.Client
}

// Secret is a logical read response.
type Secret struct {
	RequestID     string                 `json:"request_id"`
	LeaseID       string                 `json:"lease_id"`
	LeaseDuration int                    `json:"lease_duration"`
	Renewable     bool                   `json:"renewable"`
	Data          map[string]interface{} `json:"data"`
}

// NewClient creates a Vault client for the given address and token.
func NewClient(address, token string) *Client {
	return &Client{
		address:    strings.TrimSuffix(address, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Address returns the configured Vault address.
func (c *Client) Address() string {
	return c.address
}

// Health checks the Vault server health endpoint. Dev-mode servers report
// initialized and unsealed; anything unreachable or sealed is an error.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.address+"/v1/sys/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 200 = initialized, unsealed, active; 429 = standby (still usable)
	if resp.StatusCode != 200 && resp.StatusCode != 429 {
		return fmt.Errorf("vault health check returned status %d", resp.StatusCode)
	}
	return nil
}

// TokenLookupSelf validates the configured token.
func (c *Client) TokenLookupSelf(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.address+"/v1/auth/token/lookup-self", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return fmt.Errorf("token validation failed with status %d", resp.StatusCode)
	}
	return nil
}

// Read fetches a secret from Vault. Returns (nil, nil) when the path does
// not exist.
func (c *Client) Read(ctx context.Context, path string) (*Secret, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.logicalURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == 404 {
		return nil, nil // Secret not found
	}

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var secret Secret
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &secret, nil
}

// Write posts data to a logical path. Vault returns 200 or 204 on success
// depending on whether the endpoint produces output.
func (c *Client) Write(ctx context.Context, path string, data map[string]interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.logicalURL(path), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// MountExists reports whether a secrets engine is mounted at the path.
func (c *Client) MountExists(ctx context.Context, mountPath string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.address+"/v1/sys/mounts", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var mounts map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&mounts); err != nil {
		return false, fmt.Errorf("failed to decode mounts: %w", err)
	}

	// Mount keys carry a trailing slash, e.g. "aws/"
	_, ok := mounts[strings.TrimSuffix(mountPath, "/")+"/"]
	return ok, nil
}

// EnableSecretsEngine mounts a secrets engine of the given type.
func (c *Client) EnableSecretsEngine(ctx context.Context, mountPath, engineType, description string) error {
	payload := map[string]interface{}{
		"type":        engineType,
		"description": description,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mount request: %w", err)
	}

	url := c.address + "/v1/sys/mounts/" + strings.Trim(mountPath, "/")
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dserrors.EndpointError("vault", c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("enabling %s engine at %s failed with status %d: %s",
			engineType, mountPath, resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) logicalURL(path string) string {
	return c.address + "/v1/" + strings.TrimPrefix(path, "/")
}
