package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/util"
)

// HTTPRelayChannel talks to the store-and-forward relay service. One POST
// carries the whole request; the response body is the host's single
// complete reply. There is no streaming on this path, so a plain request
// timeout applies.
type HTTPRelayChannel struct {
	baseURL   string
	authToken string
	client    *http.Client
}

var _ ports.RelayChannel = (*HTTPRelayChannel)(nil)

func NewHTTPRelayChannel(baseURL, authToken string, timeout time.Duration) *HTTPRelayChannel {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPRelayChannel{
		baseURL:   util.NormaliseBaseURL(baseURL),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPRelayChannel) Exchange(ctx context.Context, deviceID, conversationID string, payload []byte) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("relay service is not configured")
	}

	url := util.ResolveURLPath(c.baseURL, fmt.Sprintf("v1/relay/%s/conversations/%s", deviceID, conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.NewHTTPStatusError(resp.StatusCode, body)
	}
	return string(body), nil
}

// RelayMetadataSource refreshes a relay backend's advertised identity from
// the relay service's device catalogue.
type RelayMetadataSource struct {
	baseURL   string
	authToken string
	client    *http.Client
}

var _ ports.BackendMetadataSource = (*RelayMetadataSource)(nil)

func NewRelayMetadataSource(baseURL, authToken string, timeout time.Duration) *RelayMetadataSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayMetadataSource{
		baseURL:   util.NormaliseBaseURL(baseURL),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type relayMetadataPayload struct {
	DeviceID    string `json:"device_id"`
	NetworkName string `json:"network_name"`
	LANURL      string `json:"lan_url"`
	AuthToken   string `json:"auth_token"`
}

func (s *RelayMetadataSource) Refresh(ctx context.Context, backend domain.RemoteBackend) (domain.RemoteBackend, error) {
	if s.baseURL == "" {
		return backend, fmt.Errorf("relay service is not configured")
	}
	deviceID := backend.Relay.DeviceID
	if deviceID == "" {
		return backend, fmt.Errorf("backend %s has no relay device id", backend.Name)
	}

	url := util.ResolveURLPath(s.baseURL, fmt.Sprintf("v1/relay/%s/metadata", deviceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backend, err
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return backend, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxErrorExcerptBytes))
		return backend, domain.NewHTTPStatusError(resp.StatusCode, body)
	}

	var payload relayMetadataPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return backend, fmt.Errorf("failed to decode relay metadata: %w", err)
	}

	return backend.WithRelayMetadata(domain.RelayMetadata{
		DeviceID:    deviceID,
		NetworkName: payload.NetworkName,
		LANURL:      payload.LANURL,
		AuthToken:   payload.AuthToken,
	}), nil
}
