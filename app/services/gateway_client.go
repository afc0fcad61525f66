package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Gateway client error constants
var (
	ErrGatewayRateLimited = errors.New("gateway rejected the request with a rate limit")
	ErrGatewayUnavailable = errors.New("gateway is unreachable")
)

// SendResult reports the gateway's answer to a single message or group action
type SendResult struct {
	ExternalID string
	Status     string
}

// ProvisionInstanceResult carries the identity a gateway assigned to a new instance
type ProvisionInstanceResult struct {
	ExternalRef string
	QRCode      string
}

// GatewayClient talks to a WhatsApp gateway provider's HTTP API
type GatewayClient interface {
	SendMessage(ctx context.Context, instanceRef, phoneNumber, message string) (*SendResult, error)
	AddToGroup(ctx context.Context, instanceRef, phoneNumber, groupID string) (*SendResult, error)
	ProvisionInstance(ctx context.Context, name string) (*ProvisionInstanceResult, error)
	CheckInstance(ctx context.Context, instanceRef string) (string, error)
}

// HTTPGatewayClient implements GatewayClient against a provider endpoint
type HTTPGatewayClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPGatewayClient(baseURL, apiKey string, timeout time.Duration) *HTTPGatewayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGatewayClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	InstanceRef string `json:"instance_ref"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type addToGroupRequest struct {
	InstanceRef string `json:"instance_ref"`
	PhoneNumber string `json:"phone_number"`
	GroupID     string `json:"group_id"`
}

type gatewaySendResponse struct {
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Error      *string `json:"error"`
}

type provisionInstanceRequest struct {
	Name string `json:"name"`
}

type provisionInstanceResponse struct {
	ExternalRef string  `json:"external_ref"`
	QRCode      string  `json:"qr_code"`
	Error       *string `json:"error"`
}

type instanceStateResponse struct {
	State string  `json:"state"`
	Error *string `json:"error"`
}

// SendMessage pushes one text message through the given instance
func (c *HTTPGatewayClient) SendMessage(ctx context.Context, instanceRef, phoneNumber, message string) (*SendResult, error) {
	body := sendMessageRequest{InstanceRef: instanceRef, PhoneNumber: phoneNumber, Message: message}
	var resp gatewaySendResponse
	if err := c.postJSON(ctx, "/v1/messages", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && *resp.Error != "" {
		return nil, fmt.Errorf("gateway: send failed: %s", *resp.Error)
	}
	return &SendResult{ExternalID: resp.ExternalID, Status: resp.Status}, nil
}

// AddToGroup asks the gateway to add a phone number to a WhatsApp group
func (c *HTTPGatewayClient) AddToGroup(ctx context.Context, instanceRef, phoneNumber, groupID string) (*SendResult, error) {
	body := addToGroupRequest{InstanceRef: instanceRef, PhoneNumber: phoneNumber, GroupID: groupID}
	var resp gatewaySendResponse
	if err := c.postJSON(ctx, "/v1/groups/members", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && *resp.Error != "" {
		return nil, fmt.Errorf("gateway: group add failed: %s", *resp.Error)
	}
	return &SendResult{ExternalID: resp.ExternalID, Status: resp.Status}, nil
}

// ProvisionInstance registers a new instance slot with the provider
func (c *HTTPGatewayClient) ProvisionInstance(ctx context.Context, name string) (*ProvisionInstanceResult, error) {
	body := provisionInstanceRequest{Name: name}
	var resp provisionInstanceResponse
	if err := c.postJSON(ctx, "/v1/instances", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && *resp.Error != "" {
		return nil, fmt.Errorf("gateway: provision failed: %s", *resp.Error)
	}
	if resp.ExternalRef == "" {
		return nil, errors.New("gateway: empty external ref in provision response")
	}
	return &ProvisionInstanceResult{ExternalRef: resp.ExternalRef, QRCode: resp.QRCode}, nil
}

// CheckInstance returns the provider's view of an instance's connection state
func (c *HTTPGatewayClient) CheckInstance(ctx context.Context, instanceRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/instances/"+instanceRef, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrGatewayRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway: status %d for instance %s", resp.StatusCode, instanceRef)
	}
	var out instanceStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Error != nil && *out.Error != "" {
		return "", fmt.Errorf("gateway: %s", *out.Error)
	}
	return out.State, nil
}

func (c *HTTPGatewayClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrGatewayRateLimited
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway: status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MockGatewayClient is a development stand-in that accepts everything
type MockGatewayClient struct {
	mu    sync.Mutex
	calls int
}

func NewMockGatewayClient() *MockGatewayClient { return &MockGatewayClient{} }

func (m *MockGatewayClient) next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return fmt.Sprintf("mock-%d", m.calls)
}

func (m *MockGatewayClient) SendMessage(ctx context.Context, instanceRef, phoneNumber, message string) (*SendResult, error) {
	return &SendResult{ExternalID: m.next(), Status: "sent"}, nil
}

func (m *MockGatewayClient) AddToGroup(ctx context.Context, instanceRef, phoneNumber, groupID string) (*SendResult, error) {
	return &SendResult{ExternalID: m.next(), Status: "added"}, nil
}

func (m *MockGatewayClient) ProvisionInstance(ctx context.Context, name string) (*ProvisionInstanceResult, error) {
	return &ProvisionInstanceResult{ExternalRef: uuid.New().String(), QRCode: "mock-qr"}, nil
}

func (m *MockGatewayClient) CheckInstance(ctx context.Context, instanceRef string) (string, error) {
	return "connected", nil
}
