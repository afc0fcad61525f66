package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPGatewayClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewHTTPGatewayClient(srv.URL, "test-api-key", 5*time.Second)
	return srv, client
}

func TestHTTPGatewayClientSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var req sendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "inst-1", req.InstanceRef)
			assert.Equal(t, "+15550001234", req.PhoneNumber)

			json.NewEncoder(w).Encode(gatewaySendResponse{ExternalID: "ext-99", Status: "sent"})
		})

		result, err := client.SendMessage(ctx, "inst-1", "+15550001234", "hello")
		require.NoError(t, err)
		assert.Equal(t, "ext-99", result.ExternalID)
		assert.Equal(t, "sent", result.Status)
	})

	t.Run("RateLimited", func(t *testing.T) {
		_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.SendMessage(ctx, "inst-1", "+15550001234", "hello")
		assert.ErrorIs(t, err, ErrGatewayRateLimited)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()

		_, err := client.SendMessage(ctx, "inst-1", "+15550001234", "hello")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("ApplicationError", func(t *testing.T) {
		_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			msg := "number is not on whatsapp"
			json.NewEncoder(w).Encode(gatewaySendResponse{Error: &msg})
		})

		_, err := client.SendMessage(ctx, "inst-1", "+15550001234", "hello")
		assert.ErrorContains(t, err, "not on whatsapp")
	})
}

func TestHTTPGatewayClientProvisionInstance(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/instances", r.URL.Path)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(provisionInstanceResponse{ExternalRef: "wa-7", QRCode: "qr-data"})
		})

		result, err := client.ProvisionInstance(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, "wa-7", result.ExternalRef)
		assert.Equal(t, "qr-data", result.QRCode)
	})

	t.Run("EmptyExternalRef", func(t *testing.T) {
		_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(provisionInstanceResponse{})
		})

		_, err := client.ProvisionInstance(ctx, "fresh")
		assert.ErrorContains(t, err, "external ref")
	})
}

func TestHTTPGatewayClientCheckInstance(t *testing.T) {
	ctx := context.Background()

	_, client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instances/inst-3", r.URL.Path)
		json.NewEncoder(w).Encode(instanceStateResponse{State: "connected"})
	})

	state, err := client.CheckInstance(ctx, "inst-3")
	require.NoError(t, err)
	assert.Equal(t, "connected", state)
}

func TestMockGatewayClient(t *testing.T) {
	ctx := context.Background()
	client := NewMockGatewayClient()

	result, err := client.SendMessage(ctx, "any", "+15550001234", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ExternalID)

	provisioned, err := client.ProvisionInstance(ctx, "dev")
	require.NoError(t, err)
	assert.NotEmpty(t, provisioned.ExternalRef)

	state, err := client.CheckInstance(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, "connected", state)
}
