package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simurgh-io/simurgh/app/dto"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
)

// stubDispatchFlow answers every call with a fixed error
type stubDispatchFlow struct {
	err error
}

func (s *stubDispatchFlow) DispatchCampaign(ctx context.Context, req *dto.DispatchCampaignRequest, metadata *businessflow.ClientMetadata) (*dto.DispatchCampaignResponse, error) {
	return nil, s.err
}

func (s *stubDispatchFlow) ReportProgress(ctx context.Context, campaignUUID string, req *dto.CampaignProgressRequest) (*dto.CampaignDTO, error) {
	return nil, s.err
}

func (s *stubDispatchFlow) GetCampaign(ctx context.Context, campaignUUID string) (*dto.CampaignDTO, error) {
	return nil, s.err
}

func dispatchApp(err error) *fiber.App {
	app := fiber.New()
	handler := NewDispatchHandler(&stubDispatchFlow{err: err})
	app.Post("/api/v1/campaigns/dispatch", handler.DispatchCampaign)
	return app
}

const dispatchBody = `{"customer_id":7,"kind":"send_message","message_body":"hi","contacts":[{"contact_id":1,"phone_number":"+15550001234"}]}`

func postDispatch(t *testing.T, app *fiber.App) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/campaigns/dispatch", strings.NewReader(dispatchBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

// Pool exhaustion and a dead broker are backpressure conditions the caller
// should retry later, so they answer 503 rather than a conflict.
func TestDispatchCampaignBackpressureStatus(t *testing.T) {
	t.Run("QuotaExceeded", func(t *testing.T) {
		app := dispatchApp(businessflow.ErrQuotaExceeded)
		assert.Equal(t, fiber.StatusServiceUnavailable, postDispatch(t, app))
	})

	t.Run("NoInstanceAvailable", func(t *testing.T) {
		app := dispatchApp(businessflow.ErrNoInstanceAvailable)
		assert.Equal(t, fiber.StatusServiceUnavailable, postDispatch(t, app))
	})

	t.Run("BrokerUnavailable", func(t *testing.T) {
		app := dispatchApp(businessflow.ErrBrokerUnavailable)
		assert.Equal(t, fiber.StatusServiceUnavailable, postDispatch(t, app))
	})
}
