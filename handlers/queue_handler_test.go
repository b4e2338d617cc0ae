package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-system/config"
	"queue-system/models"
	"queue-system/realtime"
	"queue-system/services"
)

type harness struct {
	cfg   *config.Config
	queue *services.QueueService
	hub   *realtime.Hub
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		DataDir:                  t.TempDir(),
		ClinicID:                 "clinic-test",
		RemoteKeyPrefix:          "queue:entry:",
		DefaultAvgServiceSeconds: 180,
		ServiceCapacity:          1,
		MedianSampleSize:         50,
		PairingTimeout:           30 * time.Second,
		AllowWebTokens:           true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	estimator := services.NewEstimator(cfg)
	ledger, err := services.NewLedger(cfg, estimator)
	require.NoError(t, err)

	hub := realtime.NewHub()
	broadcaster := services.NewBroadcaster(ledger, estimator, hub, nil, nil, cfg)
	queue := services.NewQueueService(ledger, estimator, nil, broadcaster, nil, nil)
	return &harness{cfg: cfg, queue: queue, hub: hub}
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req, httptest.NewRecorder()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestQueueHandler_TakeToken(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/take", `{"name":"Alice"}`)
	c := e.NewContext(req, rec)

	require.NoError(t, handler.TakeToken(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["token"])
}

func TestQueueHandler_TakeTokenBlockedByPolicy(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.AllowWebTokens = false
		cfg.AdminSecret = "topsecret"
	})
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/take", `{"name":"Alice"}`)
	c := e.NewContext(req, rec)

	require.NoError(t, handler.TakeToken(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueueHandler_TakeTokenWithAdminSecret(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.AllowWebTokens = false
		cfg.AdminSecret = "topsecret"
	})
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	for _, header := range []string{"x-admin-token", "x-admin-secret"} {
		req, rec := jsonRequest(http.MethodPost, "/api/take", `{}`)
		req.Header.Set(header, "topsecret")
		c := e.NewContext(req, rec)

		require.NoError(t, handler.TakeToken(c))
		assert.Equal(t, http.StatusOK, rec.Code, "header %s", header)
	}

	// a wrong secret is still blocked
	req, rec := jsonRequest(http.MethodPost, "/api/take", `{}`)
	req.Header.Set("x-admin-token", "wrong")
	c := e.NewContext(req, rec)
	require.NoError(t, handler.TakeToken(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueueHandler_GetQueue(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	_, err := h.queue.TakeToken(context.Background(), models.Profile{Name: "Alice"}, "web")
	require.NoError(t, err)

	req, rec := jsonRequest(http.MethodGet, "/api/queue", "")
	c := e.NewContext(req, rec)

	require.NoError(t, handler.GetQueue(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["lastToken"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
}

func TestQueueHandler_Cancel(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/take", `{}`)
	require.NoError(t, handler.TakeToken(e.NewContext(req, rec)))

	req, rec = jsonRequest(http.MethodPost, "/api/cancel", `{"token":1}`)
	require.NoError(t, handler.Cancel(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// cancelling twice conflicts
	req, rec = jsonRequest(http.MethodPost, "/api/cancel", `{"token":1}`)
	require.NoError(t, handler.Cancel(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueHandler_CancelUnknownToken(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/cancel", `{"token":42}`)
	require.NoError(t, handler.Cancel(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueHandler_CancelMissingToken(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/cancel", `{}`)
	require.NoError(t, handler.Cancel(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueHandler_Arrive(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/api/take", `{}`)
	require.NoError(t, handler.TakeToken(e.NewContext(req, rec)))

	req, rec = jsonRequest(http.MethodPost, "/api/arrive", `{"token":1,"elapsedTime":240}`)
	require.NoError(t, handler.Arrive(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(240), body["waitingTime"])
}

func TestQueueHandler_ETA(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	for i := 0; i < 2; i++ {
		req, rec := jsonRequest(http.MethodPost, "/api/take", `{}`)
		require.NoError(t, handler.TakeToken(e.NewContext(req, rec)))
	}

	req, rec := jsonRequest(http.MethodGet, "/api/eta?token=2", "")
	require.NoError(t, handler.ETA(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["ahead"])
	assert.Equal(t, float64(180), body["etaSeconds"])
	assert.Equal(t, "3m", body["etaHuman"])
}

func TestQueueHandler_ETARequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	handler := NewQueueHandler(h.queue, h.cfg)
	e := echo.New()

	for _, target := range []string{"/api/eta", "/api/eta?token=abc", "/api/eta?token=0"} {
		req, rec := jsonRequest(http.MethodGet, target, "")
		require.NoError(t, handler.ETA(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
