package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/api/controllers"
	"github.com/angelmondragon/offers-backend/internal/publish"
	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubPublishService struct{}

func (stubPublishService) PublishOffer(context.Context, publish.PublishInput) (*models.Offer, error) {
	return &models.Offer{OfferCode: "A"}, nil
}

func (stubPublishService) PublishCampaign(context.Context, publish.CampaignInput) ([]*models.Offer, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, readiness map[string]controllers.Pinger) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewPublishMetrics(reg)
	m.IncOutcome("acquisition", "PROD")
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, reg, readiness, stubPublishService{})
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t, map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}})

	cases := []struct {
		target string
		status int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/offers/A/publish?store=google", http.StatusCreated},
		{"/campaign/7a0c4c1e-3a8e-4ad2-9d7e-0b7f6a2f3c11/publish", http.StatusCreated},
		{"/offers/A", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.target, nil))
		assert.Equal(t, tc.status, w.Code, tc.target)
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"), tc.target)
	}
}

func TestReadyFailsWhenDependencyDown(t *testing.T) {
	h := newTestRouter(t, map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("connection refused")}})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `publish_outcome_total{status="PROD",variant="acquisition"} 1`)
}

func TestPublishRoutesAreNotCacheable(t *testing.T) {
	h := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/offers/A/publish?store=google", nil))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}
