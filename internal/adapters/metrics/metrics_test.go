package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/scenebot/internal/adapters/metrics"
	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewPrometheus()
	m.ObservePoll(true)
	m.ObservePoll(false)
	m.ObserveTransition(domain.StateTransitionEvent{From: domain.StateMenu, To: domain.StateInGame, Timestamp: time.Now()})
	m.ObserveDegraded(true)
	m.ObserveSceneSwitch("In Game", nil)
	m.ObserveSceneSwitch("Missing", domain.ErrSceneRejected)
	m.ObservePrediction(domain.PredictionActive)
	m.ObserveCorrelation(domain.OutcomeWin, 40*time.Second, nil)
	m.ObserveCorrelation(domain.OutcomeUnknown, time.Minute, errors.New("timeout"))
	m.ObserveTokenRefresh(nil)

	srv := httptest.NewServer(metrics.Routes(m, nil, nil))
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, code)
	for _, want := range []string{
		`scenebot_game_polls_total{result="ok"} 1`,
		`scenebot_game_polls_total{result="error"} 1`,
		`scenebot_state_transitions_total{from="MENU",to="IN_GAME"} 1`,
		`scenebot_monitor_degraded 1`,
		`scenebot_scene_switches_total{result="ok",scene="In Game"} 1`,
		`scenebot_scene_switches_total{result="rejected",scene="Missing"} 1`,
		`scenebot_prediction_transitions_total{status="ACTIVE"} 1`,
		`scenebot_result_correlations_total{outcome="WIN"} 1`,
		`scenebot_result_correlations_total{outcome="none"} 1`,
		`scenebot_result_correlation_seconds_count 1`,
		`scenebot_token_refreshes_total{result="ok"} 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestHealthz(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(metrics.Routes(metrics.NewPrometheus(), nil, healthy.Load))
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	healthy.Store(false)
	code, body = get(t, srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"degraded"}`, body)
}

func TestStatus(t *testing.T) {
	status := func(context.Context) any {
		return map[string]any{"confirmed": "IN_GAME", "prediction": map[string]string{"status": "ACTIVE"}}
	}
	srv := httptest.NewServer(metrics.Routes(metrics.NewPrometheus(), status, nil))
	defer srv.Close()

	code, body := get(t, srv, "/status")
	require.Equal(t, http.StatusOK, code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, "IN_GAME", doc["confirmed"])
}
