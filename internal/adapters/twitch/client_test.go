package twitch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/scenebot/internal/adapters/twitch"
	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	winID  = "73085848-a94d-4040-9d21-2cb7a89374b7"
	lossID = "906b70ba-1f12-47ea-9e95-e5f93d20e9cc"
	predID = "bc637af0-7766-4525-9308-4112f4cbf178"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

// helixServer sirve /helix/users con el fixture y delega /helix/predictions.
func helixServer(t *testing.T, predictions http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	users := fixture(t, "twitch_users.json")
	var userCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		userCalls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cid", r.Header.Get("Client-Id"))
		assert.Equal(t, "twitchdev", r.URL.Query().Get("login"))
		w.Write(users)
	})
	mux.HandleFunc("/helix/predictions", predictions)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &userCalls
}

func newClient(srv *httptest.Server) *twitch.Client {
	return twitch.NewClient(twitch.Config{
		ClientID:    "cid",
		Broadcaster: "twitchdev",
		HelixBase:   srv.URL + "/helix",
		TokenURL:    srv.URL + "/oauth2/token",
		Timeout:     time.Second,
	})
}

func TestCreatePrediction(t *testing.T) {
	active := fixture(t, "twitch_prediction_active.json")
	srv, userCalls := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "141981764", body["broadcaster_id"])
		assert.Equal(t, "Will I win this game?", body["title"])
		assert.EqualValues(t, 120, body["prediction_window"])
		outcomes := body["outcomes"].([]any)
		require.Len(t, outcomes, 2)
		assert.Equal(t, "Yes", outcomes[0].(map[string]any)["title"])
		assert.Equal(t, "No", outcomes[1].(map[string]any)["title"])
		w.Write(active)
	})
	c := newClient(srv)

	p, err := c.CreatePrediction(context.Background(), "tok", domain.PredictionRequest{
		Title: "Will I win this game?", WinOption: "Yes", LossOption: "No", WindowSeconds: 120,
	})
	require.NoError(t, err)
	assert.Equal(t, predID, p.ID)
	assert.Equal(t, domain.RemoteActive, p.Status)
	assert.Equal(t, winID, p.OutcomeID("Yes"))
	assert.Equal(t, lossID, p.OutcomeID("No"))
	assert.Empty(t, p.WinningOutcomeID)

	// El broadcaster ID queda cacheado.
	_, err = c.CreatePrediction(context.Background(), "tok", domain.PredictionRequest{
		Title: "Will I win this game?", WinOption: "Yes", LossOption: "No", WindowSeconds: 120,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), userCalls.Load())
}

func TestEndPrediction_Resolved(t *testing.T) {
	resolved := fixture(t, "twitch_prediction_resolved.json")
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, predID, body["id"])
		assert.Equal(t, "RESOLVED", body["status"])
		assert.Equal(t, winID, body["winning_outcome_id"])
		w.Write(resolved)
	})

	p, err := newClient(srv).EndPrediction(context.Background(), "tok", predID, domain.RemoteResolved, winID)
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteResolved, p.Status)
	assert.Equal(t, winID, p.WinningOutcomeID)
}

func TestEndPrediction_CancelOmitsWinner(t *testing.T) {
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CANCELED", body["status"])
		_, has := body["winning_outcome_id"]
		assert.False(t, has)
		w.Write([]byte(`{"data":[{"id":"` + predID + `","status":"CANCELED","outcomes":[]}]}`))
	})

	p, err := newClient(srv).EndPrediction(context.Background(), "tok", predID, domain.RemoteCanceled, winID)
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteCanceled, p.Status)
}

func TestGetPrediction_Query(t *testing.T) {
	active := fixture(t, "twitch_prediction_active.json")
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "141981764", r.URL.Query().Get("broadcaster_id"))
		assert.Equal(t, predID, r.URL.Query().Get("id"))
		w.Write(active)
	})

	p, err := newClient(srv).GetPrediction(context.Background(), "tok", predID)
	require.NoError(t, err)
	assert.Equal(t, predID, p.ID)
}

func TestLatestPrediction_Empty(t *testing.T) {
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("first"))
		w.Write([]byte(`{"data":[],"pagination":{}}`))
	})

	_, ok, err := newClient(srv).LatestPrediction(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnauthorized_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`))
	})

	_, err := newClient(srv).GetPrediction(context.Background(), "tok", predID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerError_Retried(t *testing.T) {
	active := fixture(t, "twitch_prediction_active.json")
	var calls atomic.Int32
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(active)
	})

	p, err := newClient(srv).GetPrediction(context.Background(), "tok", predID)
	require.NoError(t, err)
	assert.Equal(t, predID, p.ID)
	assert.Equal(t, int32(2), calls.Load())
}

// Un 5xx en la creación puede llegar con la predicción ya creada: no se repite el POST.
func TestCreatePrediction_ServerErrorNotRetried(t *testing.T) {
	active := fixture(t, "twitch_prediction_active.json")
	var posts atomic.Int32
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(active)
	})

	_, err := newClient(srv).CreatePrediction(context.Background(), "tok", domain.PredictionRequest{Title: "x", WinOption: "a", LossOption: "b", WindowSeconds: 60})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(1), posts.Load())
}

func TestCreatePrediction_RateLimitRetried(t *testing.T) {
	active := fixture(t, "twitch_prediction_active.json")
	var posts atomic.Int32
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(active)
	})

	p, err := newClient(srv).CreatePrediction(context.Background(), "tok", domain.PredictionRequest{Title: "x", WinOption: "a", LossOption: "b", WindowSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, predID, p.ID)
	assert.Equal(t, int32(2), posts.Load())
}

func TestClientError_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv, _ := helixServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"prediction already active"}`))
	})

	_, err := newClient(srv).CreatePrediction(context.Background(), "tok", domain.PredictionRequest{Title: "x", WinOption: "a", LossOption: "b", WindowSeconds: 60})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnknownBroadcaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, _, err := newClient(srv).LatestPrediction(context.Background(), "tok")
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestRefresh(t *testing.T) {
	token := fixture(t, "twitch_token.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth2/token", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, "old-refresh", form.Get("refresh_token"))
		assert.Equal(t, "cid", form.Get("client_id"))
		assert.Equal(t, "secret", form.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(token)
	}))
	defer srv.Close()

	c := twitch.NewClient(twitch.Config{ClientID: "cid", ClientSecret: "secret", TokenURL: srv.URL + "/oauth2/token"})
	before := time.Now()
	cred, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "1ssjqsqfy6bads1ws7m03gras79zfr", cred.AccessToken)
	assert.NotEmpty(t, cred.RefreshToken)
	assert.WithinDuration(t, before.Add(14124*time.Second), cred.ExpiresAt, 5*time.Second)
}

func TestRefresh_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":400,"message":"Invalid refresh token"}`))
	}))
	defer srv.Close()

	c := twitch.NewClient(twitch.Config{ClientID: "cid", TokenURL: srv.URL})
	_, err := c.Refresh(context.Background(), "bad")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
