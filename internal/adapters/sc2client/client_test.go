package sc2client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/scenebot/internal/adapters/sc2client"
	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func newServer(t *testing.T, ui, game []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ui":
			w.Write(ui)
		case "/game":
			w.Write(game)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoll_Menu(t *testing.T) {
	srv := newServer(t, fixture(t, "sc2_ui_menu.json"), nil)
	c := sc2client.NewClient(srv.URL, time.Second)

	state, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateMenu, state)
}

func TestPoll_InGame(t *testing.T) {
	srv := newServer(t, []byte(`{"activeScreens": []}`), fixture(t, "sc2_game_live.json"))
	c := sc2client.NewClient(srv.URL, time.Second)

	state, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateInGame, state)
}

func TestPoll_LoadingScreenCountsAsGame(t *testing.T) {
	srv := newServer(t, fixture(t, "sc2_ui_loading.json"), fixture(t, "sc2_game_live.json"))
	c := sc2client.NewClient(srv.URL, time.Second)

	state, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateInGame, state)
}

func TestPoll_Replay(t *testing.T) {
	srv := newServer(t, []byte(`{"activeScreens": []}`), fixture(t, "sc2_game_replay.json"))
	c := sc2client.NewClient(srv.URL, time.Second)

	state, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateWatchingReplay, state)
}

func TestPoll_Malformed(t *testing.T) {
	srv := newServer(t, []byte(`{"screens": 3}`), nil)
	c := sc2client.NewClient(srv.URL, time.Second)

	state, err := c.Poll(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, domain.StateUnknown, state)
}

func TestPoll_ClientNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := sc2client.NewClient(url, time.Second)
	_, err := c.Poll(context.Background())
	assert.ErrorIs(t, err, domain.ErrClientUnavailable)
}

func TestLastOutcome(t *testing.T) {
	srv := newServer(t, nil, fixture(t, "sc2_game_victory.json"))
	c := sc2client.NewClient(srv.URL, time.Second)

	outcome, decided, isReplay, err := c.LastOutcome(context.Background())
	require.NoError(t, err)
	assert.True(t, decided)
	assert.False(t, isReplay)
	assert.Equal(t, domain.OutcomeWin, outcome)
}

func TestLocalResults_WaitsForDecidedResult(t *testing.T) {
	live := fixture(t, "sc2_game_live.json")
	victory := fixture(t, "sc2_game_victory.json")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write(live)
			return
		}
		w.Write(victory)
	}))
	defer srv.Close()

	results := sc2client.NewLocalResults(sc2client.NewClient(srv.URL, time.Second), 5*time.Millisecond, time.Second)
	end := time.Now()
	res, err := results.AwaitResult(context.Background(), "g1", end)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, res.Outcome)
	assert.Equal(t, "local:g1", res.SourceRecordID)
	assert.True(t, end.Equal(res.MatchTimestamp))
}

func TestLocalResults_TieIsLoss(t *testing.T) {
	srv := newServer(t, nil, []byte(`{"isReplay": false, "players": [{"result": "Tie"}]}`))
	results := sc2client.NewLocalResults(sc2client.NewClient(srv.URL, time.Second), 5*time.Millisecond, time.Second)

	res, err := results.AwaitResult(context.Background(), "g1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeLoss, res.Outcome)
}

func TestLocalResults_Ceiling(t *testing.T) {
	srv := newServer(t, nil, fixture(t, "sc2_game_live.json"))
	results := sc2client.NewLocalResults(sc2client.NewClient(srv.URL, time.Second), 5*time.Millisecond, 30*time.Millisecond)

	_, err := results.AwaitResult(context.Background(), "g1", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotYetAvailable)
}
