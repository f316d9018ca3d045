package sc2replaystats_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/scenebot/internal/adapters/sc2replaystats"
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

func newServer(t *testing.T, lastReplay []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	players := fixture(t, "sc2rs_players.json")
	var playerCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/account/players":
			playerCalls.Add(1)
			w.Write(players)
		case "/account/last-replay":
			w.Write(lastReplay)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &playerCalls
}

func TestPlayerIDs_MixedTypes(t *testing.T) {
	srv, _ := newServer(t, nil)
	c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

	ids, err := c.PlayerIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"4821", "77310"}, ids)
}

func TestRecentReplays_Loss(t *testing.T) {
	srv, playerCalls := newServer(t, fixture(t, "sc2rs_last_replay.json"))
	c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

	recs, err := c.RecentReplays(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "24610027", rec.ID)
	assert.Equal(t, domain.OutcomeLoss, rec.Outcome)
	assert.True(t, rec.EndedAt.Equal(time.Date(2026, 8, 20, 22, 40, 2, 0, time.UTC)))
	assert.Equal(t, "Alcyone LE", rec.Summary.MapName)
	assert.Equal(t, 754*time.Second, rec.Summary.GameLength)
	require.Len(t, rec.Summary.Players, 2)
	assert.Equal(t, domain.ReplayPlayer{Name: "Jaedolph", Race: "Terran", MMR: 4329, APM: 700}, rec.Summary.Players[0])
	assert.True(t, rec.Summary.Players[1].Winner)
	assert.Equal(t, "Zerg", rec.Summary.Players[1].Race)

	// Los IDs de la cuenta se piden una sola vez.
	_, err = c.RecentReplays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), playerCalls.Load())
}

func TestRecentReplays_Win(t *testing.T) {
	srv, _ := newServer(t, []byte(`{
		"replay_date": "2026-08-20T22:40:02+0200",
		"map_name": "Oceanborn LE",
		"game_length": 61,
		"players": [
			{"winner": 1, "race": "P", "mmr": 4000, "apm": 90, "player": {"players_id": "77310", "players_name": "Jaedolph"}},
			{"winner": 0, "race": "Z", "mmr": 0, "apm": 83, "player": {"players_id": 1, "players_name": "A.I. 1 (Easy)"}}
		]
	}`))
	c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

	recs, err := c.RecentReplays(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OutcomeWin, recs[0].Outcome)
	assert.True(t, recs[0].EndedAt.Equal(time.Date(2026, 8, 20, 20, 40, 2, 0, time.UTC)))
	// Sin replay_id se usa un ID compuesto estable.
	assert.NotEmpty(t, recs[0].ID)
	assert.Contains(t, recs[0].ID, "Oceanborn LE")
}

func TestRecentReplays_NotInAccount(t *testing.T) {
	srv, _ := newServer(t, []byte(`{
		"replay_id": 5,
		"replay_date": "2026-08-20T22:40:02+0000",
		"map_name": "Oceanborn LE",
		"game_length": 61,
		"players": [
			{"winner": 1, "race": "P", "mmr": 1, "apm": 1, "player": {"players_id": 11, "players_name": "a"}},
			{"winner": 0, "race": "T", "mmr": 1, "apm": 1, "player": {"players_id": 12, "players_name": "b"}}
		]
	}`))
	c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

	recs, err := c.RecentReplays(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OutcomeUnknown, recs[0].Outcome)
}

func TestRecentReplays_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad date", `{"replay_date": "yesterday", "map_name": "x", "game_length": 1, "players": []}`},
		{"missing length", `{"replay_date": "2026-08-20T22:40:02+0000", "map_name": "x", "players": [{"race":"T"}]}`},
		{"unknown race", `{"replay_date": "2026-08-20T22:40:02+0000", "map_name": "x", "game_length": 1, "players": [{"race":"R"}]}`},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, []byte(tt.body))
			c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

			_, err := c.RecentReplays(context.Background())
			require.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestUnauthorized(t *testing.T) {
	srv, _ := newServer(t, nil)
	c := sc2replaystats.NewClient(srv.URL, "wrong", time.Second)

	_, err := c.PlayerIDs(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestServerError_Retried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := sc2replaystats.NewClient(srv.URL, "key", time.Second)

	ids, err := c.PlayerIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, int32(2), calls.Load())
}
