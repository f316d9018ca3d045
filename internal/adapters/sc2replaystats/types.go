package sc2replaystats

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexID acepta IDs numéricos o como string: la API mezcla ambos.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// accountPlayer es un elemento de GET /account/players.
type accountPlayer struct {
	Player struct {
		ID   flexID `json:"players_id"`
		Name string `json:"players_name"`
	} `json:"player"`
}

// lastReplay es la respuesta de GET /account/last-replay.
type lastReplay struct {
	ReplayID   flexID         `json:"replay_id"`
	ReplayDate string         `json:"replay_date"`
	MapName    string         `json:"map_name"`
	GameLength *int           `json:"game_length"`
	Players    []replayPlayer `json:"players"`
}

type replayPlayer struct {
	Winner int    `json:"winner"`
	Race   string `json:"race"`
	MMR    int    `json:"mmr"`
	APM    int    `json:"apm"`
	Player struct {
		ID   flexID `json:"players_id"`
		Name string `json:"players_name"`
	} `json:"player"`
}
