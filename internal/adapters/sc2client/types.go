package sc2client

// DTOs de la API local del cliente del juego (puerto 6119).

// uiResponse es la respuesta de GET /ui.
type uiResponse struct {
	ActiveScreens *[]string `json:"activeScreens"`
}

// gameResponse es la respuesta de GET /game.
type gameResponse struct {
	IsReplay    bool         `json:"isReplay"`
	DisplayTime float64      `json:"displayTime"`
	Players     []gamePlayer `json:"players"`
}

type gamePlayer struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Race   string `json:"race"`
	Result string `json:"result"` // Undecided | Victory | Defeat | Tie
}

const loadingScreen = "ScreenLoading/ScreenLoading"
