package twitch

import "time"

// DTOs raw de la API Helix. Solo se usan dentro de este paquete.
// La conversión a domain se hace en mapping.go.

// usersResponse es la respuesta de GET /helix/users.
type usersResponse struct {
	Data []helixUser `json:"data"`
}

type helixUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// predictionsResponse es la respuesta de GET/POST/PATCH /helix/predictions.
type predictionsResponse struct {
	Data []helixPrediction `json:"data"`
}

type helixPrediction struct {
	ID               string         `json:"id"`
	BroadcasterID    string         `json:"broadcaster_id"`
	Title            string         `json:"title"`
	WinningOutcomeID *string        `json:"winning_outcome_id"`
	Outcomes         []helixOutcome `json:"outcomes"`
	PredictionWindow int            `json:"prediction_window"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

type helixOutcome struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Users         int    `json:"users"`
	ChannelPoints int    `json:"channel_points"`
	Color         string `json:"color"`
}

// createPredictionRequest es el body de POST /helix/predictions.
type createPredictionRequest struct {
	BroadcasterID    string              `json:"broadcaster_id"`
	Title            string              `json:"title"`
	Outcomes         []createOutcomeBody `json:"outcomes"`
	PredictionWindow int                 `json:"prediction_window"`
}

type createOutcomeBody struct {
	Title string `json:"title"`
}

// endPredictionRequest es el body de PATCH /helix/predictions.
type endPredictionRequest struct {
	BroadcasterID    string `json:"broadcaster_id"`
	ID               string `json:"id"`
	Status           string `json:"status"`
	WinningOutcomeID string `json:"winning_outcome_id,omitempty"`
}
