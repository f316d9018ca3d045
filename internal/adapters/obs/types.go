package obs

import "encoding/json"

// Mensajes del protocolo obs-websocket v5. Todos van envueltos en {op, d}.

const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7

	rpcVersion = 1

	// Close code que usa el servidor cuando la contraseña no es válida.
	closeAuthenticationFailed = 4009

	// Código de estado de request cuando el recurso (la escena) no existe.
	statusResourceNotFound = 600
)

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type outgoing struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type hello struct {
	ObsWebSocketVersion string         `json:"obsWebSocketVersion"`
	RPCVersion          int            `json:"rpcVersion"`
	Authentication      *authChallenge `json:"authentication,omitempty"`
}

type authChallenge struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

type identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

type request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type requestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus requestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

type requestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

type sceneListResponse struct {
	CurrentProgramSceneName string `json:"currentProgramSceneName"`
	Scenes                  []struct {
		SceneName  string `json:"sceneName"`
		SceneIndex int    `json:"sceneIndex"`
	} `json:"scenes"`
}

type setSceneRequest struct {
	SceneName string `json:"sceneName"`
}
