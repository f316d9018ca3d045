package obs

// client.go — control de escenas por obs-websocket v5.
//
// Una sola conexión, requests síncronas: cada request espera su respuesta
// (emparejada por requestId) antes de liberar el mutex. No se suscribe a eventos.

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config son los parámetros de conexión.
type Config struct {
	Host     string
	Port     int
	Password string
	Timeout  time.Duration // handshake y cada request
}

// Client implementa ports.SceneSwitcher.
type Client struct {
	cfg    Config
	dialer websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient crea un Client sin conectar.
func NewClient(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 4455
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
	}
}

// URL devuelve la dirección websocket del servidor.
func (c *Client) URL() string {
	return "ws://" + net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Connect abre la conexión y completa el handshake Hello/Identify/Identified.
// Si ya había una conexión abierta la cierra antes.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()

	conn, _, err := c.dialer.DialContext(ctx, c.URL(), nil)
	if err != nil {
		return fmt.Errorf("obs.Connect: dial %s: %w", c.URL(), err)
	}
	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("obs.Connect: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(c.deadline(ctx))
	conn.SetWriteDeadline(c.deadline(ctx))
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if env.Op != opHello {
		return fmt.Errorf("expected hello, got op %d: %w", env.Op, domain.ErrMalformedResponse)
	}
	var h hello
	if err := json.Unmarshal(env.D, &h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	id := identify{RPCVersion: rpcVersion}
	if h.Authentication != nil {
		if c.cfg.Password == "" {
			return errors.New("server requires a password but none is configured")
		}
		id.Authentication = authResponse(c.cfg.Password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	if err := conn.WriteJSON(outgoing{Op: opIdentify, D: id}); err != nil {
		return fmt.Errorf("write identify: %w", err)
	}

	if err := conn.ReadJSON(&env); err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed {
			return errors.New("authentication failed: check the websocket password")
		}
		return fmt.Errorf("read identified: %w", err)
	}
	if env.Op != opIdentified {
		return fmt.Errorf("expected identified, got op %d: %w", env.Op, domain.ErrMalformedResponse)
	}
	var ided identified
	if err := json.Unmarshal(env.D, &ided); err == nil {
		slog.Debug("obs identified", "server_version", h.ObsWebSocketVersion, "rpc_version", ided.NegotiatedRPCVersion)
	}
	return nil
}

// SetScene implementa ports.SceneSwitcher.
func (c *Client) SetScene(ctx context.Context, name string) error {
	if err := c.request(ctx, "SetCurrentProgramScene", setSceneRequest{SceneName: name}, nil); err != nil {
		return fmt.Errorf("obs.SetScene %q: %w", name, err)
	}
	return nil
}

// ListScenes implementa ports.SceneSwitcher.
func (c *Client) ListScenes(ctx context.Context) ([]string, error) {
	var resp sceneListResponse
	if err := c.request(ctx, "GetSceneList", nil, &resp); err != nil {
		return nil, fmt.Errorf("obs.ListScenes: %w", err)
	}
	names := make([]string, 0, len(resp.Scenes))
	for _, s := range resp.Scenes {
		names = append(names, s.SceneName)
	}
	return names, nil
}

// Close cierra la conexión si está abierta.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// request envía una request y espera su respuesta. Un error de I/O cierra la
// conexión y devuelve domain.ErrSceneDisconnected; un estado de error del
// servidor devuelve domain.ErrSceneRejected.
func (c *Client) request(ctx context.Context, requestType string, data, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return domain.ErrSceneDisconnected
	}
	conn := c.conn
	conn.SetWriteDeadline(c.deadline(ctx))
	conn.SetReadDeadline(c.deadline(ctx))

	id := uuid.NewString()
	msg := outgoing{Op: opRequest, D: request{RequestType: requestType, RequestID: id, RequestData: data}}
	if err := conn.WriteJSON(msg); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write: %v", domain.ErrSceneDisconnected, err)
	}

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.dropLocked()
			return fmt.Errorf("%w: read: %v", domain.ErrSceneDisconnected, err)
		}
		if env.Op != opRequestResponse {
			continue
		}
		var resp requestResponse
		if err := json.Unmarshal(env.D, &resp); err != nil {
			return fmt.Errorf("decode response: %w", domain.ErrMalformedResponse)
		}
		if resp.RequestID != id {
			continue
		}

		if !resp.RequestStatus.Result {
			if resp.RequestStatus.Code == statusResourceNotFound {
				return fmt.Errorf("%w: not found: %s", domain.ErrSceneRejected, resp.RequestStatus.Comment)
			}
			return fmt.Errorf("%w: code %d: %s", domain.ErrSceneRejected, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("decode %s data: %w", requestType, domain.ErrMalformedResponse)
			}
		}
		return nil
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// authResponse calcula base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
