package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/app"
	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// IdentityVerifier resolves a client credential to a player id.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

type WSHandler struct {
	service  *app.LobbyService
	verifier IdentityVerifier
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(service *app.LobbyService, verifier IdentityVerifier, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	DisplayName string          `json:"displayName"`
	Character   string          `json:"character"`
	Settings    domain.Settings `json:"settings"`
}

type joinPayload struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Character   string `json:"character"`
}

type readyPayload struct {
	IsReady bool `json:"isReady"`
}

type answerPayload struct {
	ChoiceIndex   *int `json:"choiceIndex"`
	QuestionIndex *int `json:"questionIndex,omitempty"`
}

// client is one websocket connection. Its lobby attachment is only touched by
// the read loop.
type client struct {
	h        *WSHandler
	playerID string
	logger   zerolog.Logger

	send       chan domain.Message
	closed     chan struct{}
	writerDone chan struct{}

	code       string
	sub        *broadcast.Subscription
	forwarding chan struct{} // closed when the stream forwarder exits
}

// ServeWS verifies the caller, upgrades to a websocket and routes frames into
// the lobby use cases. The credential is taken from the token query parameter
// or a bearer Authorization header.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID, err := h.verifier.Verify(r.Context(), credential(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{
		h:          h,
		playerID:   playerID,
		logger:     h.logger.With().Str("player", playerID).Logger(),
		send:       make(chan domain.Message, sendBuffer),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go func() {
		defer close(c.writerDone)
		c.writeLoop(conn)
	}()

	c.readLoop(conn)

	close(c.closed)
	c.drop()
	close(c.send)
	<-c.writerDone
}

func credential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (c *client) writeLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("ws write error")
				// Unblock the read loop.
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("ws read error")
			}
			return
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			c.fail(domain.ErrBadRequest)
			continue
		}
		if err := c.dispatch(inbound); err != nil {
			c.fail(err)
		}
	}
}

func (c *client) dispatch(in inboundMessage) error {
	ctx := context.Background()
	svc := c.h.service

	switch in.Type {
	case "lobby.create":
		var p createPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		if c.attached() {
			return domain.ErrNotWaiting
		}
		snap, err := svc.Create(ctx, c.playerID, domain.Profile{DisplayName: p.DisplayName, Character: p.Character}, p.Settings)
		if err != nil {
			return err
		}
		c.push(domain.Message{Type: domain.MsgLobbyCreated, Payload: domain.LobbyCreated{Code: snap.Code}})
		return c.attach(ctx, snap.Code)

	case "lobby.join":
		var p joinPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		code := app.NormalizeCode(p.Code)
		if c.attached() && c.code != code {
			return domain.ErrNotWaiting
		}
		if _, err := svc.Join(ctx, code, c.playerID, domain.Profile{DisplayName: p.DisplayName, Character: p.Character}); err != nil {
			return err
		}
		return c.attach(ctx, code)

	case "lobby.leave":
		return c.leave(ctx)

	case "player.ready":
		var p readyPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return svc.SetReady(ctx, c.code, c.playerID, p.IsReady)

	case "lobby.start":
		return svc.Start(ctx, c.code, c.playerID)

	case "answer.submit":
		var p answerPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		if p.ChoiceIndex == nil {
			return domain.ErrBadRequest
		}
		questionIndex := -1
		if p.QuestionIndex != nil {
			questionIndex = *p.QuestionIndex
		}
		return svc.SubmitAnswer(ctx, c.code, c.playerID, questionIndex, *p.ChoiceIndex)

	case "lobby.close":
		return svc.Close(ctx, c.code, c.playerID)

	default:
		return domain.ErrBadRequest
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrBadRequest
	}
	return nil
}

// attached reports whether the connection still receives a lobby stream. A
// stream ends when the lobby closes or another connection takes it over.
func (c *client) attached() bool {
	if c.sub == nil {
		return false
	}
	select {
	case <-c.forwarding:
		c.code, c.sub = "", nil
		return false
	default:
		return true
	}
}

// attach subscribes the connection to code and forwards its messages.
func (c *client) attach(ctx context.Context, code string) error {
	if c.attached() && c.code == code {
		return nil
	}
	sub, err := c.h.service.Connect(ctx, code, c.playerID)
	if err != nil {
		return err
	}
	c.code = code
	c.sub = sub
	c.forwarding = make(chan struct{})

	done := c.forwarding
	go func() {
		defer close(done)
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case c.send <- msg:
				case <-c.closed:
					return
				case <-c.writerDone:
					return
				}
			case <-c.closed:
				return
			}
		}
	}()
	return nil
}

func (c *client) leave(ctx context.Context) error {
	if !c.attached() {
		return domain.ErrNotMember
	}
	err := c.h.service.Leave(ctx, c.code, c.playerID)
	if err == nil {
		// The stream closes once the player is removed.
		<-c.forwarding
	}
	c.code, c.sub = "", nil
	return err
}

// drop tells the lobby the transport went away so grace handling starts.
// It runs after closed is signalled.
func (c *client) drop() {
	if c.sub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.h.service.Disconnect(ctx, c.code, c.playerID, c.sub.ID); err != nil && !errors.Is(err, domain.ErrLobbyNotFound) {
		c.logger.Debug().Err(err).Str("lobby", c.code).Msg("disconnect")
	}
	<-c.forwarding
	c.code, c.sub = "", nil
}

// push queues a private frame. Frames are dropped once the connection closes.
func (c *client) push(msg domain.Message) {
	select {
	case c.send <- msg:
	case <-c.closed:
	case <-c.writerDone:
	}
}

func (c *client) fail(err error) {
	if domain.ErrorKind(err) == domain.KindInternal {
		c.logger.Error().Err(err).Msg("ws command failed")
	}
	c.push(domain.Message{Type: domain.MsgError, Payload: domain.ErrorPayload{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	}})
}
