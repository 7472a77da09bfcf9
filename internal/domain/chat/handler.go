package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/platform/auth"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/chat/:peer", h.Connect)
	g.GET("/messages/unread-count", h.UnreadCount)
	g.GET("/messages/with/:peer", h.History)
}

// inbound is one send request read off the socket.
type inbound struct {
	Message string `json:"message"`
}

// Connect upgrades the request into a chat connection with the peer.
// Unauthenticated callers are refused before the handshake completes.
func (h *Handler) Connect(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	peerID, err := uuid.Parse(c.Param("peer"))
	if err != nil || peerID == userID {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid peer id")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(userID)
	history, err := h.service.Join(c.Request().Context(), userID, peerID, client)
	if err != nil {
		h.logger.Error().Err(err).Msg("chat: join failed")
		ws.Close()
		return nil
	}

	// Replay goes to the new connection only; live events queue up in
	// the client buffer meanwhile and follow after.
	for _, ev := range history {
		if err := ws.WriteJSON(ev); err != nil {
			h.service.Leave(userID, peerID, client)
			ws.Close()
			return nil
		}
	}

	go h.writePump(client, peerID, ws)
	go h.readPump(client, peerID, ws)
	return nil
}

func (h *Handler) readPump(client *Client, peerID uuid.UUID, ws *gorillawebsocket.Conn) {
	defer func() {
		h.service.Leave(client.UserID, peerID, client)
		ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			continue // Ignore malformed messages.
		}

		if _, err := h.service.Send(context.Background(), client.UserID, peerID, in.Message); err != nil {
			h.logger.Error().Err(err).Msg("chat: send failed")
		}
	}
}

func (h *Handler) writePump(client *Client, peerID uuid.UUID, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for ev := range client.Send {
		if client.dropReplayed(ev.MessageID) {
			continue
		}
		// Delivery to the receiving side marks the message read.
		if ev.SenderID != client.UserID {
			h.service.MarkDelivered(context.Background(), ev.MessageID)
			ev.Read = true
		}
		if err := ws.WriteJSON(ev); err != nil {
			break
		}
	}
}

func (h *Handler) UnreadCount(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	n, err := h.service.CountUnread(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count unread messages")
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) History(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	peerID, err := uuid.Parse(c.Param("peer"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid peer id")
	}
	msgs, err := h.service.History(c.Request().Context(), userID, peerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}
