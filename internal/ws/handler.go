package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/events"
	"github.com/WBHankins93/messaging-app/internal/metrics"
	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxRoomIDLen      = 128
	maxTokenFrameSize = 8 << 10 // 8KB
)

// Authenticator 与 HTTP 中间件共用同一个身份门禁。
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

type Handler struct {
	hub         *Hub
	gate        Authenticator
	events      events.Publisher
	upgrader    websocket.Upgrader
	authTimeout time.Duration
}

// NewHandler 在 dev 环境允许任意 Origin，其他环境使用 gorilla 默认的同源检查。
func NewHandler(hub *Hub, gate Authenticator, pub events.Publisher, env string, authTimeout time.Duration) *Handler {
	if pub == nil {
		pub = events.Noop()
	}
	up := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if env == "dev" {
		up.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{hub: hub, gate: gate, events: pub, upgrader: up, authTimeout: authTimeout}
}

// Serve 处理 GET /ws/:room_id。
// 凭据来源依次为 Authorization 头、?token= 参数、连接后的第一条文本帧。
func (h *Handler) Serve(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-app/ws").Start(c.Request.Context(), "ws.handshake")
	roomID := c.Param("room_id")
	span.SetAttributes(attribute.String("chat.room_id", roomID))

	if roomID == "" || len(roomID) > maxRoomIDLen {
		span.SetStatus(codes.Error, "invalid room id")
		span.End()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
		return
	}

	raw := c.GetHeader("Authorization")
	if raw == "" {
		raw = c.Query("token")
	}

	var user *models.User
	if raw != "" {
		u, err := h.gate.Authenticate(ctx, raw)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "authentication failed")
			span.End()
			metrics.WsAuthFailures.WithLabelValues("handshake").Inc()
			if errors.Is(err, auth.ErrUnauthenticated) {
				c.Header("WWW-Authenticate", "Bearer")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
				return
			}
			log.Error().Err(err).Str("room", roomID).Msg("relay handshake authentication")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		user = u
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		log.Debug().Err(err).Str("room", roomID).Msg("websocket upgrade failed")
		return
	}

	if user == nil {
		user, err = h.authenticateFirstFrame(ctx, conn)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "first frame authentication failed")
			span.End()
			return
		}
	}
	span.SetAttributes(attribute.String("chat.username", user.Username))
	span.End()

	h.attach(conn, user, roomID)
}

// authenticateFirstFrame 在 authTimeout 内读取第一条文本帧作为 token。
// 失败时以 1008（帧过大 1009，存储故障 1011）关闭连接。
func (h *Handler) authenticateFirstFrame(ctx context.Context, conn *websocket.Conn) (*models.User, error) {
	conn.SetReadLimit(maxTokenFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.authTimeout))
	typ, data, err := conn.ReadMessage()
	var (
		user        *models.User
		gateFailure bool
	)
	switch {
	case err != nil:
	case typ != websocket.TextMessage:
		err = auth.ErrUnauthenticated
	default:
		user, err = h.gate.Authenticate(ctx, string(data))
		gateFailure = err != nil && !errors.Is(err, auth.ErrUnauthenticated)
	}
	if err != nil {
		metrics.WsAuthFailures.WithLabelValues("first_frame").Inc()
		code, reason := websocket.ClosePolicyViolation, "authentication failed"
		switch {
		case gateFailure:
			log.Error().Err(err).Msg("relay first frame authentication")
			code, reason = websocket.CloseInternalServerErr, "internal error"
		case errors.Is(err, websocket.ErrReadLimit):
			code, reason = websocket.CloseMessageTooBig, "token frame too large"
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return user, nil
}

// attach 登记连接并在当前 goroutine 中运行读循环，直到连接关闭。
func (h *Handler) attach(conn *websocket.Conn, user *models.User, roomID string) {
	room, err := h.hub.join(roomID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	client := newClient(h.hub, room, conn, user, h.events)
	if !room.add(client) {
		h.hub.leave(room)
		_ = conn.Close()
		return
	}
	log.Info().Str("conn", client.id).Str("room", roomID).Str("username", user.Username).Msg("relay connection registered")
	client.publish(events.RelayConnect)

	go client.writePump()
	client.readPump()
}
