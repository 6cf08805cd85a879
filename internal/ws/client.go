package ws

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/WBHankins93/messaging-app/internal/events"
	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20 // 1MB
	sendBufferSize = 256
	eventTimeout   = 2 * time.Second
)

// Client 是一条已认证并登记到房间的连接。
type Client struct {
	id     string
	hub    *Hub
	room   *RoomHub
	conn   *websocket.Conn
	send   chan []byte
	user   *models.User
	events events.Publisher

	closeOnce sync.Once
}

func newClient(hub *Hub, room *RoomHub, conn *websocket.Conn, user *models.User, pub events.Publisher) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		room:   room,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		user:   user,
		events: pub,
	}
}

// readPump 把文本帧交给房间 actor，纯空白帧和非文本帧被忽略。
// 非法 UTF-8 的文本帧以 1007 关闭发送方，不落库也不广播。
func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("conn", c.id).Msg("relay read ended")
			}
			return
		}
		if typ != websocket.TextMessage || strings.TrimSpace(string(data)) == "" {
			continue
		}
		if !utf8.Valid(data) {
			log.Debug().Str("conn", c.id).Msg("relay frame is not valid utf-8")
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid utf-8"), time.Now().Add(writeWait))
			return
		}
		select {
		case c.room.inbound <- inboundFrame{from: c, content: string(data)}:
		case <-c.room.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 房间停止或连接注销后 send 被关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close 注销连接并释放资源，无论从哪条路径触发都只执行一次。
func (c *Client) close() {
	c.closeOnce.Do(func() {
		select {
		case c.room.unregister <- c:
		case <-c.room.done:
		}
		_ = c.conn.Close()
		c.publish(events.RelayDisconnect)
		c.hub.leave(c.room)
		log.Info().Str("conn", c.id).Str("room", c.room.roomID).Str("username", c.user.Username).Msg("relay connection closed")
	})
}

func (c *Client) publish(eventType string) {
	if c.events == nil {
		return
	}
	env := events.NewEnvelope(eventType, c.user.Username)
	env.RoomID = c.room.roomID
	env.ConnectionID = c.id
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := c.events.Publish(ctx, eventType, env); err != nil {
		log.Warn().Err(err).Str("conn", c.id).Str("event", eventType).Msg("publish relay event")
	}
}
