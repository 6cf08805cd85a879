// Package ws 实现按房间划分的 WebSocket 消息中继。
package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WBHankins93/messaging-app/internal/metrics"
	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	inboundBufferSize = 256
	persistTimeout    = 5 * time.Second
)

var ErrHubClosed = errors.New("hub closed")

// Store 是中继持久化消息所需的存储子集。
type Store interface {
	Append(ctx context.Context, content string, senderID uint, roomID string) (*models.Message, error)
}

// Hub 管理房间级别的子 Hub：首个连接加入时创建，最后一个连接离开时回收。
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*RoomHub
	store  Store
	closed bool
}

func NewHub(store Store) *Hub {
	return &Hub{rooms: make(map[string]*RoomHub), store: store}
}

// join 返回房间并持有一个引用，房间不存在时懒加载。
func (h *Hub) join(roomID string) (*RoomHub, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	room := h.rooms[roomID]
	if room == nil {
		room = newRoomHub(roomID, h.store)
		h.rooms[roomID] = room
		metrics.WsRooms.Inc()
		go room.run()
	}
	room.refs++
	return room, nil
}

// leave 释放 join 持有的引用，归零时停止房间。
func (h *Hub) leave(room *RoomHub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room.refs--
	if room.refs > 0 {
		return
	}
	if h.rooms[room.roomID] == room {
		delete(h.rooms, room.roomID)
		metrics.WsRooms.Dec()
	}
	room.stop()
}

func (h *Hub) Online(roomID string) int {
	h.mu.Lock()
	room := h.rooms[roomID]
	h.mu.Unlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// Close 停止所有房间并关闭其连接，之后的 join 返回 ErrHubClosed。
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := make([]*RoomHub, 0, len(h.rooms))
	for id, room := range h.rooms {
		rooms = append(rooms, room)
		delete(h.rooms, id)
		metrics.WsRooms.Dec()
	}
	h.mu.Unlock()

	for _, room := range rooms {
		room.stop()
		<-room.done
	}
}

type inboundFrame struct {
	from    *Client
	content string
}

// RoomHub 是单个房间的 actor：成员表只在 run 所在的 goroutine 中读写，
// 入站帧按接收顺序逐条持久化再广播。
type RoomHub struct {
	roomID     string
	store      Store
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	refs       int // 由 Hub.mu 保护
	online     atomic.Int32
}

func newRoomHub(roomID string, store Store) *RoomHub {
	return &RoomHub{
		roomID:     roomID,
		store:      store,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, inboundBufferSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (rh *RoomHub) run() {
	defer close(rh.done)
	for {
		select {
		case c := <-rh.register:
			rh.clients[c] = struct{}{}
			rh.online.Store(int32(len(rh.clients)))
			metrics.WsConnections.Inc()
		case c := <-rh.unregister:
			rh.remove(c)
		case f := <-rh.inbound:
			rh.relay(f)
		case <-rh.quit:
			rh.drain()
			for c := range rh.clients {
				rh.remove(c)
			}
			return
		}
	}
}

// add 把连接登记到房间，房间已停止时返回 false。
func (rh *RoomHub) add(c *Client) bool {
	select {
	case rh.register <- c:
		return true
	case <-rh.done:
		return false
	}
}

func (rh *RoomHub) remove(c *Client) {
	if _, ok := rh.clients[c]; !ok {
		return
	}
	delete(rh.clients, c)
	close(c.send)
	rh.online.Store(int32(len(rh.clients)))
	metrics.WsConnections.Dec()
}

// drain 处理停止前已经入队的帧。
func (rh *RoomHub) drain() {
	for {
		select {
		case f := <-rh.inbound:
			rh.relay(f)
		default:
			return
		}
	}
}

// relay 先持久化后广播；持久化失败的帧只记录日志，不广播。
func (rh *RoomHub) relay(f inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	msg, err := rh.store.Append(ctx, f.content, f.from.user.ID, rh.roomID)
	if err != nil {
		metrics.WsPersistFailures.Inc()
		log.Error().Err(err).Str("room", rh.roomID).Str("username", f.from.user.Username).Msg("persist message failed, frame dropped")
		return
	}
	metrics.WsMessagesTotal.Inc()
	rh.broadcast([]byte(f.from.user.Username + ": " + msg.Content))
}

// broadcast 不阻塞：发送缓冲已满的连接错过这一帧，其余连接照常收到。
func (rh *RoomHub) broadcast(b []byte) {
	for c := range rh.clients {
		select {
		case c.send <- b:
		default:
			metrics.WsDroppedFrames.Inc()
			log.Warn().Str("room", rh.roomID).Str("conn", c.id).Msg("outbound buffer full, frame skipped")
		}
	}
}

func (rh *RoomHub) stop() {
	rh.stopOnce.Do(func() { close(rh.quit) })
}

// Online 返回房间在线连接数量。
func (rh *RoomHub) Online() int { return int(rh.online.Load()) }
