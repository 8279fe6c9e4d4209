package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"receipt-scanner-go/src/core/utils"

	"github.com/gorilla/websocket"
)

// 页面与缓存管理之间的消息类型
const (
	MessageCheckUpdate       = "CHECK_UPDATE"
	MessageCheckUpdateResult = "CHECK_UPDATE_RESULT"
	MessageSkipWaiting       = "SKIP_WAITING"
	MessageUpdateAvailable   = "UPDATE_AVAILABLE"
)

// Message 页面消息，ID 原样回传给请求方
type Message struct {
	Type            string          `json:"type"`
	ID              json.RawMessage `json:"id,omitempty"`
	UpdateAvailable *bool           `json:"updateAvailable,omitempty"`
}

// Broadcaster 向所有已连接页面推送消息
type Broadcaster interface {
	Broadcast(msg Message)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(Message) {}

// Controller Hub 需要的管理操作
type Controller interface {
	CheckVersion(ctx context.Context) (bool, error)
	SkipWaiting(ctx context.Context) error
}

type client struct {
	conn *wsConn
	send chan []byte
}

// Hub 管理页面的 websocket 连接
type Hub struct {
	upgrader   websocket.Upgrader
	controller Controller
	logger     *utils.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	checkTimeout time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration // 必须小于 pongWait
}

func NewHub(controller Controller, logger *utils.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的连接
			},
		},
		controller:   controller,
		logger:       logger,
		clients:      make(map[*client]struct{}),
		checkTimeout: 10 * time.Second,
		pongWait:     60 * time.Second,
		pingPeriod:   54 * time.Second,
	}
}

// ServeHTTP 升级连接并处理消息，直到连接断开
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败: %v", err)
		return
	}

	c := &client{conn: newWSConn(raw, h.pongWait), send: make(chan []byte, 8)}
	if !h.register(c) {
		c.conn.Close()
		return
	}
	defer h.unregister(c)

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("页面已连接，当前连接数 %d", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// writeLoop 发送排队消息，空闲时定期 ping 维持连接
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("发送消息失败: %v", err)
				return
			}
		case <-ticker.C:
			if c.conn.IsClosed() {
				return
			}
			if err := c.conn.Ping(); err != nil {
				h.logger.Debug("发送心跳失败: %v", err)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("无法解析页面消息: %v", err)
			continue
		}

		switch msg.Type {
		case MessageCheckUpdate:
			h.handleCheck(ctx, c, msg)
		case MessageSkipWaiting:
			if err := h.controller.SkipWaiting(ctx); err != nil {
				h.logger.Warn("激活新版本失败: %v", err)
			}
		default:
			h.logger.Debug("忽略未知消息类型: %s", msg.Type)
		}
	}
}

// handleCheck 立即检查版本并只回复请求方，失败视为没有更新
func (h *Hub) handleCheck(ctx context.Context, c *client, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	available, err := h.controller.CheckVersion(ctx)
	if err != nil {
		h.logger.Warn("版本检查失败: %v", err)
		available = false
	}
	h.sendTo(c, Message{Type: MessageCheckUpdateResult, ID: msg.ID, UpdateAvailable: &available})
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("页面消息队列已满，丢弃 %s", msg.Type)
	}
}

// Broadcast 非阻塞推送，队列满的连接跳过
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("页面消息队列已满，丢弃 %s", msg.Type)
		}
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
