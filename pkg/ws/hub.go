package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// ErrNoConnection 目标用户当前没有在线连接
var ErrNoConnection = errors.New("用户不在线")

// Envelope 推送给前端的消息信封
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn 单个 WebSocket 连接
type Conn struct {
	ws     *websocket.Conn
	userID string
	staff  bool
	send   chan []byte
	once   sync.Once
}

// Hub 在线连接管理：user_id → 连接集合
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}
	logger *zap.Logger
}

// NewHub 创建连接管理器
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

// Register 登记连接
func (h *Hub) Register(userID string, staff bool, wsConn *websocket.Conn) *Conn {
	c := &Conn{ws: wsConn, userID: userID, staff: staff, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if _, ok := h.conns[userID]; !ok {
		h.conns[userID] = make(map[*Conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	total := len(h.conns[userID])
	h.mu.Unlock()

	h.logger.Debug("WebSocket 已连接", zap.String("user_id", userID), zap.Int("connections", total))
	return c
}

// Unregister 注销并关闭连接，可重复调用
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()

	c.once.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// Online 用户当前连接数
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// SendToUser 推送给某个用户的全部连接
func (h *Hub) SendToUser(userID string, event string, data interface{}) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoConnection
	}
	for _, c := range targets {
		h.enqueue(c, payload)
	}
	return nil
}

// SendToStaff 推送给所有在线员工
func (h *Hub) SendToStaff(event string, data interface{}) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var targets []*Conn
	for _, set := range h.conns {
		for c := range set {
			if c.staff {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, payload)
	}
	return nil
}

// enqueue 非阻塞投递，缓冲区满的慢连接直接断开
func (h *Hub) enqueue(c *Conn, payload []byte) {
	defer func() {
		// send 已被关闭（连接刚好注销）
		_ = recover()
	}()
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("WebSocket 发送缓冲已满，断开连接", zap.String("user_id", c.userID))
		go h.Unregister(c)
	}
}

// Serve 接管连接直到断开：读循环只处理 pong，写循环负责推送与心跳
func (h *Hub) Serve(userID string, staff bool, wsConn *websocket.Conn) {
	c := h.Register(userID, staff, wsConn)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *Conn) {
	defer h.Unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket 异常断开", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Unregister(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
