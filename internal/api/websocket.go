package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradeinsight/internal/auth"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/store"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 512

	quotePollInterval = 2 * time.Second
)

// WebSocketHandler streams quotes and fired alerts to dashboard
// clients. Browsers cannot set an Authorization header on the
// WebSocket handshake, so these routes take the access token as a
// query parameter.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	jwtManager *auth.JWTManager
	market     *MarketHandler
	metrics    *monitoring.Metrics

	mu          sync.RWMutex
	alertSubs   map[string]map[*wsClient]bool
	connections int
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(upgrader websocket.Upgrader, jwtManager *auth.JWTManager, market *MarketHandler, metrics *monitoring.Metrics) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader:   upgrader,
		jwtManager: jwtManager,
		market:     market,
		metrics:    metrics,
		alertSubs:  make(map[string]map[*wsClient]bool),
	}
}

// wsClient is one connected websocket peer. Send is buffered; a peer
// that cannot drain its buffer is disconnected.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue pushes a message, disconnecting the peer when the buffer is
// full.
func (c *wsClient) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		c.close()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump drains and discards client messages, keeping the pong
// handler alive. Returns when the peer goes away.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsMessage is the streaming envelope
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// QuoteStream streams quote snapshots for one symbol
// @Summary Stream quotes over WebSocket
// @Tags websocket
// @Param symbol path string true "Symbol"
// @Param token query string true "Access token"
// @Router /ws/quotes/{symbol} [get]
func (h *WebSocketHandler) QuoteStream(c *gin.Context) {
	if _, ok := h.authenticate(c); !ok {
		return
	}
	symbol := c.Param("symbol")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := newWSClient(conn)
	h.trackConnection(1)
	defer h.trackConnection(-1)

	go client.writePump()
	go client.readPump()

	ticker := time.NewTicker(quotePollInterval)
	defer ticker.Stop()
	defer client.close()

	// First quote immediately, then on every tick.
	h.pushQuote(c, client, symbol)
	for {
		select {
		case <-ticker.C:
			h.pushQuote(c, client, symbol)
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *WebSocketHandler) pushQuote(c *gin.Context, client *wsClient, symbol string) {
	quote, err := h.market.Quote(c.Request.Context(), symbol)
	if err != nil {
		logger.Debug("quote poll failed", "symbol", symbol, "error", err.Error())
		return
	}

	payload, err := json.Marshal(wsMessage{Type: "quote", Data: quote})
	if err != nil {
		return
	}
	client.enqueue(payload)
}

// AlertStream streams the authenticated user's fired alerts
// @Summary Stream alerts over WebSocket
// @Tags websocket
// @Param token query string true "Access token"
// @Router /ws/alerts [get]
func (h *WebSocketHandler) AlertStream(c *gin.Context) {
	claims, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := newWSClient(conn)
	h.trackConnection(1)
	defer h.trackConnection(-1)

	h.subscribeAlerts(claims.UserID, client)
	defer h.unsubscribeAlerts(claims.UserID, client)

	go client.writePump()
	client.readPump()
}

// PublishAlert fans a fired event out to the owning user's alert
// streams. Satisfies the alert evaluator's publisher.
func (h *WebSocketHandler) PublishAlert(event *store.AlertEvent) {
	payload, err := json.Marshal(wsMessage{Type: "alert", Data: event})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.alertSubs[event.UserID.String()] {
		client.enqueue(payload)
	}
}

func (h *WebSocketHandler) subscribeAlerts(userID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.alertSubs[userID] == nil {
		h.alertSubs[userID] = make(map[*wsClient]bool)
	}
	h.alertSubs[userID][client] = true
}

func (h *WebSocketHandler) unsubscribeAlerts(userID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.alertSubs[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.alertSubs, userID)
		}
	}
}

func (h *WebSocketHandler) trackConnection(delta int) {
	h.mu.Lock()
	h.connections += delta
	count := h.connections
	h.mu.Unlock()
	h.metrics.SetActiveConnections(float64(count))
}

// authenticate validates the token query parameter before the
// handshake upgrade. Writes the error response itself on failure.
func (h *WebSocketHandler) authenticate(c *gin.Context) (*auth.Claims, bool) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Token query parameter required"})
		return nil, false
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Invalid or expired token"})
		return nil, false
	}
	return claims, true
}
