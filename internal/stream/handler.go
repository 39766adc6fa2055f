package stream

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"virtual_market/internal/core"
)

var (
	websocketActiveConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "websocket_active_connections",
		Help: "Current number of active WebSocket connections",
	}, []string{"endpoint"})

	websocketRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_rejected_total",
		Help: "Total number of rejected WebSocket connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(websocketActiveConnections)
	prometheus.MustRegister(websocketRejectedTotal)
}

// Handler upgrades HTTP connections and attaches clients to the hub
type Handler struct {
	hub            *Hub
	logger         core.ILogger
	upgrader       websocket.Upgrader
	allowedOrigins []string

	maxConnections int
	connSemaphore  chan struct{}

	ipLimiters sync.Map // map[string]*rate.Limiter
	rateLimit  rate.Limit
	rateBurst  int
}

// NewHandler creates a WebSocket handler with connection and rate limits
func NewHandler(hub *Hub, maxConnections int, allowedOrigins []string, logger core.ILogger) *Handler {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	h := &Handler{
		hub:            hub,
		logger:         logger.WithField("component", "stream_handler"),
		allowedOrigins: allowedOrigins,
		maxConnections: maxConnections,
		connSemaphore:  make(chan struct{}, maxConnections),
		rateLimit:      10.0, // connections per second per IP
		rateBurst:      20,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no origin; allow them.
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		websocketRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}
	originStr := parsedOrigin.Scheme + "://" + parsedOrigin.Host

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || originStr == allowed {
			return true
		}
	}

	h.logger.Warn("Rejected WebSocket connection from unauthorized origin",
		"origin", origin, "remote_addr", r.RemoteAddr)
	websocketRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

// ServeHTTP handles the WebSocket upgrade and runs the read/write pumps
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := h.remoteIP(r)
	limiter := h.ipLimiter(ip)
	if !limiter.Allow() {
		h.logger.Warn("IP rate limit exceeded", "ip", ip)
		websocketRejectedTotal.WithLabelValues("rate_limit").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	select {
	case h.connSemaphore <- struct{}{}:
		websocketActiveConnections.WithLabelValues(r.URL.Path).Inc()
		defer func() {
			<-h.connSemaphore
			websocketActiveConnections.WithLabelValues(r.URL.Path).Dec()
		}()
	default:
		h.logger.Warn("Max connections reached")
		websocketRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID)
	h.hub.Register(client)

	h.logger.Info("Client connected", "client_id", clientID, "remote_addr", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.writePump(conn, client)
	}()
	go func() {
		defer wg.Done()
		h.readPump(conn, client)
	}()
	wg.Wait()

	h.hub.Unregister(client)
	conn.Close()

	h.logger.Info("Client disconnected", "client_id", clientID)
}

// writePump sends hub messages to the WebSocket connection
func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.GetSendChan():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("Write error", "client_id", client.id, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection and keeps the read deadline fresh on pongs
func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	defer h.hub.Unregister(client)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) ipLimiter(ip string) *rate.Limiter {
	if v, ok := h.ipLimiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(h.rateLimit, h.rateBurst)
	actual, _ := h.ipLimiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}
