package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/types"
)

// Message is the frame sent to stream clients
type Message struct {
	Type      string      `json:"type"`
	ChainID   string      `json:"chainId"`
	Key       string      `json:"key,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Status    string      `json:"status,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type clientMessage struct {
	Action  string      `json:"action"`
	Type    string      `json:"type"`
	ChainID interface{} `json:"chainId"`
}

// StatusFunc reports the status of the services behind the stream
type StatusFunc func() map[string]interface{}

// Server streams archived events to WebSocket clients
type Server struct {
	port          string
	upgrader      websocket.Upgrader
	clientManager *ClientManager
	gatherer      prometheus.Gatherer
	statusFunc    StatusFunc
	server        *http.Server
	logger        *zap.Logger

	// Stats
	mutex            sync.Mutex
	running          bool
	startTime        time.Time
	connectionsTotal int
	messagesTotal    int
}

// NewServer creates a new WebSocket server. gatherer backs /metrics and may
// be nil.
func NewServer(port string, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("websocket")
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clientManager: NewClientManager(logger),
		gatherer:      gatherer,
		logger:        logger,
	}
}

// SetStatusFunc adds the services' status to /health
func (s *Server) SetStatusFunc(fn StatusFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.statusFunc = fn
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start begins the WebSocket server
func (s *Server) Start() error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return errors.New("websocket server already running")
	}
	s.mutex.Unlock()

	listener, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.port, err)
	}

	s.mutex.Lock()
	s.running = true
	s.startTime = time.Now()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mutex.Unlock()

	go s.clientManager.Run()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server failed", zap.Error(err))
		}
	}()

	s.logger.Info("websocket server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop closes every client and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	server := s.server
	s.mutex.Unlock()

	s.clientManager.Stop()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down websocket server: %w", err)
	}

	s.logger.Info("websocket server stopped")
	return nil
}

// HandleEvent broadcasts an archived event. It is registered as an event bus
// subscriber.
func (s *Server) HandleEvent(event types.Event) error {
	s.clientManager.Broadcast(Message{
		Type:      event.Type,
		ChainID:   strconv.FormatUint(event.ChainID, 10),
		Key:       event.Key,
		Data:      event.Data,
		Timestamp: time.Now().Unix(),
	})

	s.mutex.Lock()
	s.messagesTotal++
	s.mutex.Unlock()
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	chainID := r.URL.Query().Get("chainId")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(conn, s.logger)
	client.Subscribe(eventType, chainID)
	s.clientManager.Register(client)

	s.mutex.Lock()
	s.connectionsTotal++
	s.mutex.Unlock()

	s.logger.Debug("client connected",
		zap.String("client", client.ID),
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("type", eventType),
		zap.String("chainId", chainID),
	)

	go client.ReadPump(s.handleClientMessage, s.clientManager.Unregister)
	go client.WritePump()
}

func (s *Server) handleClientMessage(client *Client, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Debug("invalid client message", zap.String("client", client.ID), zap.Error(err))
		return
	}
	if msg.Action != "subscribe" {
		return
	}

	chainID := chainIDString(msg.ChainID)
	client.Subscribe(msg.Type, chainID)
	s.logger.Debug("client subscribed",
		zap.String("client", client.ID),
		zap.String("type", msg.Type),
		zap.String("chainId", chainID),
	)

	s.clientManager.Send(client, Message{
		Type:      "subscription",
		ChainID:   chainID,
		Key:       msg.Type,
		Status:    "success",
		Timestamp: time.Now().Unix(),
	})
}

// chainIDString accepts a chain id sent as a JSON string or number
func chainIDString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Warn("failed to write health response", zap.Error(err))
	}
}

// Status returns the current status of the WebSocket server
func (s *Server) Status() map[string]interface{} {
	s.mutex.Lock()
	uptime := "0s"
	if s.running {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}
	status := map[string]interface{}{
		"status":           "UP",
		"running":          s.running,
		"port":             s.port,
		"connections":      s.clientManager.Count(),
		"connectionsTotal": s.connectionsTotal,
		"messagesTotal":    s.messagesTotal,
		"uptime":           uptime,
	}
	statusFunc := s.statusFunc
	s.mutex.Unlock()

	if statusFunc != nil {
		status["services"] = statusFunc()
	}
	return status
}
