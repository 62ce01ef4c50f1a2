// Package status serves the live mission status over HTTP and websocket.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = time.Second
	// 待推送事件队列长度，队列满时丢弃
	eventQueueSize = 64
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// PlanSummary 扫描计划摘要
type PlanSummary struct {
	Waypoints        int     `json:"waypoints"`
	PointsPerArc     int     `json:"pointsPerArc"`
	NumberOfArcs     int     `json:"numberOfArcs"`
	FarFieldDistance float64 `json:"farFieldDistance"`
	Heading          float64 `json:"heading"`
}

// Snapshot /status 返回的任务状态
type Snapshot struct {
	Mission       string       `json:"mission"`
	State         string       `json:"state"`
	WaypointIndex int          `json:"waypointIndex"`
	Reason        string       `json:"reason,omitempty"`
	Since         time.Time    `json:"since"`
	Transitions   int          `json:"transitions"`
	Plan          *PlanSummary `json:"plan,omitempty"`
}

// Event 推送给 websocket 客户端的状态转换
type Event struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	WaypointIndex int       `json:"waypointIndex"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Server 任务状态 HTTP 服务器
// 提供 /health, /status, /metrics 和 /ws
type Server struct {
	addr    string
	mission string
	metrics http.Handler
	log     *logrus.Logger

	mu       sync.RWMutex
	snapshot Snapshot

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer 创建状态服务器并启动推送协程，metrics 为 nil 时不提供 /metrics
// 使用完毕需调用 Close（Start 在 ctx 结束时会自动调用）
func NewServer(addr, mission string, metrics http.Handler, log *logrus.Logger) *Server {
	s := &Server{
		addr:     addr,
		mission:  mission,
		metrics:  metrics,
		log:      log,
		snapshot: Snapshot{Mission: mission, State: supervisor.StateManual.String()},
		clients:  make(map[*websocket.Conn]bool),
		events:   make(chan []byte, eventQueueSize),
		done:     make(chan struct{}),
	}
	go s.runBroadcaster()
	return s
}

// Close 停止推送协程并断开所有客户端
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeClients()
	})
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 健康检查接口
	mux.HandleFunc("/health", s.handleHealth)

	// 任务状态接口
	mux.HandleFunc("/status", s.handleStatus)

	// 状态推送
	mux.HandleFunc("/ws", s.handleWS)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start 启动 HTTP 服务器，ctx 结束时关闭
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		s.Close()
	}()

	s.log.WithField("addr", s.addr).Info("Starting status server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OnTransition implements supervisor.Observer. It never writes to clients
// itself; events are queued for the broadcaster.
func (s *Server) OnTransition(ctx context.Context, t supervisor.Transition) {
	s.mu.Lock()
	s.snapshot.State = t.To.String()
	s.snapshot.WaypointIndex = t.To.WaypointIndex
	s.snapshot.Reason = t.Reason
	s.snapshot.Since = t.At
	s.snapshot.Transitions++
	if t.Plan != nil {
		s.snapshot.Plan = &PlanSummary{
			Waypoints:        t.Plan.Len(),
			PointsPerArc:     t.Plan.PointsPerArc,
			NumberOfArcs:     t.Plan.NumberOfArcs,
			FarFieldDistance: t.Plan.FarFieldDistance,
			Heading:          t.Plan.Heading,
		}
	}
	s.mu.Unlock()

	msg, err := json.Marshal(Event{
		From:          t.From.String(),
		To:            t.To.String(),
		WaypointIndex: t.To.WaypointIndex,
		Reason:        t.Reason,
		At:            t.At,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to encode transition")
		return
	}

	select {
	case s.events <- msg:
	default:
		s.log.WithFields(logrus.Fields{
			"from": t.From.String(),
			"to":   t.To.String(),
		}).Warn("Status event queue full, dropping transition")
	}
}

// runBroadcaster 从队列取出事件推送给客户端
func (s *Server) runBroadcaster() {
	for {
		select {
		case msg := <-s.events:
			s.broadcast(msg)
		case <-s.done:
			return
		}
	}
}

// Snapshot 返回当前状态副本
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	if snap.Plan != nil {
		plan := *snap.Plan
		snap.Plan = &plan
	}
	return snap
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"mission": s.mission,
	})
}

// handleStatus 获取任务状态
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Snapshot())
}

// handleWS 升级为 websocket 并注册客户端
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	// 读循环只用于发现断开
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast 推送给所有客户端，写失败的客户端被移除
func (s *Server) broadcast(msg []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			delete(s.clients, c)
			c.Close()
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	conn.Close()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}
