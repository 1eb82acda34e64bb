package core

import (
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/config"
	"mining-coordinator/message"
	"mining-coordinator/util"
	"net"
	"net/http"
	"sync"
	"time"
)

// Gateway 长连接入口：升级、读循环、注册
type Gateway struct {
	registry *Registry
	upgrader websocket.Upgrader

	idleTimeout  time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration
	sendQueue    int
	maxFrameSize int64

	// mu 保证 closed 检查与 wg.Add 相对 Close 原子
	mu       sync.Mutex
	closed   bool
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

func NewGateway(registry *Registry, cfg *config.Presence, origins []string) *Gateway {
	g := &Gateway{
		registry:     registry,
		idleTimeout:  util.MustParseDuration(*cfg.IdleTimeout),
		pingInterval: util.MustParseDuration(*cfg.PingInterval),
		writeTimeout: util.MustParseDuration(*cfg.WriteTimeout),
		sendQueue:    *cfg.SendQueue,
		maxFrameSize: *cfg.MaxFrameSize,
		sessions:     make(map[*Session]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
	return g
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.acquire() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.wg.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("WebSocket upgrade error: %v", err)
		return
	}

	// 获取IP地址
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	log.Debugf("New WebSocket connection from %s", ip)

	ss := NewSession(ip, conn, g.sendQueue, g.writeTimeout, g.pingInterval)
	if !g.track(ss) {
		ss.Close()
		return
	}
	go func() {
		defer g.wg.Done()
		ss.writeLoop()
	}()
	go func() {
		defer g.wg.Done()
		defer g.untrack(ss)
		g.handleConnection(ss)
	}()
}

// acquire 未关闭时占用一个升级名额
func (g *Gateway) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// track 登记会话并为读写协程计数；已关闭返回 false
func (g *Gateway) track(ss *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.sessions[ss] = struct{}{}
	g.wg.Add(2)
	return true
}

func (g *Gateway) untrack(ss *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, ss)
}

func (g *Gateway) handleConnection(ss *Session) {
	defer func() {
		g.registry.Unregister(ss)
		ss.Close()
	}()

	ss.conn.SetReadLimit(g.maxFrameSize)
	ss.conn.SetReadDeadline(time.Now().Add(g.idleTimeout))
	ss.conn.SetPongHandler(func(string) error {
		ss.Touch()
		return ss.conn.SetReadDeadline(time.Now().Add(g.idleTimeout))
	})

	for {
		_, data, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithFields(log.Fields{"ip": ss.ip, "minerId": ss.MinerId()}).Debugf("Error reading from socket: %v", err)
			} else {
				log.Debugf("Client %s disconnected", ss.ip)
			}
			return
		}

		// 更新超时时间
		ss.Touch()
		ss.conn.SetReadDeadline(time.Now().Add(g.idleTimeout))

		if len(data) > 0 {
			g.handleMessage(ss, data)
		}
	}
}

// handleMessage 协议错误只回错误帧，不断开连接
func (g *Gateway) handleMessage(ss *Session, data []byte) {
	request, err := message.UnmarshalInbound(data)
	if err != nil {
		log.WithField("ip", ss.ip).Debugf("Invalid message: %v", err)
		ss.Enqueue(message.Marshal(message.NewError("Invalid message format")))
		return
	}

	log.Debugf("Request type: %v", request.Type)
	switch request.Type {
	case message.TypeRegister:
		if !util.IsValidMinerId(request.MinerId) {
			ss.Enqueue(message.Marshal(message.NewError("Invalid minerId")))
			return
		}
		g.registry.Register(request.MinerId, ss)
	default:
		ss.Enqueue(message.Marshal(message.NewError("Unknown message type")))
	}
}

// Close 关闭全部连接（含未注册的），等待读写协程退出
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	sessions := make([]*Session, 0, len(g.sessions))
	for ss := range g.sessions {
		sessions = append(sessions, ss)
	}
	g.mu.Unlock()

	for _, ss := range sessions {
		ss.Close()
	}
	g.registry.CloseAll()

	g.wg.Wait()
}
