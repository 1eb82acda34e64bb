package core

import (
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"sync"
	"sync/atomic"
	"time"
)

// Conn 会话使用的连接能力，*websocket.Conn 满足该接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Session struct {
	ip   string
	conn Conn

	mu       sync.RWMutex
	minerId  string
	joinedAt time.Time

	lastActive atomic.Int64

	send         chan []byte
	quit         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewSession(ip string, conn Conn, sendQueue int, writeTimeout, pingInterval time.Duration) *Session {
	ss := &Session{
		ip:           ip,
		conn:         conn,
		send:         make(chan []byte, sendQueue),
		quit:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
	ss.Touch()
	return ss
}

func (ss *Session) MinerId() string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.minerId
}

func (ss *Session) JoinedAt() time.Time {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.joinedAt
}

func (ss *Session) setMinerId(id string, at time.Time) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.minerId = id
	ss.joinedAt = at
}

// Touch 刷新最后活跃时间
func (ss *Session) Touch() {
	ss.lastActive.Store(time.Now().UnixNano())
}

func (ss *Session) LastActive() time.Time {
	return time.Unix(0, ss.lastActive.Load())
}

// Enqueue 非阻塞写入发送队列；队列满或会话已关闭返回 false
func (ss *Session) Enqueue(data []byte) bool {
	select {
	case <-ss.quit:
		return false
	default:
	}

	select {
	case ss.send <- data:
		return true
	default:
		return false
	}
}

func (ss *Session) Closed() bool {
	select {
	case <-ss.quit:
		return true
	default:
		return false
	}
}

// Close 关闭连接，可重复调用
func (ss *Session) Close() {
	ss.closeOnce.Do(func() {
		close(ss.quit)
		ss.conn.Close()
	})
}

// writeLoop 每个会话唯一的写协程，保证同一连接上的发送顺序
func (ss *Session) writeLoop() {
	ticker := time.NewTicker(ss.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.quit:
			return

		case data := <-ss.send:
			ss.conn.SetWriteDeadline(time.Now().Add(ss.writeTimeout))
			if err := ss.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithFields(log.Fields{"ip": ss.ip, "minerId": ss.MinerId()}).Debugf("Send data error: %v", err)
				ss.Close()
				return
			}

		case <-ticker.C:
			ss.conn.SetWriteDeadline(time.Now().Add(ss.writeTimeout))
			if err := ss.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ss.Close()
				return
			}
		}
	}
}
