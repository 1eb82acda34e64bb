package core

import (
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/require"
	"strconv"
	"sync"
	"testing"
	"time"
)

var errConnClosed = errors.New("connection closed")

// fakeConn 记录写出的帧，读操作阻塞到关闭
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errConnClosed
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error           { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error          { return nil }
func (c *fakeConn) SetReadLimit(limit int64)                    {}
func (c *fakeConn) SetPongHandler(h func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func newTestSession(t *testing.T, queue int) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	return NewSession("127.0.0.1", conn, queue, time.Second, time.Minute), conn
}

// nextFrame 从发送队列取下一帧并解码
func nextFrame(t *testing.T, ss *Session) map[string]interface{} {
	t.Helper()

	select {
	case data := <-ss.send:
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// waitFrame 丢弃其他帧直到出现指定类型
func waitFrame(t *testing.T, ss *Session, frameType string) map[string]interface{} {
	t.Helper()

	for {
		frame := nextFrame(t, ss)
		if frame["type"] == frameType {
			return frame
		}
	}
}

func findNonce(t *testing.T, seed string, difficulty int, valid bool) string {
	t.Helper()

	for i := 0; i < 1_000_000; i++ {
		nonce := strconv.Itoa(i)
		if Verify(seed, nonce, difficulty) == valid {
			return nonce
		}
	}
	t.Fatalf("no nonce found for difficulty %d", difficulty)
	return ""
}

type staticPresence []string

func (p staticPresence) Snapshot() []string {
	return append([]string(nil), p...)
}
