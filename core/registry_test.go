package core

import (
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

type recordingListener struct {
	mu     sync.Mutex
	events []PresenceEvent
}

func (l *recordingListener) PresenceChanged(ev PresenceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func TestRegisterReplacesPreviousSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	listener := &recordingListener{}
	r.Attach(listener)

	first, firstConn := newTestSession(t, 4)
	second, secondConn := newTestSession(t, 4)

	r.Register("alice", first)
	r.Register("alice", second)

	require.True(t, firstConn.isClosed())
	require.False(t, secondConn.isClosed())
	require.Equal(t, 1, r.Count())
	require.Equal(t, []string{"alice"}, r.Snapshot())

	current, ok := r.Lookup("alice")
	require.True(t, ok)
	require.Same(t, second, current)

	// 被替换的旧读循环退出时不能注销新会话
	r.Unregister(first)
	require.Equal(t, 1, r.Count())

	r.Unregister(second)
	require.Equal(t, 0, r.Count())

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.Len(t, listener.events, 3)
	require.True(t, listener.events[0].Joined)
	require.True(t, listener.events[1].Joined)
	require.False(t, listener.events[2].Joined)
}

func TestRegisterUnderNewIdDropsOldMapping(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ss, _ := newTestSession(t, 4)

	r.Register("alice", ss)
	r.Register("alice2", ss)

	require.Equal(t, []string{"alice2"}, r.Snapshot())
	require.Equal(t, "alice2", ss.MinerId())
}

func TestUnregisterAnonymousSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ss, _ := newTestSession(t, 4)
	r.Unregister(ss)
	require.Equal(t, 0, r.Count())
}

func TestSend(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.ErrorIs(t, r.Send("nobody", []byte("{}")), ErrPeerNotFound)

	ss, _ := newTestSession(t, 1)
	r.Register("bob", ss)

	require.NoError(t, r.Send("bob", []byte(`{"n":1}`)))
	require.ErrorIs(t, r.Send("bob", []byte(`{"n":2}`)), ErrPeerBusy)
	require.Equal(t, float64(1), nextFrame(t, ss)["n"])

	ss.Close()
	require.ErrorIs(t, r.Send("bob", []byte(`{"n":3}`)), ErrPeerNotFound)
}

func TestBroadcastCountsDrops(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a, _ := newTestSession(t, 1)
	b, _ := newTestSession(t, 4)
	r.Register("a", a)
	r.Register("b", b)

	require.Equal(t, 0, r.Broadcast([]byte(`{}`)))
	require.Equal(t, 1, r.Broadcast([]byte(`{}`)))
}

func TestIdle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ss, _ := newTestSession(t, 1)
	r.Register("a", ss)

	require.Empty(t, r.Idle(time.Now().Add(-time.Minute)))
	require.Len(t, r.Idle(time.Now().Add(time.Minute)), 1)
}

func TestSessionWriteLoopPreservesOrder(t *testing.T) {
	t.Parallel()

	ss, conn := newTestSession(t, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ss.writeLoop()
	}()

	for _, f := range []string{"1", "2", "3"} {
		require.True(t, ss.Enqueue([]byte(f)))
	}
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.written) == 3
	}, 2*time.Second, 10*time.Millisecond)

	ss.Close()
	<-done

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, conn.written)
	require.False(t, ss.Enqueue([]byte("4")))
}
