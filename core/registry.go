package core

import (
	log "github.com/sirupsen/logrus"
	"mining-coordinator/metrics"
	"sort"
	"sync"
	"time"
)

// PresenceEvent 在线状态变化
type PresenceEvent struct {
	Joined  bool
	Session *Session
}

type PresenceListener interface {
	PresenceChanged(ev PresenceEvent)
}

// Registry 矿工标识到会话的唯一映射
type Registry struct {
	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	listener PresenceListener
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Attach 设置在线状态监听者，需在接受连接前调用
func (r *Registry) Attach(listener PresenceListener) {
	r.listener = listener
}

// Register 注册会话；同一标识的旧连接会被关闭
func (r *Registry) Register(minerId string, ss *Session) {
	r.sessionsMu.Lock()
	if prev := ss.MinerId(); prev != "" && prev != minerId && r.sessions[prev] == ss {
		delete(r.sessions, prev)
	}
	old := r.sessions[minerId]
	ss.setMinerId(minerId, time.Now())
	r.sessions[minerId] = ss
	total := len(r.sessions)
	r.sessionsMu.Unlock()

	if old != nil && old != ss {
		log.WithFields(log.Fields{"minerId": minerId, "ip": old.ip}).Info("Closing superseded session")
		old.Close()
	}

	metrics.SetOnlineSessions(total)
	log.WithFields(log.Fields{"minerId": minerId, "ip": ss.ip}).Infof("[REG] Total number of sessions: %v", total)

	r.notify(PresenceEvent{Joined: true, Session: ss})
}

// Unregister 移除会话；若该标识已被新连接取代则不做任何事
func (r *Registry) Unregister(ss *Session) {
	minerId := ss.MinerId()
	if minerId == "" {
		return
	}

	r.sessionsMu.Lock()
	current, ok := r.sessions[minerId]
	removed := ok && current == ss
	if removed {
		delete(r.sessions, minerId)
	}
	total := len(r.sessions)
	r.sessionsMu.Unlock()

	if !removed {
		return
	}

	metrics.SetOnlineSessions(total)
	log.WithFields(log.Fields{"minerId": minerId, "ip": ss.ip}).Infof("[RM] Total number of sessions: %v", total)

	r.notify(PresenceEvent{Joined: false, Session: ss})
}

func (r *Registry) notify(ev PresenceEvent) {
	if r.listener != nil {
		r.listener.PresenceChanged(ev)
	}
}

// Snapshot 当前在线的矿工标识，已排序
func (r *Registry) Snapshot() []string {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Lookup(minerId string) (*Session, bool) {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	ss, ok := r.sessions[minerId]
	return ss, ok
}

// Send 单播；目标不在线返回 ErrPeerNotFound
func (r *Registry) Send(minerId string, data []byte) error {
	ss, ok := r.Lookup(minerId)
	if !ok {
		return ErrPeerNotFound
	}
	if !ss.Enqueue(data) {
		if ss.Closed() {
			return ErrPeerNotFound
		}
		return ErrPeerBusy
	}
	return nil
}

// Broadcast 向快照中的全部会话投递，返回丢弃数
func (r *Registry) Broadcast(data []byte) int {
	dropped := 0
	for _, ss := range r.sessionList() {
		if !ss.Enqueue(data) {
			dropped++
		}
	}
	return dropped
}

func (r *Registry) sessionList() []*Session {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()

	list := make([]*Session, 0, len(r.sessions))
	for _, ss := range r.sessions {
		list = append(list, ss)
	}
	return list
}

// Idle 最后活跃早于 before 的会话
func (r *Registry) Idle(before time.Time) []*Session {
	var idle []*Session
	for _, ss := range r.sessionList() {
		if ss.LastActive().Before(before) {
			idle = append(idle, ss)
		}
	}
	return idle
}

// CloseAll 关闭全部会话，读协程退出时自行注销
func (r *Registry) CloseAll() {
	for _, ss := range r.sessionList() {
		ss.Close()
	}
}
