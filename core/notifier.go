package core

import (
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/message"
	"sync"
	"time"
)

// Notifier 在单独协程中完成在线状态与出块事件的扇出
type Notifier struct {
	registry    *Registry
	idleTimeout time.Duration

	presenceCh chan PresenceEvent
	blockCh    chan BlockCompletedEvent
	blockSub   event.Subscription

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewNotifier(registry *Registry, lifecycle *Lifecycle, idleTimeout time.Duration) *Notifier {
	n := &Notifier{
		registry:    registry,
		idleTimeout: idleTimeout,
		presenceCh:  make(chan PresenceEvent, 64),
		blockCh:     make(chan BlockCompletedEvent, 4),
		quit:        make(chan struct{}),
	}
	registry.Attach(n)
	if lifecycle != nil {
		n.blockSub = lifecycle.SubscribeCompleted(n.blockCh)
	}

	n.wg.Add(1)
	go n.loop()
	return n
}

// PresenceChanged 由 Registry 调用
func (n *Notifier) PresenceChanged(ev PresenceEvent) {
	select {
	case n.presenceCh <- ev:
	case <-n.quit:
	}
}

func (n *Notifier) loop() {
	defer n.wg.Done()

	reapInterval := n.idleTimeout / 2
	if reapInterval <= 0 {
		reapInterval = time.Second
	}
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	var subErr <-chan error
	if n.blockSub != nil {
		subErr = n.blockSub.Err()
	}

	for {
		select {
		case <-n.quit:
			return

		case ev := <-n.presenceCh:
			n.announce(ev)

		case ev := <-n.blockCh:
			minedBy := ""
			if ev.Block.MinedBy != nil {
				minedBy = *ev.Block.MinedBy
			}
			n.registry.Broadcast(message.Marshal(message.NewBlockCompleted(ev.Block.Id, minedBy)))

		case <-subErr:
			subErr = nil

		case <-ticker.C:
			// 关闭空闲会话，由其读循环负责注销
			for _, ss := range n.registry.Idle(time.Now().Add(-n.idleTimeout)) {
				log.WithFields(log.Fields{"minerId": ss.MinerId(), "ip": ss.ip}).Debug("Closing idle session")
				ss.Close()
			}
		}
	}
}

// announce 广播在线人数；新加入者收到其余每个在线标识
func (n *Notifier) announce(ev PresenceEvent) {
	if dropped := n.registry.Broadcast(message.Marshal(message.NewOnlineMiners(n.registry.Count()))); dropped > 0 {
		log.Debugf("Online count dropped for %d sessions", dropped)
	}

	if !ev.Joined {
		return
	}
	newcomer := ev.Session.MinerId()
	for _, peerId := range n.registry.Snapshot() {
		if peerId == newcomer {
			continue
		}
		if !ev.Session.Enqueue(message.Marshal(message.NewPeerJoined(peerId))) {
			return
		}
	}
}

func (n *Notifier) Close() {
	if n.blockSub != nil {
		n.blockSub.Unsubscribe()
	}
	close(n.quit)

	n.wg.Wait()
}
