package http

import (
	"log/slog"
	"sync"
)

// replyBuffer is how many replies a listener may fall behind before it starts
// missing them.
const replyBuffer = 10

type listeners map[chan string]struct{}

// StreamManager fans replies out to the SSE listeners of each conversation.
type StreamManager struct {
	mu     sync.RWMutex
	byConv map[string]listeners
	logger *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{byConv: make(map[string]listeners), logger: logger}
}

// Subscribe adds a listener to conversationID. Calling the returned func
// removes it and closes the channel.
func (sm *StreamManager) Subscribe(conversationID string) (<-chan string, func()) {
	ch := make(chan string, replyBuffer)

	sm.mu.Lock()
	ls := sm.byConv[conversationID]
	if ls == nil {
		ls = make(listeners)
		sm.byConv[conversationID] = ls
	}
	ls[ch] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { sm.drop(conversationID, ch) })
	}
}

func (sm *StreamManager) drop(conversationID string, ch chan string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ls := sm.byConv[conversationID]
	if _, ok := ls[ch]; !ok {
		return
	}
	delete(ls, ch)
	close(ch)
	if len(ls) == 0 {
		delete(sm.byConv, conversationID)
	}
}

// Subscribers reports how many listeners follow conversationID.
func (sm *StreamManager) Subscribers(conversationID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.byConv[conversationID])
}

// Broadcast never blocks the turn: a listener with a full buffer misses msg.
func (sm *StreamManager) Broadcast(conversationID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.byConv[conversationID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("reply dropped for slow event listener", "conversation_id", conversationID)
		}
	}
}
