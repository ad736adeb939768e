package quiz

import (
	"sync"

	"mioserver/quiz/protocol"
)

// Socket is one live client connection.
type Socket interface {
	ID() string
	Send(msg protocol.Outbound) error
	Close()
}

// binding は認証済みソケットとユーザーの対応
type binding struct {
	UserID string
	RoomID string
}

// hub は接続中のソケットと、その認証状態を保持する
type hub struct {
	mu       sync.RWMutex
	sockets  map[string]Socket
	bindings map[string]binding
}

func newHub() *hub {
	return &hub{
		sockets:  make(map[string]Socket),
		bindings: make(map[string]binding),
	}
}

func (h *hub) add(s Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sockets[s.ID()] = s
}

func (h *hub) remove(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sockets, socketID)
	delete(h.bindings, socketID)
}

func (h *hub) socket(socketID string) (Socket, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sockets[socketID]
	return s, ok
}

func (h *hub) bind(socketID string, b binding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bindings[socketID] = b
}

func (h *hub) unbind(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bindings, socketID)
}

func (h *hub) binding(socketID string) (binding, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.bindings[socketID]
	return b, ok
}

// count は接続中のソケット数
func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets)
}
