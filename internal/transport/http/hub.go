package http

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qrquest/internal/domain"
)

const msgWinner = "Congratulations! You won a prize 🎉"

// Hub tracks live websocket participants and pushes quest events to them.
// It implements app.Notifier; operator-only events are ignored.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*wsClient)}
}

type wsClient struct {
	send chan outboundMessage[any]
	done chan struct{}
	once sync.Once
}

func newWSClient() *wsClient {
	return &wsClient{
		send: make(chan outboundMessage[any], 16),
		done: make(chan struct{}),
	}
}

// push queues msg unless the connection is gone.
func (c *wsClient) push(msg outboundMessage[any]) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// offer queues msg without waiting; a client whose buffer is full misses it.
func (c *wsClient) offer(msg outboundMessage[any]) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// register makes c the live connection for identity, replacing an older one.
func (h *Hub) register(identity string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[identity] = c
}

func (h *Hub) unregister(identity string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[identity] == c {
		delete(h.clients, identity)
	}
}

func (h *Hub) client(identity string) (*wsClient, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[identity]
	return c, ok
}

// Connected reports how many participants are online.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegistrationOccurred(context.Context, domain.Participant, int) error { return nil }

func (h *Hub) PerfectCompletion(context.Context, domain.Participant, []domain.AnswerSummary) error {
	return nil
}

func (h *Hub) QuestClosed(_ context.Context, summaries []domain.ParticipantSummary) error {
	var errs []error
	for _, s := range summaries {
		if err := h.deliver(s.Identity, outboundMessage[any]{Type: "results", Payload: s}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) WinnerDrawn(_ context.Context, p domain.Participant) error {
	return h.deliver(p.Identity, outboundMessage[any]{Type: "winner", Payload: noticePayload{Message: msgWinner}})
}

// deliver offers msg to identity's connection, if any. Offline identities are skipped.
func (h *Hub) deliver(identity string, msg outboundMessage[any]) error {
	c, ok := h.client(identity)
	if !ok {
		return nil
	}
	if !c.offer(msg) {
		return fmt.Errorf("ws %s: %s dropped, client not reading", identity, msg.Type)
	}
	return nil
}
