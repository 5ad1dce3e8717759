package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/syncloop"
)

// commandTimeout ограничивает выполнение одной команды клиента.
const commandTimeout = 10 * time.Second

// Engine — часть service.Engine, которая нужна хабу.
type Engine interface {
	Subscribe(userID string) (<-chan syncloop.Snapshot, func(), error)
	Snapshot(userID string) (syncloop.Snapshot, error)
	SelectConversation(ctx context.Context, userID, conversationID string) error
	SendMessage(ctx context.Context, conversationID, senderID, content string) (*model.Message, error)
	SetPresence(ctx context.Context, userID string, status model.UserStatus) error
	OpenDirect(ctx context.Context, userID, otherID string) (string, error)
	Authorize(ctx context.Context, userID, conversationID string) error
}

// Hub держит WebSocket-клиентов и пересылает каждому снимки его сессии.
// Push здесь только между сервером и UI: хранилище по-прежнему опрашивается циклом.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]func()
	total      int
	maxConns   int
	engine     Engine
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(engine Engine, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 1000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]func()),
		maxConns:   maxConns,
		engine:     engine,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Count — число подключённых клиентов.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c, unsubscribe := range clients {
			unsubscribe()
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]func())
	h.total = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	select {
	case <-c.done:
		return
	default:
	}
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.mu.Unlock()

	snaps, unsubscribe, err := h.engine.Subscribe(c.userID)
	if err != nil {
		logger.Warnf("ws subscribe user=%s: %v", c.userID, err)
		c.enqueue(OutgoingMessage{Type: EventError, Payload: err.Error()})
		c.Close()
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]func())
	}
	h.clients[c.userID][c] = unsubscribe
	h.total++
	h.mu.Unlock()

	// Сразу отдаём последний снимок, не дожидаясь тика.
	if snap, err := h.engine.Snapshot(c.userID); err == nil {
		c.enqueue(OutgoingMessage{Type: EventSnapshot, Payload: snap})
	}

	c.wg.Add(1)
	go h.forward(c, snaps)
}

// forward пересылает снимки клиенту. Канал закрывается при отписке или при конце сессии:
// в последнем случае соединение тоже закрывается.
func (h *Hub) forward(c *Client, snaps <-chan syncloop.Snapshot) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-snaps:
			if !ok {
				c.Close()
				return
			}
			c.enqueue(OutgoingMessage{Type: EventSnapshot, Payload: snap})
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	unsubscribe, exists := clients[c]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	unsubscribe()
	c.Close()
}

// HandleMessage выполняет команду клиента. Состояние UI обновится следующим снимком.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	ack := AckPayload{Command: msg.Type}
	var err error
	switch msg.Type {
	case EventSelectConversation:
		// пустой id снимает выбор
		if msg.ConversationID != "" {
			if err = h.engine.Authorize(ctx, c.userID, msg.ConversationID); err != nil {
				break
			}
		}
		err = h.engine.SelectConversation(ctx, c.userID, msg.ConversationID)
		ack.ConversationID = msg.ConversationID
	case EventSendMessage:
		if msg.ConversationID == "" {
			err = errors.New("conversation_id required")
			break
		}
		if err = h.engine.Authorize(ctx, c.userID, msg.ConversationID); err != nil {
			break
		}
		var m *model.Message
		m, err = h.engine.SendMessage(ctx, msg.ConversationID, c.userID, msg.Content)
		if err == nil {
			ack.ConversationID, ack.MessageID = m.ConversationID, m.ID
		}
	case EventSetPresence:
		err = h.engine.SetPresence(ctx, c.userID, msg.Status)
	case EventOpenDirect:
		ack.ConversationID, err = h.engine.OpenDirect(ctx, c.userID, msg.UserID)
	default:
		err = errors.New("unknown event type")
	}
	if err != nil {
		logger.Debugf("ws command %s user=%s: %v", msg.Type, c.userID, err)
		c.enqueue(OutgoingMessage{Type: EventError, Payload: err.Error()})
		return
	}
	c.enqueue(OutgoingMessage{Type: EventAck, Payload: ack})
}
