package ws

import "github.com/chatsync/internal/model"

type EventType string

const (
	// От сервера
	EventSnapshot EventType = "snapshot"
	EventAck      EventType = "ack"
	EventError    EventType = "error"

	// От клиента
	EventSelectConversation EventType = "select_conversation"
	EventSendMessage        EventType = "send_message"
	EventSetPresence        EventType = "set_presence"
	EventOpenDirect         EventType = "open_direct"
)

// IncomingMessage — команда клиента. Результат приходит следующим снимком,
// ack подтверждает только выполнение записи.
type IncomingMessage struct {
	Type           EventType        `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Content        string           `json:"content,omitempty"`
	Status         model.UserStatus `json:"status,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// AckPayload подтверждает выполненную команду.
type AckPayload struct {
	Command        EventType `json:"command"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
}
