package model

import "time"

// Message — запись коллекции messages. Неизменяема после создания.
// SenderName и SenderAvatar — снимок на момент отправки, при переименовании
// отправителя задним числом не обновляются.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderAvatar   string    `json:"senderAvatar"`
	ConversationID string    `json:"conversationId"`
}
