package model

// LastSeenJustNow — подпись, которую получает чат при создании и после каждого сообщения.
// Это текст для отображения, а не время: относительное время никто не пересчитывает.
const LastSeenJustNow = "Just now"

// UnknownUserName — имя чата, если собеседника не удалось найти при создании.
const UnknownUserName = "Unknown User"

// Conversation — запись коллекции conversations.
// Для личных чатов Name и Avatar хранятся только как запасной вариант:
// при каждом чтении они пересчитываются по текущей записи собеседника.
type Conversation struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Avatar       string   `json:"avatar"`
	Participants []string `json:"participants"`
	LastMessage  string   `json:"lastMessage"`
	LastSeen     string   `json:"lastSeen"`
	UnreadCount  int      `json:"unreadCount"` // зарезервировано, не инкрементируется
	IsGroup      bool     `json:"isGroup"`
}

// HasParticipant проверяет членство пользователя в чате.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// SameParticipants — равенство множеств участников (порядок не важен).
func (c *Conversation) SameParticipants(ids []string) bool {
	if len(c.Participants) != len(ids) {
		return false
	}
	for _, id := range ids {
		if !c.HasParticipant(id) {
			return false
		}
	}
	return true
}
