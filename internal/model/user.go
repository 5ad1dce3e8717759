package model

import "time"

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusAway    UserStatus = "away"
	StatusBusy    UserStatus = "busy"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// UserAvatar — аватар нового пользователя.
const UserAvatar = "/placeholder.svg?height=40&width=40"

// DefaultAvatar — аватар чата, собеседника которого не удалось найти при создании.
const DefaultAvatar = "/placeholder.svg"

// User — запись коллекции users. Создаётся при регистрации и никогда не удаляется;
// status и last_seen меняет только трекер присутствия.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Avatar   string     `json:"avatar"`
	Status   UserStatus `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// IsOnline — true, если пользователь в статусе online.
func (u *User) IsOnline() bool {
	return u.Status == StatusOnline
}
