package model

import "time"

// Session — сессия, выданная при входе. ID служит токеном: клиент передаёт его в X-Session-Id.
// Живёт только в памяти процесса API и пропадает при перезапуске.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
