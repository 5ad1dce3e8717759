package repository

import "github.com/chatsync/internal/model"

// DeriveDisplay вычисляет имя и аватар чата для зрителя viewerID. Без побочных эффектов.
//
// Групповой чат отображается как сохранён. Личный — по текущей записи собеседника
// (первый в порядке users участник, отличный от зрителя); если собеседника нет,
// остаются сохранённые имя и аватар.
func DeriveDisplay(c model.Conversation, users []model.User, viewerID string) (name, avatar string) {
	if c.IsGroup {
		return c.Name, c.Avatar
	}
	for i := range users {
		if users[i].ID != viewerID && c.HasParticipant(users[i].ID) {
			return users[i].Name, users[i].Avatar
		}
	}
	return c.Name, c.Avatar
}
