package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

// ConversationRepository находит или создаёт чат по множеству участников
// и отдаёт список чатов пользователя с пересчитанными именами.
type ConversationRepository struct {
	store storage.CollectionStore
	newID func() string
}

func NewConversationRepository(store storage.CollectionStore) *ConversationRepository {
	return &ConversationRepository{
		store: store,
		newID: func() string { return "conv-" + uuid.New().String() },
	}
}

// distinct убирает повторы, сохраняя порядок: первый элемент остаётся инициатором.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Resolve возвращает id чата с тем же множеством участников либо создаёт новый.
// Двух чатов с одинаковым множеством участников быть не может; порядок id не важен.
// Новый чат дописывается в коллекцию, и коллекция перезаписывается целиком.
func (r *ConversationRepository) Resolve(ctx context.Context, participantIDs []string) (string, error) {
	defer logger.DeferLogDuration("conv.Resolve", time.Now())()
	ids := distinct(participantIDs)
	if len(ids) < 2 {
		return "", ErrInvalidParticipants
	}

	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return "", fmt.Errorf("convRepo.Resolve users: %w", err)
	}
	name, avatar := model.UnknownUserName, model.DefaultAvatar
	if other := firstOther(ids, users); other != nil {
		name, avatar = other.Name, other.Avatar
	}

	// Поиск и дописывание — под одной блокировкой коллекции, иначе два одновременных
	// вызова для одного множества участников создадут два чата.
	var id string
	created := false
	err = storage.Update(ctx, r.store, storage.Conversations, func(convs []model.Conversation) ([]model.Conversation, error) {
		created = false
		for i := range convs {
			if convs[i].SameParticipants(ids) {
				id = convs[i].ID
				return nil, storage.ErrNoChange
			}
		}
		c := model.Conversation{
			ID:           r.newID(),
			Name:         name,
			Avatar:       avatar,
			Participants: ids,
			LastMessage:  "",
			LastSeen:     model.LastSeenJustNow,
			UnreadCount:  0,
			IsGroup:      len(ids) > 2,
		}
		id, created = c.ID, true
		return append(convs, c), nil
	})
	if err != nil {
		return "", fmt.Errorf("convRepo.Resolve save: %w", err)
	}
	if created {
		logger.Infof("conversation created id=%s participants=%d group=%t", id, len(ids), len(ids) > 2)
	}
	return id, nil
}

// firstOther — первый в порядке коллекции users участник, не являющийся инициатором ids[0].
func firstOther(ids []string, users []model.User) *model.User {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids[1:] {
		set[id] = struct{}{}
	}
	for i := range users {
		if _, ok := set[users[i].ID]; ok {
			return &users[i]
		}
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	convs, err := storage.Load[model.Conversation](ctx, r.store, storage.Conversations)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	for i := range convs {
		if convs[i].ID == id {
			return &convs[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListForUser возвращает чаты, где userID среди участников, в порядке коллекции.
// Имя и аватар личных чатов берутся из текущей записи собеседника (DeriveDisplay).
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	convs, err := storage.Load[model.Conversation](ctx, r.store, storage.Conversations)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser load: %w", err)
	}
	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser users: %w", err)
	}

	result := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if !c.HasParticipant(userID) {
			continue
		}
		c.Name, c.Avatar = DeriveDisplay(c, users, userID)
		result = append(result, c)
	}
	return result, nil
}

// UpdateSummary перезаписывает lastMessage и lastSeen. found=false, если чата нет:
// тогда коллекция не трогается.
func (r *ConversationRepository) UpdateSummary(ctx context.Context, id, lastMessage string) (bool, error) {
	defer logger.DeferLogDuration("conv.UpdateSummary", time.Now())()
	found := false
	err := storage.Update(ctx, r.store, storage.Conversations, func(convs []model.Conversation) ([]model.Conversation, error) {
		for i := range convs {
			if convs[i].ID == id {
				convs[i].LastMessage = lastMessage
				convs[i].LastSeen = model.LastSeenJustNow
				found = true
				return convs, nil
			}
		}
		found = false
		return nil, storage.ErrNoChange
	})
	if err != nil {
		return found, fmt.Errorf("convRepo.UpdateSummary save: %w", err)
	}
	return found, nil
}
