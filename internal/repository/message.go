package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

// MessageRepository — журнал сообщений: только дописывание, без правок и удалений.
type MessageRepository struct {
	store storage.CollectionStore
	convs *ConversationRepository
	now   func() time.Time
}

func NewMessageRepository(store storage.CollectionStore, convs *ConversationRepository) *MessageRepository {
	return &MessageRepository{store: store, convs: convs, now: time.Now}
}

// newMessageID — UUIDv7: время в старших битах, внутри процесса id монотонны.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "msg-" + uuid.New().String()
	}
	return "msg-" + id.String()
}

// Append дописывает сообщение и затем обновляет сводку чата (lastMessage, lastSeen).
//
// Отправитель обязан существовать (ErrUnknownSender). Если чата нет, сообщение
// всё равно сохраняется, а сводка остаётся несинхронизированной — это не ошибка.
// Ошибка записи сводки после успешной записи сообщения тоже только логируется.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	if content == "" {
		return nil, ErrEmptyContent
	}

	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append users: %w", err)
	}
	var sender *model.User
	for i := range users {
		if users[i].ID == senderID {
			sender = &users[i]
			break
		}
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSender, senderID)
	}

	m := model.Message{
		ID:             newMessageID(),
		Content:        content,
		Timestamp:      r.now().UTC(),
		SenderID:       senderID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		ConversationID: conversationID,
	}
	err = storage.Update(ctx, r.store, storage.Messages, func(messages []model.Message) ([]model.Message, error) {
		return append(messages, m), nil
	})
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append save: %w", err)
	}

	found, err := r.convs.UpdateSummary(ctx, conversationID, content)
	switch {
	case err != nil:
		logger.Warnf("message %s stored, summary of conversation %s not updated: %v", m.ID, conversationID, err)
	case !found:
		logger.Warnf("message %s stored for missing conversation %s, summary skipped", m.ID, conversationID)
	}
	return &m, nil
}

// ListFor возвращает сообщения чата по возрастанию timestamp.
// При равных timestamp порядок задаёт id (UUIDv7 растёт с временем создания).
func (r *MessageRepository) ListFor(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListFor", time.Now())()
	messages, err := storage.Load[model.Message](ctx, r.store, storage.Messages)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListFor: %w", err)
	}
	result := make([]model.Message, 0, 32)
	for _, m := range messages {
		if m.ConversationID == conversationID {
			result = append(result, m)
		}
	}
	sortMessages(result)
	return result, nil
}

func sortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
