package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

// UserRepository — коллекция users и трекер присутствия.
type UserRepository struct {
	store storage.CollectionStore
	now   func() time.Time
}

func NewUserRepository(store storage.CollectionStore) *UserRepository {
	return &UserRepository{store: store, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	users, err := storage.Load[model.User](ctx, r.store, storage.Users)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	email = normalizeEmail(email)
	for i := range users {
		if normalizeEmail(users[i].Email) == email {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// Create регистрирует пользователя в статусе online. Email уникален (без учёта регистра).
func (r *UserRepository) Create(ctx context.Context, name, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	norm := normalizeEmail(email)
	u := model.User{
		ID:     "user-" + uuid.New().String(),
		Name:   strings.TrimSpace(name),
		Email:  norm,
		Avatar: model.UserAvatar,
		Status: model.StatusOnline,
	}
	err := storage.Update(ctx, r.store, storage.Users, func(users []model.User) ([]model.User, error) {
		for i := range users {
			if normalizeEmail(users[i].Email) == norm {
				return nil, ErrEmailTaken
			}
		}
		return append(users, u), nil
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.Create save: %w", err)
	}
	return &u, nil
}

// SetStatus меняет статус и ставит last_seen = now. Неизвестный пользователь — тихий no-op:
// коллекция не перезаписывается.
func (r *UserRepository) SetStatus(ctx context.Context, userID string, status model.UserStatus) error {
	defer logger.DeferLogDuration("user.SetStatus", time.Now())()
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	known := false
	err := storage.Update(ctx, r.store, storage.Users, func(users []model.User) ([]model.User, error) {
		for i := range users {
			if users[i].ID == userID {
				seen := r.now().UTC()
				users[i].Status = status
				users[i].LastSeen = &seen
				known = true
				return users, nil
			}
		}
		known = false
		return nil, storage.ErrNoChange
	})
	if err != nil {
		return fmt.Errorf("userRepo.SetStatus save: %w", err)
	}
	if !known {
		logger.Debugf("presence for unknown user=%s dropped", userID)
	}
	return nil
}

// UpdateProfile меняет имя и/или аватар (пустое значение — не менять).
// Чаты не мигрируются: имена личных чатов пересчитываются при чтении.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, name, avatar string) (*model.User, error) {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	var updated *model.User
	err := storage.Update(ctx, r.store, storage.Users, func(users []model.User) ([]model.User, error) {
		for i := range users {
			if users[i].ID != userID {
				continue
			}
			if n := strings.TrimSpace(name); n != "" {
				users[i].Name = n
			}
			if a := strings.TrimSpace(avatar); a != "" {
				users[i].Avatar = a
			}
			u := users[i]
			updated = &u
			return users, nil
		}
		return nil, ErrNotFound
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.UpdateProfile save: %w", err)
	}
	return updated, nil
}

// SeedIfEmpty записывает начальных пользователей, только если коллекция пуста.
func (r *UserRepository) SeedIfEmpty(ctx context.Context, seed []model.User) (bool, error) {
	seeded := false
	err := storage.Update(ctx, r.store, storage.Users, func(users []model.User) ([]model.User, error) {
		if len(users) > 0 {
			seeded = false
			return nil, storage.ErrNoChange
		}
		seeded = true
		return seed, nil
	})
	if err != nil {
		return false, fmt.Errorf("userRepo.SeedIfEmpty: %w", err)
	}
	return seeded, nil
}

// DefaultSeed — пользователи, которыми инициализируется пустое хранилище.
func DefaultSeed() []model.User {
	return []model.User{
		{ID: "user-1", Name: "Alice Johnson", Email: "alice@example.com", Avatar: model.UserAvatar, Status: model.StatusOnline},
		{ID: "user-2", Name: "Bob Smith", Email: "bob@example.com", Avatar: model.UserAvatar, Status: model.StatusOnline},
		{ID: "user-3", Name: "Carol Davis", Email: "carol@example.com", Avatar: model.UserAvatar, Status: model.StatusAway},
	}
}
