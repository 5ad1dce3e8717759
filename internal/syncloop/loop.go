// Package syncloop — периодический опрос хранилища для одной клиентской сессии.
//
// Loop — конечный автомат Idle → Polling → Stopped. В состоянии Polling он сразу
// делает один цикл обновления, затем повторяет его с фиксированным интервалом и
// публикует снимок (пользователи, чаты текущего пользователя, сообщения активного чата).
// Ошибки чтения не останавливают цикл: следующий тик просто пробует снова.
package syncloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
)

// DefaultInterval — период опроса по умолчанию.
const DefaultInterval = 3 * time.Second

type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var (
	ErrAlreadyStarted = errors.New("sync loop already started")
	ErrNotPolling     = errors.New("sync loop is not polling")
)

// Source — чтения, которые делает цикл. Реализуется service.Engine поверх репозиториев.
type Source interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Snapshot — результат одного цикла обновления.
type Snapshot struct {
	UserID             string               `json:"user_id"`
	Users              []model.User         `json:"users"`
	Conversations      []model.Conversation `json:"conversations"`
	ActiveConversation string               `json:"active_conversation,omitempty"`
	Messages           []model.Message      `json:"messages"`
	OnlineCount        int                  `json:"online_count"`
	RefreshedAt        time.Time            `json:"refreshed_at"`
}

// Publisher получает каждый опубликованный снимок. Вызывается синхронно, блокировать нельзя.
type Publisher func(Snapshot)

type Options struct {
	Interval time.Duration
	// ReadTimeout ограничивает один цикл обновления; 0 — без отдельного таймаута.
	ReadTimeout time.Duration
	Publish     Publisher
}

type Loop struct {
	userID   string
	src      Source
	interval time.Duration
	timeout  time.Duration
	publish  Publisher

	mu     sync.Mutex
	state  State
	active string
	last   Snapshot
	cancel context.CancelFunc
	done   chan struct{}

	// refreshMu сериализует циклы обновления: тик и внеочередной вызов не публикуют вперемешку.
	refreshMu sync.Mutex
}

func New(userID string, src Source, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Publish == nil {
		opts.Publish = func(Snapshot) {}
	}
	return &Loop{
		userID:   userID,
		src:      src,
		interval: opts.Interval,
		timeout:  opts.ReadTimeout,
		publish:  opts.Publish,
		state:    StateIdle,
		last:     Snapshot{UserID: userID},
	}
}

func (l *Loop) UserID() string { return l.userID }

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active возвращает id выбранного чата ("" — не выбран).
func (l *Loop) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Last возвращает последний опубликованный снимок.
func (l *Loop) Last() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Start переводит цикл Idle → Polling. Первый цикл обновления выполняется сразу,
// до первого тика. ctx ограничивает время жизни цикла наравне со Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.state = StatePolling
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(runCtx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("sync loop user=%s stopped", l.userID)
			return
		case <-ticker.C:
			// Тик и отмена могут прийти одновременно: отмена побеждает.
			if ctx.Err() != nil {
				return
			}
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	err := l.Refresh(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrNotPolling) {
		logger.Warnf("sync loop user=%s refresh failed, retry next tick: %v", l.userID, err)
	}
}

// Stop отменяет цикл и ждёт завершения горутины. После возврата тиков больше не будет.
// Повторный вызов безопасен. Остановленный цикл нельзя запустить снова.
func (l *Loop) Stop() {
	l.mu.Lock()
	prev := l.state
	l.state = StateStopped
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if prev != StatePolling {
		return
	}
	cancel()
	<-done
	// Дожидаемся внеочередного обновления, если оно уже идёт.
	l.refreshMu.Lock()
	l.refreshMu.Unlock()
}

// Refresh — полный цикл обновления: пользователи и чаты параллельно, затем сообщения
// активного чата. Используется тиком и после записей (отправка, создание чата).
func (l *Loop) Refresh(ctx context.Context) error {
	if l.State() != StatePolling {
		return ErrNotPolling
	}
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var (
		users []model.User
		convs []model.Conversation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = l.src.ListUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		convs, err = l.src.ListConversations(gctx, l.userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	active := l.Active()
	var msgs []model.Message
	if active != "" {
		var err error
		msgs, err = l.src.ListMessages(ctx, active)
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	if l.state != StatePolling {
		l.mu.Unlock()
		return ErrNotPolling
	}
	snap := Snapshot{
		UserID:             l.userID,
		Users:              users,
		Conversations:      convs,
		ActiveConversation: active,
		Messages:           msgs,
		OnlineCount:        onlineCount(users, l.userID),
		RefreshedAt:        time.Now().UTC(),
	}
	// Пока шло чтение, пользователь мог выбрать другой чат: сообщения старого не публикуем.
	if l.active != active {
		snap.ActiveConversation = l.active
		snap.Messages = l.last.Messages
	}
	l.last = snap
	l.mu.Unlock()

	l.publish(snap)
	return nil
}

// Select делает чат активным и сразу, не дожидаясь тика, читает его сообщения.
// Пустой conversationID снимает выбор.
func (l *Loop) Select(ctx context.Context, conversationID string) error {
	l.mu.Lock()
	if l.state != StatePolling {
		l.mu.Unlock()
		return ErrNotPolling
	}
	l.active = conversationID
	l.mu.Unlock()

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	var msgs []model.Message
	if conversationID != "" {
		rctx, cancel := l.withTimeout(ctx)
		defer cancel()
		var err error
		msgs, err = l.src.ListMessages(rctx, conversationID)
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	if l.state != StatePolling || l.active != conversationID {
		l.mu.Unlock()
		return nil
	}
	snap := l.last
	snap.ActiveConversation = conversationID
	snap.Messages = msgs
	snap.RefreshedAt = time.Now().UTC()
	l.last = snap
	l.mu.Unlock()

	l.publish(snap)
	return nil
}

func (l *Loop) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout > 0 {
		return context.WithTimeout(ctx, l.timeout)
	}
	return context.WithCancel(ctx)
}

func onlineCount(users []model.User, viewerID string) int {
	n := 0
	for i := range users {
		if users[i].ID != viewerID && users[i].IsOnline() {
			n++
		}
	}
	return n
}
