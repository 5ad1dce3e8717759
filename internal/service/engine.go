package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/repository"
	"github.com/chatsync/internal/syncloop"
)

var (
	// ErrUnauthenticated — нет подтверждённой сессии (или пользователя). Внутри не повторяется.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrInvalidName     = errors.New("name is required")
	// ErrNotParticipant — пользователь не участник чата, к которому обращается.
	ErrNotParticipant = errors.New("not a participant of the conversation")
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Options struct {
	PollInterval time.Duration
	// StoreTimeout ограничивает каждое обращение к хранилищу.
	StoreTimeout time.Duration
}

type session struct {
	loop *syncloop.Loop
	feed *syncloop.Feed
}

// Engine — граница движка синхронизации с UI-слоем: сессии, чтения, записи.
// После каждой записи сессии затронутых пользователей обновляются вне очереди.
type Engine struct {
	users *repository.UserRepository
	convs *repository.ConversationRepository
	msgs  *repository.MessageRepository
	opts  Options

	mu       sync.Mutex
	sessions map[string]*session
	// tokens — выданные сессии по ID; у пользователя их может быть несколько (вкладки, устройства).
	tokens map[string]*model.Session
}

var _ syncloop.Source = (*Engine)(nil)

func NewEngine(
	users *repository.UserRepository,
	convs *repository.ConversationRepository,
	msgs *repository.MessageRepository,
	opts Options,
) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = syncloop.DefaultInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Engine{
		users:    users,
		convs:    convs,
		msgs:     msgs,
		opts:     opts,
		sessions: make(map[string]*session),
		tokens:   make(map[string]*model.Session),
	}
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.StoreTimeout)
}

// Register создаёт пользователя (сразу online). Повторный email — repository.ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, name, email string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, ErrInvalidName
	}
	if !emailRegexp.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.users.Create(ctx, name, email)
	if err != nil {
		return nil, err
	}
	logger.Infof("user registered id=%s", u.ID)
	return u, nil
}

// Login находит пользователя по email и отмечает его online. Неизвестный email — ErrUnauthenticated.
func (e *Engine) Login(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if err := e.users.SetStatus(ctx, u.ID, model.StatusOnline); err != nil {
		return nil, err
	}
	u.Status = model.StatusOnline
	return u, nil
}

// InitializeSession подтверждает личность и запускает цикл опроса (Idle → Polling).
// Если пользователя нет — ErrUnauthenticated, цикл не запускается.
// Повторный вызов для живой сессии возвращает пользователя без второго цикла.
func (e *Engine) InitializeSession(ctx context.Context, userID string) (*model.User, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.users.GetByID(sctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if err := e.users.SetStatus(sctx, userID, model.StatusOnline); err != nil {
		logger.Warnf("session user=%s: set online: %v", userID, err)
	} else {
		u.Status = model.StatusOnline
	}

	e.mu.Lock()
	if _, ok := e.sessions[userID]; ok {
		e.mu.Unlock()
		return u, nil
	}
	feed := syncloop.NewFeed()
	loop := syncloop.New(userID, e, syncloop.Options{
		Interval:    e.opts.PollInterval,
		ReadTimeout: e.opts.StoreTimeout,
		Publish:     feed.Publish,
	})
	e.sessions[userID] = &session{loop: loop, feed: feed}
	e.mu.Unlock()

	// Цикл живёт дольше запроса, который его создал: останавливается только TeardownSession.
	if err := loop.Start(context.Background()); err != nil {
		return nil, err
	}
	logger.Infof("session started user=%s interval=%v", userID, e.opts.PollInterval)
	return u, nil
}

// OpenSession запускает сессию пользователя (InitializeSession) и выдаёт ему новый токен.
// Вызывается только после Register или Login: личность подтверждена email.
func (e *Engine) OpenSession(ctx context.Context, userID string) (*model.Session, *model.User, error) {
	u, err := e.InitializeSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	id, err := newSessionID()
	if err != nil {
		return nil, nil, fmt.Errorf("session id: %w", err)
	}
	now := time.Now().UTC()
	sess := &model.Session{ID: id, UserID: userID, CreatedAt: now, LastSeenAt: now}
	e.mu.Lock()
	e.tokens[id] = sess
	e.mu.Unlock()
	out := *sess
	return &out, u, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UserForSession возвращает пользователя живой сессии и отмечает её использование.
func (e *Engine) UserForSession(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tokens[sessionID]
	if !ok {
		return "", false
	}
	if _, live := e.sessions[t.UserID]; !live {
		delete(e.tokens, sessionID)
		return "", false
	}
	t.LastSeenAt = time.Now().UTC()
	return t.UserID, true
}

// CloseSession отзывает токен. Когда у пользователя не остаётся токенов, сессия завершается
// (TeardownSession): цикл останавливается, пользователь уходит в offline.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) {
	e.mu.Lock()
	t, ok := e.tokens[sessionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.tokens, sessionID)
	last := true
	for _, other := range e.tokens {
		if other.UserID == t.UserID {
			last = false
			break
		}
	}
	e.mu.Unlock()
	if last {
		e.TeardownSession(ctx, t.UserID)
	}
}

// Authorize проверяет, что чат существует и userID среди его участников.
func (e *Engine) Authorize(ctx context.Context, userID, conversationID string) error {
	c, err := e.convsByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !c.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// HasSession сообщает, есть ли живая сессия пользователя.
func (e *Engine) HasSession(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[userID]
	return ok
}

func (e *Engine) session(userID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s, nil
}

// TeardownSession останавливает цикл (больше ни одного тика), закрывает подписки
// и пытается выставить offline. Ошибка последней записи только логируется.
func (e *Engine) TeardownSession(ctx context.Context, userID string) {
	e.mu.Lock()
	s, ok := e.sessions[userID]
	delete(e.sessions, userID)
	for id, t := range e.tokens {
		if t.UserID == userID {
			delete(e.tokens, id)
		}
	}
	e.mu.Unlock()

	if ok {
		s.loop.Stop()
		s.feed.Close()
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.users.SetStatus(sctx, userID, model.StatusOffline); err != nil {
		logger.Warnf("teardown user=%s: set offline: %v", userID, err)
	}
	logger.Infof("session ended user=%s", userID)
}

// Shutdown завершает все сессии (остановка процесса).
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.TeardownSession(ctx, id)
	}
}

func (e *Engine) ListUsers(ctx context.Context) ([]model.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.users.List(ctx)
}

func (e *Engine) ListConversations(ctx context.Context, forUserID string) ([]model.Conversation, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.convs.ListForUser(ctx, forUserID)
}

func (e *Engine) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.msgs.ListFor(ctx, conversationID)
}

// SendMessage дописывает сообщение и сразу обновляет сессии участников чата.
// Пустое (после trim) сообщение — repository.ErrEmptyContent.
func (e *Engine) SendMessage(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	sctx, cancel := e.storeCtx(ctx)
	m, err := e.msgs.Append(sctx, conversationID, senderID, content)
	cancel()
	if err != nil {
		return nil, err
	}

	targets := []string{senderID}
	if c, err := e.convsByID(ctx, conversationID); err == nil {
		targets = c.Participants
	}
	e.refreshSessions(ctx, targets)
	return m, nil
}

func (e *Engine) convsByID(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.convs.GetByID(ctx, id)
}

// StartOrGetConversation возвращает id существующего чата с тем же множеством
// участников либо создаёт новый; затем обновляет сессии участников.
func (e *Engine) StartOrGetConversation(ctx context.Context, participantIDs []string) (string, error) {
	sctx, cancel := e.storeCtx(ctx)
	id, err := e.convs.Resolve(sctx, participantIDs)
	cancel()
	if err != nil {
		return "", err
	}
	e.refreshSessions(ctx, participantIDs)
	return id, nil
}

// OpenDirect — выбор пользователя в списке: личный чат с ним становится активным.
func (e *Engine) OpenDirect(ctx context.Context, userID, otherID string) (string, error) {
	if userID == otherID {
		return "", repository.ErrInvalidParticipants
	}
	id, err := e.StartOrGetConversation(ctx, []string{userID, otherID})
	if err != nil {
		return "", err
	}
	if err := e.SelectConversation(ctx, userID, id); err != nil && !errors.Is(err, ErrUnauthenticated) {
		return id, err
	}
	return id, nil
}

// SelectConversation делает чат активным в сессии и сразу читает его сообщения.
func (e *Engine) SelectConversation(ctx context.Context, userID, conversationID string) error {
	s, err := e.session(userID)
	if err != nil {
		return err
	}
	if err := s.loop.Select(ctx, conversationID); err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}
	return nil
}

// SetPresence меняет статус. Неизвестный пользователь — тихий no-op.
func (e *Engine) SetPresence(ctx context.Context, userID string, status model.UserStatus) error {
	sctx, cancel := e.storeCtx(ctx)
	err := e.users.SetStatus(sctx, userID, status)
	cancel()
	if err != nil {
		return err
	}
	e.refreshSessions(ctx, []string{userID})
	return nil
}

// UpdateProfile меняет имя/аватар. Личные чаты увидят новое имя при следующем чтении.
func (e *Engine) UpdateProfile(ctx context.Context, userID, name, avatar string) (*model.User, error) {
	sctx, cancel := e.storeCtx(ctx)
	u, err := e.users.UpdateProfile(sctx, userID, name, avatar)
	cancel()
	if err != nil {
		return nil, err
	}
	e.refreshSessions(ctx, []string{userID})
	return u, nil
}

// Subscribe подписывает на снимки сессии пользователя.
func (e *Engine) Subscribe(userID string) (<-chan syncloop.Snapshot, func(), error) {
	s, err := e.session(userID)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.feed.Subscribe()
	return ch, unsubscribe, nil
}

// Snapshot возвращает последний опубликованный снимок сессии.
func (e *Engine) Snapshot(userID string) (syncloop.Snapshot, error) {
	s, err := e.session(userID)
	if err != nil {
		return syncloop.Snapshot{}, err
	}
	return s.loop.Last(), nil
}

// refreshSessions — внеочередное обновление локальных сессий. Ошибки чтения только логируются:
// следующий тик всё равно перечитает хранилище.
func (e *Engine) refreshSessions(ctx context.Context, userIDs []string) {
	e.mu.Lock()
	loops := make([]*syncloop.Loop, 0, len(userIDs))
	for _, id := range userIDs {
		if s, ok := e.sessions[id]; ok {
			loops = append(loops, s.loop)
		}
	}
	e.mu.Unlock()

	for _, l := range loops {
		if err := l.Refresh(ctx); err != nil && !errors.Is(err, syncloop.ErrNotPolling) {
			logger.Warnf("refresh after write user=%s: %v", l.UserID(), err)
		}
	}
}
