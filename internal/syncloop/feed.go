package syncloop

import "sync"

const feedBufSize = 8

// Feed раздаёт снимки подписчикам (WebSocket-клиенты, терминальный клиент).
// Publish не блокируется: если подписчик не успевает, его самый старый снимок
// выбрасывается — важен только последний.
type Feed struct {
	mu     sync.Mutex
	subs   map[chan Snapshot]struct{}
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Snapshot]struct{})}
}

// Subscribe возвращает канал снимков и функцию отписки. Отписка закрывает канал.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, feedBufSize)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
}

// Publish подходит как Publisher для Loop.
func (f *Feed) Publish(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Close закрывает все подписки (конец сессии).
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}

// Len — число активных подписчиков.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
