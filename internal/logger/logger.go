// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы цикл синхронизации и HTTP-обработчики не ждали вывода.
// Поддерживается логирование времени выполнения функций.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const asyncBufferSize = 8192

// slowThreshold — при уровне info LogDuration пишет только вызовы дольше этого порога.
const slowThreshold = 100 * time.Millisecond

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

type entry struct {
	text  string
	flush chan struct{}
}

var (
	mu       sync.RWMutex
	prefix   string
	logLevel = levelInfo
	ch       chan entry
	once     sync.Once
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func initWorker() {
	mu.Lock()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logLevel = parseLevel(v)
	}
	mu.Unlock()
	ch = make(chan entry, asyncBufferSize)
	go func() {
		for e := range ch {
			if e.flush != nil {
				close(e.flush)
				continue
			}
			log.Print(e.text)
		}
	}()
}

func enqueue(lv level, msg string) {
	once.Do(initWorker)
	if !enabled(lv) {
		return
	}
	select {
	case ch <- entry{text: msg}:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

func enabled(lv level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return lv >= logLevel
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "client").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel переопределяет уровень из LOG_LEVEL (значение из конфига).
func SetLevel(s string) {
	once.Do(initWorker)
	mu.Lock()
	logLevel = parseLevel(s)
	mu.Unlock()
}

func tag() string {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	enqueue(levelDebug, tag()+"DEBUG: "+fmt.Sprintf(format, v...))
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	enqueue(levelInfo, tag()+fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	enqueue(levelInfo, tag()+fmt.Sprintf(format, v...))
}

// Warnf — нефатальные сбои (например, частичная запись, пропущенный тик).
func Warnf(format string, v ...any) {
	enqueue(levelWarn, tag()+"WARN: "+fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(levelError, tag()+"ERROR: "+fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(levelError, tag()+"ERROR: "+fmt.Sprintf(format, v...))
}

// Flush ждёт, пока воркер выпишет всё, что было в очереди до вызова, но не дольше timeout.
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	done := make(chan struct{})
	select {
	case ch <- entry{flush: done}:
	case <-time.After(timeout):
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if enabled(levelDebug) || elapsed >= slowThreshold {
		enqueue(levelInfo, fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("users.SetStatus", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
