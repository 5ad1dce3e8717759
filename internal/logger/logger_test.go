package logger

import (
	"bytes"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func capture(t *testing.T) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	log.SetOutput(out)
	t.Cleanup(func() {
		Flush(time.Second)
		log.SetOutput(os.Stderr)
		SetPrefix("")
		SetLevel("info")
	})
	return out
}

func TestLevels(t *testing.T) {
	out := capture(t)
	SetPrefix("test")
	SetLevel("warn")

	Infof("hidden %d", 1)
	Debugf("hidden too")
	Warnf("shown %s", "warn")
	Errorf("shown %s", "error")
	Flush(time.Second)

	s := out.String()
	require.NotContains(t, s, "hidden")
	require.Contains(t, s, "[test] WARN: shown warn")
	require.Contains(t, s, "[test] ERROR: shown error")
}

func TestLogDurationSlowOnly(t *testing.T) {
	out := capture(t)
	SetLevel("info")

	LogDuration("fast.Op", time.Now())
	LogDuration("slow.Op", time.Now().Add(-time.Second))
	Flush(time.Second)

	s := out.String()
	require.NotContains(t, s, "fast.Op")
	require.Contains(t, s, "fn=slow.Op")

	SetLevel("debug")
	DeferLogDuration("fast.Op", time.Now())()
	Flush(time.Second)
	require.Contains(t, out.String(), "fn=fast.Op")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, levelDebug, parseLevel("TRACE"))
	require.Equal(t, levelWarn, parseLevel(" warning "))
	require.Equal(t, levelError, parseLevel("error"))
	require.Equal(t, levelInfo, parseLevel("whatever"))
}
