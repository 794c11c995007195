package mcpsession

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// stderrTailBytes bounds how much of a stdio server's stderr is kept.
const stderrTailBytes = 4096

// stderrWait is how long a failed dial waits for the child's stderr to close.
const stderrWait = 500 * time.Millisecond

// stderrTail is a bounded buffer holding the most recent stderr output of a
// stdio server. Old bytes are dropped once max is exceeded.
type stderrTail struct {
	mu      sync.Mutex
	data    []byte
	max     int
	dropped bool

	done chan struct{}
	once sync.Once
}

func newStderrTail(maxBytes int) *stderrTail {
	return &stderrTail{
		data: make([]byte, 0, min(maxBytes, 1024)),
		max:  maxBytes,
		done: make(chan struct{}),
	}
}

// Write implements io.Writer. Thread-safe.
func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = append(t.data, p...)
	if len(t.data) > t.max {
		t.data = t.data[len(t.data)-t.max:]
		t.dropped = true
	}
	return len(p), nil
}

// String returns the buffered output, prefixed with "..." when older output
// was dropped.
func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := strings.TrimSpace(string(t.data))
	if t.dropped && s != "" {
		return "..." + s
	}
	return s
}

// finish marks the stream as fully read.
func (t *stderrTail) finish() {
	t.once.Do(func() { close(t.done) })
}

// annotate appends the captured stderr to err. It waits briefly for the
// stream to end so the child's last words are included.
func (t *stderrTail) annotate(err error) error {
	select {
	case <-t.done:
	case <-time.After(stderrWait):
	}

	out := t.String()
	if out == "" {
		return err
	}
	return fmt.Errorf("%w (stderr: %s)", err, strings.ReplaceAll(out, "\n", " | "))
}
