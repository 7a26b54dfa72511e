package modem

import (
	"io"
	"sync"
	"time"
)

// TestTransport is a test helper simulating a modem control line.
// Responses are queued as strings and served one byte at a time, the
// way a raw serial line delivers them; an empty queue behaves like an
// expired read timeout. Written commands are recorded for inspection.
// Exported for use in tests.
type TestTransport struct {
	mu      sync.Mutex
	pending []byte
	writes  []string
	closed  bool
}

// NewTestTransport creates an empty test transport.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// Queue appends response bytes to be served by subsequent reads.
func (t *TestTransport) Queue(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, data...)
}

// Writes returns the commands written so far.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	if len(t.pending) == 0 || len(p) == 0 {
		return 0, nil // read timeout
	}
	p[0] = t.pending[0]
	t.pending = t.pending[1:]
	return 1, nil
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	t.writes = append(t.writes, string(p))
	return len(p), nil
}

func (t *TestTransport) SetReadTimeout(time.Duration) error { return nil }

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
