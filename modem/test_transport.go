package modem

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// TestTransport is a test helper that simulates a LoRa-E5 module. Each
// complete command line written to it is answered with the scripted reply for
// that command. Reads without pending data return (0, nil) after a short
// pause, like a serial port with a read timeout would.
type TestTransport struct {
	mu      sync.Mutex
	replies map[string]string
	handler func(cmd string) (string, bool)
	line    strings.Builder
	pending []byte
	writes  []string
	// overlaps counts commands written while the reply to a previous command
	// was still unread
	overlaps int
	closed   bool

	// ChunkSize limits how many bytes a single Read returns. Zero means the
	// whole pending reply.
	ChunkSize int
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{replies: make(map[string]string)}
}

// Reply scripts the answer to cmd.
func (t *TestTransport) Reply(cmd, response string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = response
	return t
}

// Handle installs a fallback for commands without a scripted reply. The
// handler reports false to leave the command unanswered.
func (t *TestTransport) Handle(fn func(cmd string) (string, bool)) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
	return t
}

// Dial makes the transport usable as a Dialer.
func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	return t, ctx.Err()
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	for _, b := range p {
		if b != '\n' {
			t.line.WriteByte(b)
			continue
		}
		cmd := t.line.String()
		t.line.Reset()
		if len(t.pending) > 0 {
			t.overlaps++
		}
		t.writes = append(t.writes, cmd)
		if reply, ok := t.replies[cmd]; ok {
			t.pending = append(t.pending, reply...)
		} else if t.handler != nil {
			if reply, ok := t.handler(cmd); ok {
				t.pending = append(t.pending, reply...)
			}
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if len(t.pending) == 0 {
		t.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer t.mu.Unlock()

	max := len(p)
	if t.ChunkSize > 0 && t.ChunkSize < max {
		max = t.ChunkSize
	}
	n = copy(p[:max], t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Writes returns the command lines written so far, without terminators.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Overlaps returns how many commands were written before the previous reply
// had been read completely.
func (t *TestTransport) Overlaps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlaps
}
