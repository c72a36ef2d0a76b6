package dispatch

import (
	"strings"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// Batcher coalesces low-priority messages into digests so routine updates
// arrive as one notification instead of many. A batch flushes when it
// reaches size or when the oldest member has waited for the timeout.
type Batcher struct {
	size    int
	timeout time.Duration
	flush   func(types.Message)

	mu    sync.Mutex
	buf   []types.Message
	timer *time.Timer
}

// NewBatcher creates a batcher that hands combined messages to flush.
func NewBatcher(size int, timeout time.Duration, flush func(types.Message)) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{size: size, timeout: timeout, flush: flush}
}

// Add buffers msg, flushing when the batch fills.
func (b *Batcher) Add(msg types.Message) {
	b.mu.Lock()
	b.buf = append(b.buf, msg)
	if len(b.buf) >= b.size {
		batch := b.take()
		b.mu.Unlock()
		b.flush(combine(batch))
		return
	}
	if b.timer == nil && b.timeout > 0 {
		b.timer = time.AfterFunc(b.timeout, b.flushTimeout)
	}
	b.mu.Unlock()
}

// Flush sends any buffered messages immediately.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.take()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(combine(batch))
	}
}

// Len returns the number of buffered messages.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *Batcher) flushTimeout() {
	b.Flush()
}

// take returns and clears the buffer; caller holds b.mu.
func (b *Batcher) take() []types.Message {
	batch := b.buf
	b.buf = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

// combine folds a batch into one digest message. A single-member batch
// passes through untouched. The digest takes the highest priority present.
func combine(batch []types.Message) types.Message {
	if len(batch) == 1 {
		return batch[0]
	}

	highest := batch[0].Priority
	var sb strings.Builder
	for i, msg := range batch {
		if msg.Priority > highest {
			highest = msg.Priority
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(msg.Title)
		if msg.Content != "" {
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
		}
	}

	return types.NewMessage("Status digest", sb.String(), highest, nil,
		map[string]string{"batched": "true"})
}
