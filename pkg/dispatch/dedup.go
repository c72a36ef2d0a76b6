package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// maxDedupEntries bounds the seen set so a flood of distinct messages
// cannot grow it without limit.
const maxDedupEntries = 1024

// Deduplicator suppresses repeats of the same logical message inside a TTL
// window. Identity is the (title, content, priority) triple; metadata and
// tags do not participate.
type Deduplicator struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduplicator creates a deduplicator. A zero or negative ttl disables
// suppression.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Duplicate reports whether msg was already seen inside the TTL window and
// records it otherwise.
func (d *Deduplicator) Duplicate(msg types.Message) bool {
	if d.ttl <= 0 {
		return false
	}

	key := dedupKey(msg)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune(now)

	if seenAt, ok := d.seen[key]; ok && now.Sub(seenAt) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Reset forgets every recorded message.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}

func (d *Deduplicator) prune(now time.Time) {
	for key, seenAt := range d.seen {
		if now.Sub(seenAt) >= d.ttl {
			delete(d.seen, key)
		}
	}
	// Under sustained distinct traffic the TTL prune may not be enough;
	// drop the oldest entries to stay bounded.
	for len(d.seen) >= maxDedupEntries {
		var oldestKey string
		var oldestAt time.Time
		for key, seenAt := range d.seen {
			if oldestKey == "" || seenAt.Before(oldestAt) {
				oldestKey, oldestAt = key, seenAt
			}
		}
		delete(d.seen, oldestKey)
	}
}

func dedupKey(msg types.Message) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", msg.Title, msg.Content, msg.Priority)))
	return hex.EncodeToString(sum[:])
}
