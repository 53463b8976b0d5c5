package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"loginguard/internal/model"
)

const dedupeCompactAt = 10000

// DedupeCache remembers recently processed login keys so that a redelivered
// event (Kafka rebalance, file tail restart) is scored once.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

// Seen reports whether key was recorded within ttl of now, and records it
// otherwise.
func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok && now.Sub(ts) <= ttl {
		return true
	}
	d.items[key] = now
	if len(d.items) > dedupeCompactAt {
		for k, ts := range d.items {
			if now.Sub(ts) > ttl {
				delete(d.items, k)
			}
		}
	}
	return false
}

func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func eventKey(ev model.LoginEvent) string {
	parts := []string{
		ev.UserID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.IPAddress,
		ev.DeviceInfo.DeviceKey(),
		strconv.FormatBool(ev.Success),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
