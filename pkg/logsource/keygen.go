package logsource

import (
	"crypto/rand"
	"sync"
	"time"

	"chatsync/internal/models"
)

// pushAlphabet is ASCII-ordered so generated keys sort lexicographically
// in generation order.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// KeyGenerator mints 20-character message keys: 8 characters of
// millisecond timestamp followed by 12 characters of randomness. Keys
// minted within the same millisecond are made strictly increasing by
// incrementing the random tail.
type KeyGenerator struct {
	mu       sync.Mutex
	lastMs   int64
	lastRand [12]int
	now      func() time.Time
}

// NewKeyGenerator creates a key generator using wall-clock time.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{now: time.Now}
}

// NewKey returns a fresh key that sorts after every key previously
// minted by this generator.
func (g *KeyGenerator) NewKey() models.MessageKey {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms == g.lastMs {
		// Same millisecond: bump the previous random tail
		for i := 11; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] < len(pushAlphabet) {
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		var buf [12]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// Deterministic fallback keeps keys unique, just predictable
			for i := range buf {
				buf[i] = byte(ms >> (uint(i) * 5))
			}
		}
		for i := range g.lastRand {
			g.lastRand[i] = int(buf[i]) % len(pushAlphabet)
		}
		g.lastMs = ms
	}

	var key [20]byte
	v := ms
	for i := 7; i >= 0; i-- {
		key[i] = pushAlphabet[v%int64(len(pushAlphabet))]
		v /= int64(len(pushAlphabet))
	}
	for i, r := range g.lastRand {
		key[8+i] = pushAlphabet[r]
	}

	return models.MessageKey(key[:])
}
