package utils

import (
	"fmt"
	"sync"
	"time"
)

const maxThrottledKeys = 1024

type throttledKey struct {
	last       time.Time
	suppressed int
}

var (
	throttleMu   sync.Mutex
	throttleKeys = make(map[string]*throttledKey)
)

// LogWithTimeThrottled logs at most once per `every` for a given key. The next
// line that does get through says how many were dropped in between. Returns
// whether msg was written.
func LogWithTimeThrottled(key string, every time.Duration, msg, msgColor string) bool {

	emit, suppressed := throttle(key, every, time.Now())

	if !emit {
		return false
	}

	if suppressed > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, suppressed)
	}

	LogWithTime(msg, msgColor)

	return true
}

// throttle records an attempt for key at now and reports whether it may be
// logged, plus how many attempts were swallowed since the last one that was.
func throttle(key string, every time.Duration, now time.Time) (bool, int) {

	if every <= 0 {
		return true, 0
	}

	throttleMu.Lock()
	defer throttleMu.Unlock()

	entry, ok := throttleKeys[key]

	if !ok {

		// Keys are a fixed set of call sites; hitting the cap means a caller
		// built keys from data, so start over.
		if len(throttleKeys) >= maxThrottledKeys {
			throttleKeys = make(map[string]*throttledKey)
		}

		throttleKeys[key] = &throttledKey{last: now}

		return true, 0

	}

	if now.Sub(entry.last) < every {
		entry.suppressed++
		return false, 0
	}

	suppressed := entry.suppressed

	entry.last = now
	entry.suppressed = 0

	return true, suppressed
}
