package handlers

import (
	"sync"

	"github.com/modulrcloud/chain-tracker/cache_engine"
	"github.com/modulrcloud/chain-tracker/databases"
)

// FeedCounter reports how many websocket subscribers are attached.
type FeedCounter interface {
	Count() int
}

// TRACKER holds the process-wide services the HTTP routes read from. It is
// filled once at startup, before any listener starts.
var TRACKER = struct {
	RWMutex sync.RWMutex
	Engine  *cache_engine.Engine
	History *databases.MetricsHistory
	Feed    FeedCounter
}{}

func SetTracker(engine *cache_engine.Engine, history *databases.MetricsHistory, feed FeedCounter) {

	TRACKER.RWMutex.Lock()
	defer TRACKER.RWMutex.Unlock()

	TRACKER.Engine = engine
	TRACKER.History = history
	TRACKER.Feed = feed
}

func Engine() *cache_engine.Engine {

	TRACKER.RWMutex.RLock()
	defer TRACKER.RWMutex.RUnlock()

	return TRACKER.Engine
}

func History() *databases.MetricsHistory {

	TRACKER.RWMutex.RLock()
	defer TRACKER.RWMutex.RUnlock()

	return TRACKER.History
}

// FeedClients is 0 when no feed is running.
func FeedClients() int {

	TRACKER.RWMutex.RLock()
	feed := TRACKER.Feed
	TRACKER.RWMutex.RUnlock()

	if feed == nil {
		return 0
	}

	return feed.Count()
}
