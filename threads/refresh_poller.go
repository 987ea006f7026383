package threads

import (
	"context"
	"fmt"
	"time"

	"github.com/modulrcloud/chain-tracker/utils"
)

// Refresher is the part of the engine the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshPollerThread refreshes the caches every interval until ctx is done.
// Requests still refresh on their own; the poller only keeps the live feed
// moving when nobody is asking.
func RefreshPollerThread(ctx context.Context, engine Refresher, interval time.Duration) {

	if interval <= 0 {
		return
	}

	utils.LogWithTime(fmt.Sprintf("Background refresh enabled, every %s", interval), utils.CYAN_COLOR)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {

		select {

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := engine.Refresh(ctx); err != nil {
				utils.LogWithTimeThrottled("refresh_poller", 30*time.Second, fmt.Sprintf("RefreshPoller: cycle failed (%v), serving cached data", err), utils.YELLOW_COLOR)
			}

		}

	}
}
