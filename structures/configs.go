package structures

import "time"

type TrackerConfig struct {
	SourceKind          string `json:"SOURCE"`
	HypersyncUrl        string `json:"HYPERSYNC_URL"`
	HypersyncToken      string `json:"HYPERSYNC_BEARER_TOKEN"`
	JsonRpcUrl          string `json:"JSON_RPC_URL"`
	Interface           string `json:"INTERFACE"`
	Port                int    `json:"PORT"`
	WebSocketInterface  string `json:"WEBSOCKET_INTERFACE"`
	WebSocketPort       int    `json:"WEBSOCKET_PORT"`
	LogLevel            string `json:"LOG_LEVEL"`
	RefreshLookback     uint64 `json:"REFRESH_LOOKBACK_BLOCKS"`
	TpsLookback         uint64 `json:"TPS_LOOKBACK_BLOCKS"`
	MetricsStalenessMs  int64  `json:"METRICS_STALENESS_MS"`
	SourceTimeoutMs     int64  `json:"SOURCE_TIMEOUT_MS"`
	RefreshIntervalMs   int64  `json:"REFRESH_INTERVAL_MS"`
	EstimatedValidators int    `json:"ESTIMATED_VALIDATORS"`
	MetricsHistorySize  int    `json:"METRICS_HISTORY_SIZE"`
}

// EngineParams are the tunables of the cache and metrics engine.
type EngineParams struct {
	RefreshLookback     uint64
	TpsLookback         uint64
	MetricsStaleness    time.Duration
	SourceTimeout       time.Duration
	EstimatedValidators int
}

func (c *TrackerConfig) EngineParams() EngineParams {
	return EngineParams{
		RefreshLookback:     c.RefreshLookback,
		TpsLookback:         c.TpsLookback,
		MetricsStaleness:    time.Duration(c.MetricsStalenessMs) * time.Millisecond,
		SourceTimeout:       time.Duration(c.SourceTimeoutMs) * time.Millisecond,
		EstimatedValidators: c.EstimatedValidators,
	}
}
