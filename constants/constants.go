package constants

import "time"

// Bounded in-memory caches.
const (
	BlockCacheMax       = 50
	TransactionCacheMax = 500
)

// Engine defaults. All of them can be overridden from the config file.
const (
	DefaultRefreshLookback     = 20
	DefaultTpsLookback         = 100
	DefaultMetricsStaleness    = 10 * time.Second
	DefaultSourceTimeout       = 10 * time.Second
	DefaultEstimatedValidators = 100
	DefaultMetricsHistorySize  = 360
)

// Upstream query caps.
const (
	RefreshMaxTransactions = 1000
	TpsMaxTransactions     = 10_000
	SearchMaxTransactions  = 1000
	SearchDefaultLookback  = 100
	SearchMaxRange         = 10_000
)

// Metrics windows and derived-stat horizons.
const (
	TpsWindow10s       = 10 * time.Second
	TpsWindow30s       = 30 * time.Second
	TpsWindow60s       = 60 * time.Second
	TpsWindow5min      = 300 * time.Second
	BlockTimeSample    = 10
	GasPriceSample     = 50
	BlocksPerMinuteAge = 300 * time.Second
	HighActivityTps    = 5
	MediumActivityTps  = 1
	WeiPerGwei         = 1e9
)

// Query limits: default and hard maximum per endpoint.
const (
	TxListDefaultLimit       = 10
	TxListMaxLimit           = 1000
	ByAddressDefaultLimit    = 50
	ByAddressMaxLimit        = 500
	LargeValueDefaultLimit   = 20
	LargeValueMaxLimit       = 100
	LargeValueDefaultMin     = "1000000000000000000"
	RecentBlocksDefaultLimit = 10
	RecentBlocksMaxLimit     = 50
	LatestBlocksDefault      = 3
	LatestBlocksMax          = 10
	HistoryDefaultLimit      = 60
)

const (
	SourceHypersync = "hypersync"
	SourceJsonRpc   = "jsonrpc"

	DefaultHypersyncUrl = "https://monad-testnet.hypersync.xyz"
	DefaultPort         = 3001
	DefaultWsPort       = 3002
)

// Websocket feed message types.
const (
	WsFeedTypeRefresh = "refresh"
	WsFeedTypeHello   = "hello"
)
