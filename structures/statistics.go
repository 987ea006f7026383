package structures

// Metrics is the derived network snapshot served by /api/metrics.
// All float fields are rounded to two decimals; AvgGasPrice is whole wei.
type Metrics struct {
	Tps             float64 `json:"tps"`
	Tps10s          float64 `json:"tps_10s"`
	Tps30s          float64 `json:"tps_30s"`
	Tps60s          float64 `json:"tps_60s"`
	Tps5min         float64 `json:"tps_5min"`
	BlocksPerMinute float64 `json:"blocks_per_minute"`
	BlockHeight     uint64  `json:"block_height"`
	// Validators is an estimate, not derived from chain data.
	Validators      int     `json:"validators"`
	AvgBlockTime    float64 `json:"avg_block_time"`
	AvgGasPrice     uint64  `json:"avg_gas_price"`
	AvgGasPriceGwei float64 `json:"avg_gas_price_gwei"`
	NetworkActivity string  `json:"network_activity"`
}

const (
	ActivityHigh   = "High"
	ActivityMedium = "Medium"
	ActivityLow    = "Low"
)

// RefreshUpdate is published after a refresh that added transactions.
type RefreshUpdate struct {
	BlockHeight  uint64        `json:"blockHeight"`
	Metrics      Metrics       `json:"metrics"`
	Transactions []Transaction `json:"transactions"`
	Blocks       []Block       `json:"blocks"`
}

// MetricsHistoryEntry is one recorded snapshot.
type MetricsHistoryEntry struct {
	Timestamp int64   `json:"timestamp"`
	Metrics   Metrics `json:"metrics"`
}
