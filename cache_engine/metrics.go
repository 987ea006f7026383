package cache_engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"
)

// RecomputeMetrics rebuilds the snapshot from the caches plus a fresh TPS
// window. On error the previous snapshot stays in place.
func (e *Engine) RecomputeMetrics(ctx context.Context) error {

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	if err := e.recompute(ctx); err != nil {

		utils.LogWithTimeThrottled("metrics", errorLogInterval, fmt.Sprintf("Error calculating metrics: %v", err), utils.RED_COLOR)

		return err

	}

	return nil
}

// MetricsIfStale refreshes (and therefore recomputes) only when the snapshot is
// older than MetricsStaleness, then returns the current snapshot.
func (e *Engine) MetricsIfStale(ctx context.Context) structures.Metrics {

	if e.now().Sub(e.LastMetricsUpdate()) > e.params.MetricsStaleness {
		_ = e.Refresh(ctx)
	}

	return e.Metrics()
}

// recompute must be called with writerMu held.
func (e *Engine) recompute(ctx context.Context) error {

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	height, err := e.source.Height(ctx)
	if err != nil {
		return fmt.Errorf("get chain height: %w", err)
	}

	tpsBlocks, err := e.fetchTpsBlocks(ctx, height)
	if err != nil {
		return err
	}

	blocks, txs := e.cached()

	now := e.now()

	metrics := ComputeMetrics(tpsBlocks, blocks, txs, now)
	metrics.BlockHeight = height
	metrics.Validators = e.params.EstimatedValidators

	e.mu.Lock()
	e.metrics = metrics
	e.lastMetricsUpdate = now
	e.mu.Unlock()

	e.collector.SetMetrics(metrics)

	if e.recorder != nil {
		if err := e.recorder.Record(now, metrics); err != nil {
			utils.LogWithTime(fmt.Sprintf("Failed to record metrics history: %v", err), utils.YELLOW_COLOR)
		}
	}

	return nil
}

// fetchTpsBlocks pulls the last TpsLookback blocks with per-block counts taken
// from the transactions of the same batch.
func (e *Engine) fetchTpsBlocks(ctx context.Context, height uint64) ([]structures.Block, error) {

	from := lookbackStart(height, e.params.TpsLookback)

	batch, err := e.source.Fetch(ctx, datasource.Query{
		FromBlock:           from,
		ToBlock:             height + 1,
		IncludeBlocks:       true,
		IncludeTransactions: true,
		MaxBlocks:           int(height + 1 - from),
		MaxTransactions:     constants.TpsMaxTransactions,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch tps window [%d, %d): %w", from, height+1, err)
	}

	counts := structures.CountTransactionsByBlock(batch.Transactions)

	blocks := make([]structures.Block, len(batch.Blocks))

	for i, block := range batch.Blocks {
		block.DeriveFields(counts[block.Number])
		blocks[i] = block
	}

	return blocks, nil
}

// ComputeMetrics derives every snapshot field except BlockHeight and
// Validators. cachedBlocks must be newest first, cachedTxs in cache order.
func ComputeMetrics(tpsBlocks, cachedBlocks []structures.Block, cachedTxs []structures.Transaction, now time.Time) structures.Metrics {

	tps10s := ComputeIntervalTPS(tpsBlocks, now, constants.TpsWindow10s)
	tps30s := ComputeIntervalTPS(tpsBlocks, now, constants.TpsWindow30s)
	tps60s := ComputeIntervalTPS(tpsBlocks, now, constants.TpsWindow60s)
	tps5min := ComputeIntervalTPS(tpsBlocks, now, constants.TpsWindow5min)

	tps := WeightedTPS(tps10s, tps30s, tps60s, tps5min)

	gasPrice := AverageGasPrice(cachedTxs, constants.GasPriceSample)

	return structures.Metrics{
		Tps:             utils.RoundTo(tps, 2),
		Tps10s:          utils.RoundTo(tps10s, 2),
		Tps30s:          utils.RoundTo(tps30s, 2),
		Tps60s:          utils.RoundTo(tps60s, 2),
		Tps5min:         utils.RoundTo(tps5min, 2),
		BlocksPerMinute: utils.RoundTo(BlocksPerMinute(cachedBlocks, now), 2),
		AvgBlockTime:    utils.RoundTo(AverageBlockTime(cachedBlocks, constants.BlockTimeSample), 2),
		AvgGasPrice:     uint64(math.Round(gasPrice)),
		AvgGasPriceGwei: utils.RoundTo(gasPrice/constants.WeiPerGwei, 2),
		NetworkActivity: NetworkActivity(tps),
	}
}

// ComputeIntervalTPS sums the transaction counts of blocks newer than
// now-window and divides by the time actually covered by those blocks
// (newest minus oldest timestamp). Fewer than two blocks or a non-positive
// span give 0.
func ComputeIntervalTPS(blocks []structures.Block, now time.Time, window time.Duration) float64 {

	cutoff := float64(now.UnixMilli())/1000 - window.Seconds()

	var (
		qualifying     int
		total          int
		oldest, newest int64
	)

	for i := range blocks {

		if float64(blocks[i].Timestamp) <= cutoff {
			continue
		}

		if qualifying == 0 || blocks[i].Timestamp < oldest {
			oldest = blocks[i].Timestamp
		}
		if qualifying == 0 || blocks[i].Timestamp > newest {
			newest = blocks[i].Timestamp
		}

		total += blocks[i].TransactionCount
		qualifying++

	}

	if qualifying < 2 {
		return 0
	}

	span := newest - oldest

	if span <= 0 {
		return 0
	}

	return float64(total) / float64(span)
}

// WeightedTPS blends the windows, starting from the shortest one with data.
func WeightedTPS(tps10s, tps30s, tps60s, tps5min float64) float64 {

	switch {

	case tps10s > 0:
		return tps10s*0.5 + tps30s*0.25 + tps60s*0.15 + tps5min*0.1

	case tps30s > 0:
		return tps30s*0.6 + tps60s*0.25 + tps5min*0.15

	case tps60s > 0:
		return tps60s*0.7 + tps5min*0.3

	default:
		return tps5min

	}

}

// BlocksPerMinute counts blocks from the last five minutes.
func BlocksPerMinute(blocks []structures.Block, now time.Time) float64 {

	cutoff := float64(now.UnixMilli())/1000 - constants.BlocksPerMinuteAge.Seconds()

	recent := 0

	for i := range blocks {
		if float64(blocks[i].Timestamp) > cutoff {
			recent++
		}
	}

	return float64(recent) / constants.BlocksPerMinuteAge.Minutes()
}

// AverageBlockTime is the mean positive delta between consecutive entries of
// the first `sample` blocks (newest first). Non-positive deltas are skipped;
// with no positive delta the result is 0.
func AverageBlockTime(blocks []structures.Block, sample int) float64 {

	n := min(len(blocks), sample)

	var (
		sum    int64
		deltas int
	)

	for i := 1; i < n; i++ {

		delta := blocks[i-1].Timestamp - blocks[i].Timestamp

		if delta > 0 {
			sum += delta
			deltas++
		}

	}

	if deltas == 0 {
		return 0
	}

	return float64(sum) / float64(deltas)
}

// AverageGasPrice averages positive gas prices over the first `sample`
// transactions of the cache, in wei.
func AverageGasPrice(txs []structures.Transaction, sample int) float64 {

	n := min(len(txs), sample)

	var (
		sum   float64
		count int
	)

	for i := 0; i < n; i++ {
		if txs[i].GasPrice > 0 {
			sum += float64(txs[i].GasPrice)
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}

func NetworkActivity(tps float64) string {

	switch {

	case tps > constants.HighActivityTps:
		return structures.ActivityHigh

	case tps > constants.MediumActivityTps:
		return structures.ActivityMedium

	default:
		return structures.ActivityLow

	}

}
