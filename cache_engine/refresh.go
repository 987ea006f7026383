package cache_engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"
)

const (
	refreshFlightKey = "refresh"
	errorLogInterval = 5 * time.Second
)

// Refresh pulls the trailing RefreshLookback blocks, merges them into the
// caches and recomputes metrics. Callers arriving while a refresh is running
// share its outcome instead of starting another upstream round trip.
//
// On error the caches keep their previous contents.
func (e *Engine) Refresh(ctx context.Context) error {

	_, err, _ := e.flight.Do(refreshFlightKey, func() (any, error) {
		return nil, e.refresh(ctx)
	})

	return err
}

// refreshForRead is used by query operations: a failed refresh is logged and
// the request is served from whatever the caches hold.
func (e *Engine) refreshForRead(ctx context.Context) {
	_ = e.Refresh(ctx)
}

func (e *Engine) refresh(ctx context.Context) error {

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	update, err := e.pullLatest(ctx)

	if err != nil {

		e.collector.ObserveRefresh(false)

		utils.LogWithTimeThrottled("refresh", errorLogInterval, fmt.Sprintf("Error updating transaction cache: %v", err), utils.RED_COLOR)

		return err

	}

	e.collector.ObserveRefresh(true)

	if err := e.recompute(ctx); err != nil {
		utils.LogWithTimeThrottled("metrics", errorLogInterval, fmt.Sprintf("Error calculating metrics: %v", err), utils.RED_COLOR)
	}

	if e.listener != nil && len(update.Transactions) > 0 {
		update.Metrics = e.Metrics()
		e.listener.OnRefresh(update)
	}

	return nil
}

// pullLatest fetches [max(0, H-lookback), H+1) and publishes the merged caches.
// Nothing is published unless the whole batch was fetched.
func (e *Engine) pullLatest(ctx context.Context) (structures.RefreshUpdate, error) {

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	height, err := e.source.Height(ctx)
	if err != nil {
		return structures.RefreshUpdate{}, fmt.Errorf("get chain height: %w", err)
	}

	from := lookbackStart(height, e.params.RefreshLookback)

	batch, err := e.source.Fetch(ctx, datasource.Query{
		FromBlock:           from,
		ToBlock:             height + 1,
		IncludeBlocks:       true,
		IncludeTransactions: true,
		MaxBlocks:           int(height + 1 - from),
		MaxTransactions:     constants.RefreshMaxTransactions,
		Receipts:            true,
	})
	if err != nil {
		return structures.RefreshUpdate{}, fmt.Errorf("fetch blocks [%d, %d): %w", from, height+1, err)
	}

	cachedBlocks, cachedTxs := e.cached()

	blocks, freshBlocks := mergeBlocks(cachedBlocks, batch.Blocks, batch.Transactions, constants.BlockCacheMax)

	txs, freshTxs, fallbacks := mergeTransactions(cachedTxs, batch.Transactions, batch.Blocks, blocks, e.now(), constants.TransactionCacheMax)

	e.mu.Lock()
	e.blocks = blocks
	e.transactions = txs
	if height > e.lastHeight {
		e.lastHeight = height
	}
	e.timestampFallbacks += uint64(fallbacks)
	e.mu.Unlock()

	e.collector.SetCacheSizes(len(blocks), len(txs))

	if fallbacks > 0 {

		e.collector.AddTimestampFallbacks(fallbacks)

		utils.LogWithTimeThrottled("timestamp-fallback", errorLogInterval, fmt.Sprintf("%d transactions had no block timestamp, wall-clock time used", fallbacks), utils.YELLOW_COLOR)

	}

	return structures.RefreshUpdate{
		BlockHeight:  height,
		Transactions: freshTxs,
		Blocks:       freshBlocks,
	}, nil
}

// mergeBlocks derives fields for unseen blocks, puts them in front of the
// cache, orders by number descending and keeps the newest `limit`.
// A block number already cached is never replaced.
func mergeBlocks(cached, batch []structures.Block, batchTxs []structures.Transaction, limit int) (merged, fresh []structures.Block) {

	known := make(map[uint64]struct{}, len(cached)+len(batch))

	for i := range cached {
		known[cached[i].Number] = struct{}{}
	}

	counts := structures.CountTransactionsByBlock(batchTxs)

	for _, block := range batch {

		if _, seen := known[block.Number]; seen {
			continue
		}

		known[block.Number] = struct{}{}

		block.DeriveFields(counts[block.Number])

		fresh = append(fresh, block)

	}

	merged = make([]structures.Block, 0, len(fresh)+len(cached))
	merged = append(merged, fresh...)
	merged = append(merged, cached...)

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Number > merged[j].Number })

	if len(merged) > limit {
		merged = merged[:limit]
	}

	return merged, fresh
}

// mergeTransactions prepends transactions whose hash is not cached yet, in
// batch order, and keeps the first `limit`. Existing entries are never moved
// or updated. The returned fallback count is how many timestamps had to come
// from the wall clock.
func mergeTransactions(cached, batch []structures.Transaction, batchBlocks, blockCache []structures.Block, now time.Time, limit int) (merged, fresh []structures.Transaction, fallbacks int) {

	batchTimestamps := make(map[uint64]int64, len(batchBlocks))

	for i := range batchBlocks {
		if _, ok := batchTimestamps[batchBlocks[i].Number]; !ok {
			batchTimestamps[batchBlocks[i].Number] = batchBlocks[i].Timestamp
		}
	}

	known := make(map[string]struct{}, len(cached)+len(batch))

	for i := range cached {
		known[cached[i].Hash] = struct{}{}
	}

	for _, tx := range batch {

		// Without a hash there is no dedup key.
		if tx.Hash == "" {
			continue
		}

		if _, seen := known[tx.Hash]; seen {
			continue
		}

		known[tx.Hash] = struct{}{}

		if timestamp, ok := resolveTimestamp(tx.BlockNumber, batchTimestamps, blockCache); ok {
			tx.Timestamp = timestamp
		} else {
			tx.Timestamp = now.Unix()
			tx.TimestampEstimated = true
			fallbacks++
		}

		tx.DeriveFields()

		fresh = append(fresh, tx)

	}

	if len(fresh) > limit {
		fresh = fresh[:limit]
	}

	merged = make([]structures.Transaction, 0, min(len(fresh)+len(cached), limit))
	merged = append(merged, fresh...)

	for i := 0; i < len(cached) && len(merged) < limit; i++ {
		merged = append(merged, cached[i])
	}

	return merged, fresh, fallbacks
}

// resolveTimestamp prefers the block from the current batch and falls back to
// the block cache.
func resolveTimestamp(blockNumber uint64, batchTimestamps map[uint64]int64, blockCache []structures.Block) (int64, bool) {

	if timestamp, ok := batchTimestamps[blockNumber]; ok {
		return timestamp, true
	}

	for i := range blockCache {
		if blockCache[i].Number == blockNumber {
			return blockCache[i].Timestamp, true
		}
	}

	return 0, false
}
