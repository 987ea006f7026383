package cache_engine

import (
	"context"
	"sort"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/holiman/uint256"
)

// Every query below refreshes first and then reads an immutable view of the
// caches, so a failed refresh still yields an answer from the previous state.

type ListOptions struct {
	FromBlock uint64
	ToBlock   *uint64
	Limit     int
	// All lifts the page size to the hard maximum.
	All bool
}

// ListTransactions pages through cached transactions with blockNumber >= FromBlock
// (and <= ToBlock when set), in cache order.
func (e *Engine) ListTransactions(ctx context.Context, opts ListOptions) structures.TransactionPage {

	e.refreshForRead(ctx)

	limit := constants.TxListMaxLimit
	if !opts.All {
		limit = utils.ClampLimit(opts.Limit, constants.TxListDefaultLimit, constants.TxListMaxLimit)
	}

	_, txs := e.cached()

	page := structures.TransactionPage{
		Transactions: []structures.Transaction{},
		NextBlock:    opts.FromBlock,
	}

	matches := 0

	for i := range txs {

		if txs[i].BlockNumber < opts.FromBlock {
			continue
		}
		if opts.ToBlock != nil && txs[i].BlockNumber > *opts.ToBlock {
			continue
		}

		matches++

		if len(page.Transactions) < limit {

			page.Transactions = append(page.Transactions, txs[i])

			if txs[i].BlockNumber+1 > page.NextBlock {
				page.NextBlock = txs[i].BlockNumber + 1
			}

		}

	}

	page.HasMore = matches > limit

	return page
}

// LatestTransaction returns the most recently inserted transaction or nil.
func (e *Engine) LatestTransaction(ctx context.Context) *structures.Transaction {

	e.refreshForRead(ctx)

	_, txs := e.cached()

	if len(txs) == 0 {
		return nil
	}

	latest := txs[0]

	return &latest
}

// TransactionsByAddress returns up to limit transactions sent or received by
// address, plus how many matched in total.
func (e *Engine) TransactionsByAddress(ctx context.Context, address string, limit int) ([]structures.Transaction, int) {

	e.refreshForRead(ctx)

	limit = utils.ClampLimit(limit, constants.ByAddressDefaultLimit, constants.ByAddressMaxLimit)

	_, txs := e.cached()

	result := []structures.Transaction{}
	total := 0

	for i := range txs {

		if !txs[i].Touches(address) {
			continue
		}

		total++

		if len(result) < limit {
			result = append(result, txs[i])
		}

	}

	return result, total
}

// LargeValueTransactions returns transactions whose value is at least minValue,
// largest first, plus the number of matches before the limit. A nil minValue
// means 1 ether.
func (e *Engine) LargeValueTransactions(ctx context.Context, minValue *uint256.Int, limit int) ([]structures.Transaction, int) {

	e.refreshForRead(ctx)

	if minValue == nil {
		minValue = uint256.MustFromDecimal(constants.LargeValueDefaultMin)
	}

	limit = utils.ClampLimit(limit, constants.LargeValueDefaultLimit, constants.LargeValueMaxLimit)

	_, txs := e.cached()

	type valued struct {
		tx    structures.Transaction
		value *uint256.Int
	}

	var matches []valued

	for i := range txs {

		value := txs[i].ValueInt()

		if value.Lt(minValue) {
			continue
		}

		matches = append(matches, valued{tx: txs[i], value: value})

	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].value.Gt(matches[j].value) })

	result := make([]structures.Transaction, 0, min(len(matches), limit))

	for i := 0; i < len(matches) && i < limit; i++ {
		result = append(result, matches[i].tx)
	}

	return result, len(matches)
}

// RecentBlocks returns the newest cached blocks.
func (e *Engine) RecentBlocks(ctx context.Context, limit int) []structures.Block {

	e.refreshForRead(ctx)

	limit = utils.ClampLimit(limit, constants.RecentBlocksDefaultLimit, constants.RecentBlocksMaxLimit)

	blocks, _ := e.cached()

	result := make([]structures.Block, min(len(blocks), limit))
	copy(result, blocks)

	return result
}

// LatestBlocksTransactions collects the transactions of the n highest distinct
// block numbers present in the transaction cache, ordered by (block, index)
// descending. It also returns the block numbers it picked.
func (e *Engine) LatestBlocksTransactions(ctx context.Context, n int) ([]structures.Transaction, []uint64) {

	e.refreshForRead(ctx)

	n = utils.ClampLimit(n, constants.LatestBlocksDefault, constants.LatestBlocksMax)

	_, txs := e.cached()

	return latestBlocksTransactions(txs, n)
}

func latestBlocksTransactions(txs []structures.Transaction, n int) ([]structures.Transaction, []uint64) {

	distinct := make(map[uint64]struct{})

	for i := range txs {
		distinct[txs[i].BlockNumber] = struct{}{}
	}

	numbers := make([]uint64, 0, len(distinct))
	for number := range distinct {
		numbers = append(numbers, number)
	}

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] > numbers[j] })

	if len(numbers) > n {
		numbers = numbers[:n]
	}

	picked := make(map[uint64]struct{}, len(numbers))
	for _, number := range numbers {
		picked[number] = struct{}{}
	}

	result := []structures.Transaction{}

	for i := range txs {
		if _, ok := picked[txs[i].BlockNumber]; ok {
			result = append(result, txs[i])
		}
	}

	sort.SliceStable(result, func(i, j int) bool {

		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber > result[j].BlockNumber
		}

		return result[i].TransactionIndex > result[j].TransactionIndex

	})

	return result, numbers
}

// Status is what /api/status reports.
type Status struct {
	Connected   bool               `json:"connected"`
	LatestBlock uint64             `json:"latestBlock"`
	CacheSize   int                `json:"cacheSize"`
	Metrics     structures.Metrics `json:"metrics"`
}

// Status asks the source for its height and recomputes metrics. Only the
// height query can fail the call; a failed recompute keeps the old snapshot.
func (e *Engine) Status(ctx context.Context) (Status, error) {

	height, err := e.ChainHeight(ctx)
	if err != nil {
		return Status{}, err
	}

	_ = e.RecomputeMetrics(ctx)

	_, txs := e.cached()

	return Status{
		Connected:   true,
		LatestBlock: height,
		CacheSize:   len(txs),
		Metrics:     e.Metrics(),
	}, nil
}

// Initialize warms the caches. Calling it again is harmless.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.Refresh(ctx)
}
