package cache_engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/structures"
)

var ErrInvalidSearchRange = errors.New("invalid block range")

// AdvancedSearch queries the source directly for a block range of at most
// SearchMaxRange blocks and never touches the caches. Missing bounds default to
// the last SearchDefaultLookback blocks below the last seen height.
//
// Filters are applied after the source's transaction and page caps, so a busy
// range can yield a partial result; Truncated reports it.
func (e *Engine) AdvancedSearch(ctx context.Context, req structures.AdvancedSearchRequest) (structures.AdvancedSearchResult, error) {

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	height := e.LastHeight()

	// Nothing refreshed yet: anchor the defaults on the live chain.
	if height == 0 && (req.FromBlock == nil || req.ToBlock == nil) {

		live, err := e.source.Height(ctx)
		if err != nil {
			return structures.AdvancedSearchResult{}, fmt.Errorf("get chain height: %w", err)
		}

		height = live

	}

	from := lookbackStart(height, constants.SearchDefaultLookback)
	if req.FromBlock != nil {
		from = uint64(*req.FromBlock)
	}

	to := height + 1
	if req.ToBlock != nil {
		to = uint64(*req.ToBlock)
	}

	if to <= from {
		return structures.AdvancedSearchResult{}, fmt.Errorf("%w: fromBlock %d must be below toBlock %d", ErrInvalidSearchRange, from, to)
	}

	if to-from > constants.SearchMaxRange {
		return structures.AdvancedSearchResult{}, fmt.Errorf("%w: %d blocks requested, at most %d allowed", ErrInvalidSearchRange, to-from, constants.SearchMaxRange)
	}

	query := datasource.Query{
		FromBlock:           from,
		ToBlock:             to,
		IncludeTransactions: true,
		Address:             req.Address,
		MaxTransactions:     constants.SearchMaxTransactions,
	}

	result := structures.AdvancedSearchResult{
		FromBlock: from,
		ToBlock:   to,
		Address:   req.Address,
	}

	if req.MinValue != nil {
		query.MinValue = &req.MinValue.Int
		result.MinValue = req.MinValue.Dec()
	}

	batch, err := e.source.Fetch(ctx, query)
	if err != nil {
		return structures.AdvancedSearchResult{}, fmt.Errorf("search blocks [%d, %d): %w", from, to, err)
	}

	blocks, _ := e.cached()

	result.Truncated = batch.Truncated

	txs := batch.Transactions
	if len(txs) > constants.SearchMaxTransactions {
		txs = txs[:constants.SearchMaxTransactions]
		result.Truncated = true
	}

	result.Transactions = make([]structures.Transaction, 0, len(txs))

	for _, tx := range txs {

		// Only cached blocks can lend a timestamp; the rest stay at 0.
		if timestamp, ok := resolveTimestamp(tx.BlockNumber, nil, blocks); ok {
			tx.Timestamp = timestamp
		}

		tx.DeriveFields()

		result.Transactions = append(result.Transactions, tx)

	}

	return result, nil
}
