package routes

import (
	"context"
	"strings"

	"github.com/modulrcloud/chain-tracker/cache_engine"
	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/valyala/fasthttp"
)

type paginationInfo struct {
	NextBlock uint64 `json:"nextBlock"`
	HasMore   bool   `json:"hasMore"`
}

type transactionsResponse struct {
	Transactions []structures.Transaction `json:"transactions"`
	Pagination   paginationInfo           `json:"pagination"`
}

type latestTransactionResponse struct {
	Transaction *structures.Transaction `json:"transaction"`
}

type addressTransactionsResponse struct {
	Address      string                   `json:"address"`
	Transactions []structures.Transaction `json:"transactions"`
	TotalFound   int                      `json:"total_found"`
	Returned     int                      `json:"returned"`
}

type largeValueResponse struct {
	MinValueWei  string                   `json:"min_value_wei"`
	Transactions []structures.Transaction `json:"transactions"`
	TotalFound   int                      `json:"total_found"`
	Returned     int                      `json:"returned"`
}

type latestBlocksTransactionsResponse struct {
	Blocks       []uint64                 `json:"blocks"`
	Transactions []structures.Transaction `json:"transactions"`
	Returned     int                      `json:"returned"`
}

// GetTransactions serves /api/transactions?fromBlock&toBlock&limit&getAllFromBlock.
// limit=all behaves like getAllFromBlock.
func GetTransactions(ctx *fasthttp.RequestCtx) {

	fromBlock, _, err := helpers.QueryBlock(ctx, "fromBlock")
	if err != nil {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid fromBlock")
		return
	}

	opts := cache_engine.ListOptions{
		FromBlock: fromBlock,
		All:       helpers.QueryBool(ctx, "getAllFromBlock"),
	}

	toBlock, hasTo, err := helpers.QueryBlock(ctx, "toBlock")
	if err != nil {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid toBlock")
		return
	}
	if hasTo {
		opts.ToBlock = &toBlock
	}

	if strings.EqualFold(string(ctx.QueryArgs().Peek("limit")), "all") {
		opts.All = true
	} else {
		limit, ok := helpers.QueryInt(ctx, "limit")
		if !ok {
			helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}

	page := handlers.Engine().ListTransactions(context.Background(), opts)

	helpers.WriteSuccessCached(ctx, transactionsResponse{
		Transactions: page.Transactions,
		Pagination: paginationInfo{
			NextBlock: page.NextBlock,
			HasMore:   page.HasMore,
		},
	})
}

func GetLatestTransaction(ctx *fasthttp.RequestCtx) {

	latest := handlers.Engine().LatestTransaction(context.Background())

	helpers.WriteSuccess(ctx, latestTransactionResponse{Transaction: latest})
}

func GetTransactionsByAddress(ctx *fasthttp.RequestCtx) {

	address, _ := ctx.UserValue("address").(string)

	if address == "" {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Address is required")
		return
	}

	limit, ok := helpers.QueryInt(ctx, "limit")
	if !ok {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid limit")
		return
	}

	txs, total := handlers.Engine().TransactionsByAddress(context.Background(), address, limit)

	helpers.WriteSuccessCached(ctx, addressTransactionsResponse{
		Address:      address,
		Transactions: txs,
		TotalFound:   total,
		Returned:     len(txs),
	})
}

func GetLargeValueTransactions(ctx *fasthttp.RequestCtx) {

	rawMin := string(ctx.QueryArgs().Peek("min_value"))
	if rawMin == "" {
		rawMin = constants.LargeValueDefaultMin
	}

	minValue, err := structures.ParseUint256(rawMin)
	if err != nil {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid min_value")
		return
	}

	limit, ok := helpers.QueryInt(ctx, "limit")
	if !ok {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid limit")
		return
	}

	txs, total := handlers.Engine().LargeValueTransactions(context.Background(), minValue, limit)

	helpers.WriteSuccessCached(ctx, largeValueResponse{
		MinValueWei:  minValue.Dec(),
		Transactions: txs,
		TotalFound:   total,
		Returned:     len(txs),
	})
}

// GetLatestBlocksTransactions serves /api/transactions/latest?blocks=N.
func GetLatestBlocksTransactions(ctx *fasthttp.RequestCtx) {

	blocks, ok := helpers.QueryInt(ctx, "blocks")
	if !ok {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid blocks")
		return
	}

	txs, numbers := handlers.Engine().LatestBlocksTransactions(context.Background(), blocks)

	helpers.WriteSuccessCached(ctx, latestBlocksTransactionsResponse{
		Blocks:       numbers,
		Transactions: txs,
		Returned:     len(txs),
	})
}
