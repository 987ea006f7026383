package routes

import (
	"context"
	"fmt"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/valyala/fasthttp"
)

type initResponse struct {
	Message     string `json:"message"`
	Initialized bool   `json:"initialized"`
}

// LastUpdated is unix seconds, 0 before the first recompute.
type additionalInfo struct {
	CachedTransactions int     `json:"cached_transactions"`
	CachedBlocks       int     `json:"cached_blocks"`
	LastUpdated        float64 `json:"last_updated"`
	TimestampFallbacks uint64  `json:"timestamp_fallbacks"`
}

type metricsResponse struct {
	Metrics        structures.Metrics `json:"metrics"`
	AdditionalInfo additionalInfo     `json:"additional_info"`
}

type metricsHistoryResponse struct {
	History  []structures.MetricsHistoryEntry `json:"history"`
	Returned int                              `json:"returned"`
}

// Init warms the caches. A failed warm-up is logged by the engine and the
// call still succeeds; the next read retries.
func Init(ctx *fasthttp.RequestCtx) {

	err := handlers.Engine().Initialize(context.Background())

	helpers.WriteSuccess(ctx, initResponse{Message: "Client initialized", Initialized: err == nil})
}

func GetStatus(ctx *fasthttp.RequestCtx) {

	status, err := handlers.Engine().Status(context.Background())
	if err != nil {
		helpers.WriteErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	helpers.WriteSuccess(ctx, status)
}

func GetMetrics(ctx *fasthttp.RequestCtx) {

	engine := handlers.Engine()

	metrics := engine.MetricsIfStale(context.Background())

	blocks, txs := engine.CacheSizes()

	var lastUpdated float64
	if at := engine.LastMetricsUpdate(); !at.IsZero() {
		lastUpdated = utils.RoundTo(float64(at.UnixMilli())/1000, 3)
	}

	helpers.WriteSuccess(ctx, metricsResponse{
		Metrics: metrics,
		AdditionalInfo: additionalInfo{
			CachedTransactions: txs,
			CachedBlocks:       blocks,
			LastUpdated:        lastUpdated,
			TimestampFallbacks: engine.TimestampFallbacks(),
		},
	})
}

// GetMetricsHistory serves /api/metrics/history?limit, newest first.
func GetMetricsHistory(ctx *fasthttp.RequestCtx) {

	history := handlers.History()
	if history == nil {
		helpers.WriteErr(ctx, fasthttp.StatusServiceUnavailable, "Metrics history is disabled")
		return
	}

	limit, ok := helpers.QueryInt(ctx, "limit")
	if !ok {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid limit")
		return
	}

	maxLimit := max(history.Capacity(), constants.HistoryDefaultLimit)

	entries, err := history.Recent(utils.ClampLimit(limit, constants.HistoryDefaultLimit, maxLimit))
	if err != nil {
		helpers.WriteErr(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Failed to read metrics history: %v", err))
		return
	}

	helpers.WriteSuccessCached(ctx, metricsHistoryResponse{History: entries, Returned: len(entries)})
}
