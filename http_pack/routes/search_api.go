package routes

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modulrcloud/chain-tracker/cache_engine"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/valyala/fasthttp"
)

type searchQueryParams struct {
	FromBlock uint64 `json:"fromBlock"`
	ToBlock   uint64 `json:"toBlock"`
	Address   string `json:"address,omitempty"`
	MinValue  string `json:"minValue,omitempty"`
}

type advancedSearchResponse struct {
	Transactions []structures.Transaction `json:"transactions"`
	QueryParams  searchQueryParams        `json:"query_params"`
	TotalResults int                      `json:"total_results"`
	Truncated    bool                     `json:"truncated"`
}

// AdvancedSearch serves POST /api/search/advanced. The query goes straight to
// the data source, the caches are not consulted. Ranges wider than
// SearchMaxRange blocks get 400. total_results counts what was returned; when
// a source cap cut the scan short, truncated is true and more matches may exist.
func AdvancedSearch(ctx *fasthttp.RequestCtx) {

	var req structures.AdvancedSearchRequest

	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	result, err := handlers.Engine().AdvancedSearch(context.Background(), req)

	switch {

	case errors.Is(err, cache_engine.ErrInvalidSearchRange):
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, err.Error())
		return

	case err != nil:
		helpers.WriteErr(ctx, fasthttp.StatusBadGateway, err.Error())
		return

	}

	helpers.WriteSuccess(ctx, advancedSearchResponse{
		Transactions: result.Transactions,
		QueryParams: searchQueryParams{
			FromBlock: result.FromBlock,
			ToBlock:   result.ToBlock,
			Address:   result.Address,
			MinValue:  result.MinValue,
		},
		TotalResults: len(result.Transactions),
		Truncated:    result.Truncated,
	})
}
