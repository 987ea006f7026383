package routes

import (
	"context"

	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/valyala/fasthttp"
)

type recentBlocksResponse struct {
	Blocks   []structures.Block `json:"blocks"`
	Returned int                `json:"returned"`
}

func GetRecentBlocks(ctx *fasthttp.RequestCtx) {

	limit, ok := helpers.QueryInt(ctx, "limit")
	if !ok {
		helpers.WriteErr(ctx, fasthttp.StatusBadRequest, "Invalid limit")
		return
	}

	blocks := handlers.Engine().RecentBlocks(context.Background(), limit)

	helpers.WriteSuccessCached(ctx, recentBlocksResponse{Blocks: blocks, Returned: len(blocks)})
}
