package http_pack

import (
	"fmt"
	"strconv"

	"github.com/modulrcloud/chain-tracker/dashboard"
	"github.com/modulrcloud/chain-tracker/globals"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/http_pack/routes"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const requestIdHeader = "X-Request-Id"

// NewRouter wires every route. gatherer backs /metrics; nil leaves it out.
func NewRouter(gatherer prometheus.Gatherer) fasthttp.RequestHandler {

	r := router.New()

	r.GET("/api/init", routes.Init)
	r.GET("/api/status", routes.GetStatus)
	r.GET("/api/metrics", routes.GetMetrics)
	r.GET("/api/metrics/history", routes.GetMetricsHistory)

	r.GET("/api/transactions", routes.GetTransactions)
	r.GET("/api/transactions/latest", routes.GetLatestBlocksTransactions)
	r.GET("/api/transactions/large-value", routes.GetLargeValueTransactions)
	r.GET("/api/transactions/by-address/{address}", routes.GetTransactionsByAddress)
	r.GET("/api/latest-transaction", routes.GetLatestTransaction)

	r.GET("/api/blocks/recent", routes.GetRecentBlocks)

	r.POST("/api/search/advanced", routes.AdvancedSearch)
	r.OPTIONS("/api/search/advanced", preflight)

	// Dashboard
	r.GET("/dashboard", dashboard.ServeDashboard)
	r.GET("/dashboard/api/overview", dashboard.ServeOverview)

	if gatherer != nil {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		helpers.WriteErr(ctx, fasthttp.StatusNotFound, "Not found")
	}

	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		helpers.WriteErr(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
	}

	r.PanicHandler = func(ctx *fasthttp.RequestCtx, recovered any) {

		utils.LogWithTime(fmt.Sprintf("Request %s %s panicked: %v", ctx.Method(), ctx.Path(), recovered), utils.RED_COLOR)

		helpers.WriteErr(ctx, fasthttp.StatusInternalServerError, fmt.Sprint(recovered))
	}

	return withRequestId(r.Handler)
}

// withRequestId echoes the caller's X-Request-Id or assigns a fresh one.
func withRequestId(next fasthttp.RequestHandler) fasthttp.RequestHandler {

	return func(ctx *fasthttp.RequestCtx) {

		id := string(ctx.Request.Header.Peek(requestIdHeader))
		if id == "" {
			id = uuid.NewString()
		}

		ctx.Response.Header.Set(requestIdHeader, id)

		next(ctx)

		utils.LogWithTime(fmt.Sprintf("[%s] %s %s -> %d", id, ctx.Method(), ctx.RequestURI(), ctx.Response.StatusCode()), utils.DEEP_GRAY)
	}
}

func preflight(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIdHeader)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func CreateHTTPServer(gatherer prometheus.Gatherer) {

	serverAddr := globals.CONFIGURATION.Interface + ":" + strconv.Itoa(globals.CONFIGURATION.Port)

	utils.LogWithTime(fmt.Sprintf("Server is starting at http://%s ...✅", serverAddr), utils.CYAN_COLOR)

	if err := fasthttp.ListenAndServe(serverAddr, NewRouter(gatherer)); err != nil {
		utils.LogWithTime(fmt.Sprintf("Error in server: %s", err), utils.RED_COLOR)
	}
}
