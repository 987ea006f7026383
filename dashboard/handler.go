package dashboard

import (
	"time"

	"github.com/modulrcloud/chain-tracker/globals"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack/helpers"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/valyala/fasthttp"
)

func ServeDashboard(ctx *fasthttp.RequestCtx) {
	data, err := ReadDashboardHTML()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.WriteString("failed to load dashboard")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Write(data)
}

type OverviewResponse struct {
	Version      string          `json:"version"`
	Uptime       string          `json:"uptime"`
	ServerTimeMs int64           `json:"serverTimeMs"`
	Source       string          `json:"source"`
	LastHeight   uint64          `json:"lastHeight"`
	CachedBlocks int             `json:"cachedBlocks"`
	CachedTxs    int             `json:"cachedTransactions"`
	FeedClients  int             `json:"feedClients"`
	HistorySize  int             `json:"historySize"`
	TrackerConf  TrackerConfSafe `json:"trackerConfig"`
}

// TrackerConfSafe is the configuration minus credentials.
type TrackerConfSafe struct {
	Interface         string `json:"interface"`
	Port              int    `json:"port"`
	WsInterface       string `json:"wsInterface"`
	WsPort            int    `json:"wsPort"`
	HypersyncUrl      string `json:"hypersyncUrl,omitempty"`
	RefreshLookback   uint64 `json:"refreshLookbackBlocks"`
	TpsLookback       uint64 `json:"tpsLookbackBlocks"`
	RefreshIntervalMs int64  `json:"refreshIntervalMs"`
}

func ServeOverview(ctx *fasthttp.RequestCtx) {

	cfg := &globals.CONFIGURATION
	engine := handlers.Engine()

	blocks, txs := engine.CacheSizes()

	resp := OverviewResponse{
		Version:      globals.TRACKER_VERSION,
		Uptime:       time.Since(globals.START_TIME).Truncate(time.Second).String(),
		ServerTimeMs: utils.GetUTCTimestampInMilliSeconds(),
		Source:       cfg.SourceKind,
		LastHeight:   engine.LastHeight(),
		CachedBlocks: blocks,
		CachedTxs:    txs,
		FeedClients:  handlers.FeedClients(),
		TrackerConf: TrackerConfSafe{
			Interface:         cfg.Interface,
			Port:              cfg.Port,
			WsInterface:       cfg.WebSocketInterface,
			WsPort:            cfg.WebSocketPort,
			HypersyncUrl:      cfg.HypersyncUrl,
			RefreshLookback:   engine.Params().RefreshLookback,
			TpsLookback:       engine.Params().TpsLookback,
			RefreshIntervalMs: cfg.RefreshIntervalMs,
		},
	}

	if history := handlers.History(); history != nil {
		resp.HistorySize = history.Len()
	}

	helpers.WriteSuccess(ctx, resp)
}
