package http_pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/modulrcloud/chain-tracker/cache_engine"
	"github.com/modulrcloud/chain-tracker/databases"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const genesisTime = int64(1_700_000_000)

// stubSource serves blocks 0..height, two seconds apart.
type stubSource struct {
	mu        sync.Mutex
	height    uint64
	txs       []structures.Transaction
	heightErr error
}

func (s *stubSource) Height(ctx context.Context) (uint64, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.height, s.heightErr
}

func (s *stubSource) Fetch(ctx context.Context, query datasource.Query) (*datasource.FetchResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heightErr != nil {
		return nil, s.heightErr
	}

	result := &datasource.FetchResult{Height: s.height}

	for n := query.FromBlock; n < query.ToBlock && n <= s.height; n++ {
		if query.IncludeBlocks {
			result.Blocks = append(result.Blocks, structures.Block{
				Number:    n,
				Timestamp: genesisTime + int64(n)*2,
				Hash:      fmt.Sprintf("0xblock%d", n),
				GasUsed:   1,
				GasLimit:  2,
			})
		}
	}

	if query.IncludeTransactions {
		for i := range s.txs {
			tx := s.txs[i]
			if tx.BlockNumber >= query.FromBlock && tx.BlockNumber < query.ToBlock && query.MatchesFilters(&tx) {
				result.Transactions = append(result.Transactions, tx)
			}
		}
	}

	return result, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testTracker struct {
	source   *stubSource
	engine   *cache_engine.Engine
	history  *databases.MetricsHistory
	registry *prometheus.Registry
	handler  fasthttp.RequestHandler
}

// newTestTracker has one transaction in blocks 95..99 and two in 100..103.
// Block 103 carries the only large transfers.
func newTestTracker(t *testing.T, withTransactions bool) *testTracker {
	t.Helper()

	src := &stubSource{height: 103}

	if withTransactions {
		for block := uint64(95); block <= 103; block++ {
			perBlock := 1
			if block >= 100 {
				perBlock = 2
			}
			for i := 0; i < perBlock; i++ {
				value := "1000"
				if block == 103 {
					value = fmt.Sprintf("%d000000000000000000", i+2)
				}
				src.txs = append(src.txs, structures.Transaction{
					Hash:             fmt.Sprintf("0xtx%d_%d", block, i),
					From:             "0xAlice",
					To:               "0xBob",
					Value:            value,
					BlockNumber:      block,
					TransactionIndex: uint64(i),
					GasUsed:          21_000,
					GasPrice:         1_000_000_000,
				})
			}
		}
	}

	history, err := databases.OpenMetricsHistory(10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	registry := prometheus.NewRegistry()

	now := time.Unix(genesisTime+103*2+1, 0)

	engine := cache_engine.New(src, structures.EngineParams{},
		cache_engine.WithClock(func() time.Time { return now }),
		cache_engine.WithRecorder(history),
		cache_engine.WithCollector(telemetry.NewCollector(registry)),
	)

	handlers.SetTracker(engine, history, nil)
	t.Cleanup(func() { handlers.SetTracker(nil, nil, nil) })

	return &testTracker{
		source:   src,
		engine:   engine,
		history:  history,
		registry: registry,
		handler:  NewRouter(registry),
	}
}

func (tt *testTracker) do(method, uri string, body []byte, headers map[string]string) *fasthttp.RequestCtx {

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)

	for name, value := range headers {
		ctx.Request.Header.Set(name, value)
	}

	if body != nil {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBody(body)
	}

	tt.handler(ctx)

	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx, data any) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env), string(ctx.Response.Body()))

	if data != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}

	return env
}

func TestLatestTransactionOnEmptyCacheIsNull(t *testing.T) {

	tt := newTestTracker(t, false)

	ctx := tt.do(fasthttp.MethodGet, "/api/latest-transaction", nil, nil)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var data map[string]json.RawMessage
	env := decode(t, ctx, &data)

	assert.Equal(t, "success", env.Status)
	assert.Contains(t, data, "transaction")
	assert.Equal(t, "null", string(data["transaction"]))
	assert.Equal(t, "*", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestTransactionsPagination(t *testing.T) {

	tt := newTestTracker(t, true)

	ctx := tt.do(fasthttp.MethodGet, "/api/transactions?fromBlock=100&limit=5", nil, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var data struct {
		Transactions []structures.Transaction `json:"transactions"`
		Pagination   struct {
			NextBlock uint64 `json:"nextBlock"`
			HasMore   bool   `json:"hasMore"`
		} `json:"pagination"`
	}
	decode(t, ctx, &data)

	assert.Len(t, data.Transactions, 5)
	assert.True(t, data.Pagination.HasMore)
	assert.Equal(t, uint64(103), data.Pagination.NextBlock)

	ctx = tt.do(fasthttp.MethodGet, "/api/transactions?fromBlock=0x5f&limit=all", nil, nil)
	decode(t, ctx, &data)

	assert.Len(t, data.Transactions, 13)
	assert.False(t, data.Pagination.HasMore)

	ctx = tt.do(fasthttp.MethodGet, "/api/transactions?fromBlock=95&toBlock=99&getAllFromBlock=true", nil, nil)
	decode(t, ctx, &data)

	assert.Len(t, data.Transactions, 5)
}

func TestBadQueryArgumentsGetErrorEnvelope(t *testing.T) {

	tt := newTestTracker(t, true)

	for _, uri := range []string{
		"/api/transactions?limit=ten",
		"/api/transactions?fromBlock=-4",
		"/api/blocks/recent?limit=1.5",
		"/api/transactions/large-value?min_value=lots",
		"/api/transactions/latest?blocks=x",
	} {
		ctx := tt.do(fasthttp.MethodGet, uri, nil, nil)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), uri)

		env := decode(t, ctx, nil)
		assert.Equal(t, "error", env.Status, uri)
		assert.NotEmpty(t, env.Message, uri)
	}
}

func TestOutOfRangeLimitsAreClamped(t *testing.T) {

	tt := newTestTracker(t, true)

	var data struct {
		Blocks   []structures.Block `json:"blocks"`
		Returned int                `json:"returned"`
	}

	decode(t, tt.do(fasthttp.MethodGet, "/api/blocks/recent?limit=-5", nil, nil), &data)
	assert.Equal(t, 10, data.Returned)

	decode(t, tt.do(fasthttp.MethodGet, "/api/blocks/recent?limit=9999", nil, nil), &data)
	assert.Equal(t, 21, data.Returned)
	assert.Equal(t, uint64(103), data.Blocks[0].Number)
}

func TestUnknownRouteAndMethod(t *testing.T) {

	tt := newTestTracker(t, false)

	ctx := tt.do(fasthttp.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "error", decode(t, ctx, nil).Status)

	ctx = tt.do(fasthttp.MethodDelete, "/api/status", nil, nil)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "error", decode(t, ctx, nil).Status)
}

func TestETagRevalidation(t *testing.T) {

	tt := newTestTracker(t, true)

	first := tt.do(fasthttp.MethodGet, "/api/blocks/recent?limit=3", nil, nil)
	require.Equal(t, fasthttp.StatusOK, first.Response.StatusCode())

	etag := string(first.Response.Header.Peek(fasthttp.HeaderETag))
	require.NotEmpty(t, etag)

	second := tt.do(fasthttp.MethodGet, "/api/blocks/recent?limit=3", nil, map[string]string{fasthttp.HeaderIfNoneMatch: etag})
	assert.Equal(t, fasthttp.StatusNotModified, second.Response.StatusCode())
	assert.Empty(t, second.Response.Body())

	other := tt.do(fasthttp.MethodGet, "/api/blocks/recent?limit=4", nil, map[string]string{fasthttp.HeaderIfNoneMatch: etag})
	assert.Equal(t, fasthttp.StatusOK, other.Response.StatusCode())
}

func TestRequestId(t *testing.T) {

	tt := newTestTracker(t, false)

	ctx := tt.do(fasthttp.MethodGet, "/api/metrics", nil, map[string]string{requestIdHeader: "trace-42"})
	assert.Equal(t, "trace-42", string(ctx.Response.Header.Peek(requestIdHeader)))

	ctx = tt.do(fasthttp.MethodGet, "/api/metrics", nil, nil)
	assert.Len(t, string(ctx.Response.Header.Peek(requestIdHeader)), 36)
}

func TestAddressAndLargeValueRoutes(t *testing.T) {

	tt := newTestTracker(t, true)

	var byAddress struct {
		Address      string                   `json:"address"`
		Transactions []structures.Transaction `json:"transactions"`
		TotalFound   int                      `json:"total_found"`
		Returned     int                      `json:"returned"`
	}

	decode(t, tt.do(fasthttp.MethodGet, "/api/transactions/by-address/0xalice?limit=4", nil, nil), &byAddress)

	assert.Equal(t, "0xalice", byAddress.Address)
	assert.Equal(t, 13, byAddress.TotalFound)
	assert.Equal(t, 4, byAddress.Returned)

	var large struct {
		MinValueWei  string                   `json:"min_value_wei"`
		Transactions []structures.Transaction `json:"transactions"`
		TotalFound   int                      `json:"total_found"`
	}

	decode(t, tt.do(fasthttp.MethodGet, "/api/transactions/large-value", nil, nil), &large)

	assert.Equal(t, "1000000000000000000", large.MinValueWei)
	require.Len(t, large.Transactions, 2)
	assert.Equal(t, "3000000000000000000", large.Transactions[0].Value)

	decode(t, tt.do(fasthttp.MethodGet, "/api/transactions/large-value?min_value=0x29a2241af62c0000", nil, nil), &large)
	assert.Equal(t, "3000000000000000000", large.MinValueWei)
	assert.Equal(t, 1, large.TotalFound)
}

func TestLatestBlocksTransactionsRoute(t *testing.T) {

	tt := newTestTracker(t, true)

	var data struct {
		Blocks       []uint64                 `json:"blocks"`
		Transactions []structures.Transaction `json:"transactions"`
		Returned     int                      `json:"returned"`
	}

	decode(t, tt.do(fasthttp.MethodGet, "/api/transactions/latest?blocks=2", nil, nil), &data)

	assert.Equal(t, []uint64{103, 102}, data.Blocks)
	assert.Equal(t, 4, data.Returned)
	assert.Equal(t, "0xtx103_1", data.Transactions[0].Hash)
}

func TestAdvancedSearchRoute(t *testing.T) {

	tt := newTestTracker(t, true)

	ctx := tt.do(fasthttp.MethodPost, "/api/search/advanced", []byte(`{"fromBlock":95,"toBlock":"0x64"}`), nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	var data struct {
		Transactions []structures.Transaction `json:"transactions"`
		QueryParams  struct {
			FromBlock uint64 `json:"fromBlock"`
			ToBlock   uint64 `json:"toBlock"`
		} `json:"query_params"`
		TotalResults int  `json:"total_results"`
		Truncated    bool `json:"truncated"`
	}
	decode(t, ctx, &data)

	assert.Equal(t, 5, data.TotalResults)
	assert.False(t, data.Truncated)
	assert.Equal(t, uint64(95), data.QueryParams.FromBlock)
	assert.Equal(t, uint64(100), data.QueryParams.ToBlock)

	ctx = tt.do(fasthttp.MethodPost, "/api/search/advanced", []byte(`{"fromBlock":`), nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = tt.do(fasthttp.MethodPost, "/api/search/advanced", []byte(`{"fromBlock":100,"toBlock":90}`), nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	// A range this wide must be refused before anything is fetched.
	ctx = tt.do(fasthttp.MethodPost, "/api/search/advanced", []byte(`{"fromBlock":0,"toBlock":1099511627776}`), nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "at most")

	tt.source.mu.Lock()
	tt.source.heightErr = errors.New("indexer offline")
	tt.source.mu.Unlock()

	ctx = tt.do(fasthttp.MethodPost, "/api/search/advanced", []byte(`{"fromBlock":1,"toBlock":5}`), nil)
	assert.Equal(t, fasthttp.StatusBadGateway, ctx.Response.StatusCode())

	ctx = tt.do(fasthttp.MethodOptions, "/api/search/advanced", nil, nil)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.Peek("Access-Control-Allow-Methods")), "POST")
}

func TestInitStatusAndMetrics(t *testing.T) {

	tt := newTestTracker(t, true)

	var initData struct {
		Message     string `json:"message"`
		Initialized bool   `json:"initialized"`
	}
	decode(t, tt.do(fasthttp.MethodGet, "/api/init", nil, nil), &initData)

	assert.Equal(t, "Client initialized", initData.Message)
	assert.True(t, initData.Initialized)

	var status cache_engine.Status
	decode(t, tt.do(fasthttp.MethodGet, "/api/status", nil, nil), &status)

	assert.True(t, status.Connected)
	assert.Equal(t, uint64(103), status.LatestBlock)
	assert.Equal(t, 13, status.CacheSize)

	var metrics struct {
		Metrics        structures.Metrics `json:"metrics"`
		AdditionalInfo struct {
			CachedTransactions int     `json:"cached_transactions"`
			CachedBlocks       int     `json:"cached_blocks"`
			LastUpdated        float64 `json:"last_updated"`
		} `json:"additional_info"`
	}
	decode(t, tt.do(fasthttp.MethodGet, "/api/metrics", nil, nil), &metrics)

	assert.Equal(t, uint64(103), metrics.Metrics.BlockHeight)
	assert.Equal(t, 13, metrics.AdditionalInfo.CachedTransactions)
	assert.Equal(t, 21, metrics.AdditionalInfo.CachedBlocks)
	assert.Equal(t, float64(genesisTime+103*2+1), metrics.AdditionalInfo.LastUpdated)

	var history struct {
		History  []structures.MetricsHistoryEntry `json:"history"`
		Returned int                              `json:"returned"`
	}
	decode(t, tt.do(fasthttp.MethodGet, "/api/metrics/history", nil, nil), &history)

	// Snapshots share one fixed clock reading, so they collapse into one entry.
	assert.Equal(t, 1, history.Returned)
	assert.Equal(t, uint64(103), history.History[0].Metrics.BlockHeight)

	tt.source.mu.Lock()
	tt.source.heightErr = errors.New("indexer offline")
	tt.source.mu.Unlock()

	ctx := tt.do(fasthttp.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, "error", decode(t, ctx, nil).Status)

	// Reads keep answering from the caches.
	ctx = tt.do(fasthttp.MethodGet, "/api/latest-transaction", nil, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestPrometheusEndpoint(t *testing.T) {

	tt := newTestTracker(t, true)

	tt.do(fasthttp.MethodGet, "/api/init", nil, nil)

	ctx := tt.do(fasthttp.MethodGet, "/metrics", nil, nil)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `chain_tracker_refresh_total{result="ok"}`)
	assert.Contains(t, string(ctx.Response.Body()), "chain_tracker_cached_transactions 13")
}

func TestDashboardRoutes(t *testing.T) {

	tt := newTestTracker(t, true)

	ctx := tt.do(fasthttp.MethodGet, "/dashboard", nil, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.ContentType()), "text/html")

	var overview struct {
		LastHeight  uint64 `json:"lastHeight"`
		HistorySize int    `json:"historySize"`
		FeedClients int    `json:"feedClients"`
	}

	tt.do(fasthttp.MethodGet, "/api/init", nil, nil)
	decode(t, tt.do(fasthttp.MethodGet, "/dashboard/api/overview", nil, nil), &overview)

	assert.Equal(t, uint64(103), overview.LastHeight)
	assert.Equal(t, 1, overview.HistorySize)
	assert.Zero(t, overview.FeedClients)
}
