package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const pageSize = 5

// fakeHypersync answers /height and /query in memory. Every /query reply
// covers at most pageSize blocks so callers have to follow next_block.
type fakeHypersync struct {
	mu      sync.Mutex
	height  uint64
	status  int
	auth    []string
	queries []hypersyncQuery
}

func (f *fakeHypersync) handle(ctx *fasthttp.RequestCtx) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, string(ctx.Request.Header.Peek("Authorization")))

	if f.status != 0 && f.status != fasthttp.StatusOK {
		ctx.SetStatusCode(f.status)
		ctx.SetBodyString("rate limited")
		return
	}

	switch string(ctx.Path()) {

	case "/height":
		fmt.Fprintf(ctx, `{"height":%d}`, f.height)

	case "/query":
		var query hypersyncQuery
		if err := json.Unmarshal(ctx.PostBody(), &query); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		f.queries = append(f.queries, query)

		end := min(query.FromBlock+pageSize, query.ToBlock)

		var blocks, txs []map[string]any

		for n := query.FromBlock; n < end; n++ {
			blocks = append(blocks, map[string]any{
				"number":    fmt.Sprintf("0x%x", n),
				"timestamp": 1_700_000_000 + n,
				"hash":      fmt.Sprintf("0xblock%d", n),
				"gas_used":  "15000000",
				"gas_limit": 30_000_000,
			})
			if len(query.FieldSelection.Transaction) == 0 {
				continue
			}
			txs = append(txs, map[string]any{
				"hash":              fmt.Sprintf("0xtx%d", n),
				"from":              "0xAlice",
				"to":                "0xBob",
				"value":             "0x0de0b6b3a7640000",
				"block_number":      n,
				"transaction_index": "0x0",
				"gas_used":          "21000",
				"gas_price":         "not-a-number",
			})
			txs = append(txs, map[string]any{
				"hash":         fmt.Sprintf("0xtx%d_b", n),
				"from":         "0xCarol",
				"to":           nil,
				"value":        "5",
				"block_number": n,
				"status":       0,
				"input":        "0xa9059cbb",
			})
		}

		reply := map[string]any{
			"data":           []map[string]any{{"blocks": blocks, "transactions": txs}},
			"archive_height": f.height,
			"next_block":     end,
		}

		body, _ := json.Marshal(reply)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)

	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)

	}

}

func startFakeHypersync(t *testing.T, token string) (*HypersyncSource, *fakeHypersync) {
	t.Helper()

	fake := &fakeHypersync{height: 200}

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: fake.handle}

	go func() { _ = server.Serve(ln) }()

	t.Cleanup(func() { _ = ln.Close() })

	source := NewHypersyncSource("http://hypersync.test/", token, 0)
	source.client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	return source, fake
}

func TestHypersyncHeight(t *testing.T) {

	source, fake := startFakeHypersync(t, "secret")

	height, err := source.Height(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(200), height)
	assert.Equal(t, []string{"Bearer secret"}, fake.auth)
}

func TestHypersyncNoTokenNoHeader(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	_, err := source.Height(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{""}, fake.auth)
}

func TestHypersyncFetchFollowsNextBlock(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	result, err := source.Fetch(context.Background(), Query{
		FromBlock:           10,
		ToBlock:             22,
		IncludeBlocks:       true,
		IncludeTransactions: true,
	})
	require.NoError(t, err)

	require.Len(t, fake.queries, 3)
	assert.Equal(t, []uint64{10, 15, 20}, []uint64{fake.queries[0].FromBlock, fake.queries[1].FromBlock, fake.queries[2].FromBlock})

	assert.Len(t, result.Blocks, 12)
	assert.Len(t, result.Transactions, 24)
	assert.Equal(t, uint64(200), result.Height)
	assert.False(t, result.Truncated)

	block := result.Blocks[0]
	assert.Equal(t, uint64(10), block.Number)
	assert.Equal(t, int64(1_700_000_010), block.Timestamp)
	assert.Equal(t, uint64(15_000_000), block.GasUsed)
	assert.Equal(t, uint64(30_000_000), block.GasLimit)

	plain := result.Transactions[0]
	assert.Equal(t, "1000000000000000000", plain.Value)
	assert.Equal(t, uint64(21_000), plain.GasUsed)
	// Unparsable quantities degrade to zero.
	assert.Zero(t, plain.GasPrice)
	// Missing status means success.
	assert.Equal(t, uint64(1), plain.Status)
	assert.Equal(t, "0x", plain.Input)

	call := result.Transactions[1]
	assert.Equal(t, "5", call.Value)
	assert.Equal(t, uint64(0), call.Status)
	assert.Empty(t, call.To)
	assert.Equal(t, "0xa9059cbb", call.Input)
}

func TestHypersyncFetchStopsAtCaps(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	result, err := source.Fetch(context.Background(), Query{
		FromBlock:     0,
		ToBlock:       100,
		IncludeBlocks: true,
		MaxBlocks:     7,
	})
	require.NoError(t, err)

	assert.Len(t, fake.queries, 2)
	assert.Len(t, result.Blocks, 10)
	assert.Empty(t, result.Transactions)
	assert.True(t, result.Truncated)

	// Blocks only: no transaction selection goes on the wire.
	assert.Empty(t, fake.queries[0].Transactions)
	assert.Empty(t, fake.queries[0].FieldSelection.Transaction)
	assert.True(t, fake.queries[0].IncludeAllBlocks)
	assert.Equal(t, 7, fake.queries[0].MaxNumBlocks)
}

func TestHypersyncFetchPageLimit(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	result, err := source.Fetch(context.Background(), Query{FromBlock: 0, ToBlock: 1000, IncludeTransactions: true})
	require.NoError(t, err)

	assert.Len(t, fake.queries, maxHypersyncPages)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Transactions, 2*pageSize*maxHypersyncPages)
}

func TestHypersyncTimeoutFollowsConfiguration(t *testing.T) {

	source, err := New(&structures.TrackerConfig{SourceTimeoutMs: 30_000})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, source.(*HypersyncSource).timeout)

	source, err = New(&structures.TrackerConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultSourceTimeout, source.(*HypersyncSource).timeout)
}

func TestHypersyncAddressFilter(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	result, err := source.Fetch(context.Background(), Query{
		FromBlock:           0,
		ToBlock:             5,
		IncludeTransactions: true,
		Address:             "0xcarol",
	})
	require.NoError(t, err)

	require.Len(t, fake.queries[0].Transactions, 2)
	assert.Equal(t, []string{"0xcarol"}, fake.queries[0].Transactions[0].From)
	assert.Equal(t, []string{"0xcarol"}, fake.queries[0].Transactions[1].To)

	// The fake ignores the selection, so narrowing happens client side.
	require.Len(t, result.Transactions, 5)
	for _, tx := range result.Transactions {
		assert.Equal(t, "0xCarol", tx.From)
	}
}

func TestHypersyncUpstreamError(t *testing.T) {

	source, fake := startFakeHypersync(t, "")
	fake.status = fasthttp.StatusTooManyRequests

	_, err := source.Height(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "429")

	_, err = source.Fetch(context.Background(), Query{FromBlock: 0, ToBlock: 5, IncludeBlocks: true})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHypersyncRejectsEmptyRange(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	_, err := source.Fetch(context.Background(), Query{FromBlock: 5, ToBlock: 5})
	require.Error(t, err)
	assert.Empty(t, fake.queries)
}

func TestHypersyncHonoursCancelledContext(t *testing.T) {

	source, fake := startFakeHypersync(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := source.Height(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, fake.auth)
}

func TestMatchesFilters(t *testing.T) {

	tx := structures.Transaction{From: "0xAbC", To: "0xdef", Value: "100"}

	query := Query{}
	assert.True(t, query.MatchesFilters(&tx))

	query.Address = "0xabc"
	assert.True(t, query.MatchesFilters(&tx))

	query.Address = "0xDEF"
	assert.True(t, query.MatchesFilters(&tx))

	query.Address = "0x123"
	assert.False(t, query.MatchesFilters(&tx))

	query.Address = ""
	minValue, err := structures.ParseUint256("101")
	require.NoError(t, err)
	query.MinValue = minValue
	assert.False(t, query.MatchesFilters(&tx))

	minValue.SetUint64(100)
	assert.True(t, query.MatchesFilters(&tx))
}
