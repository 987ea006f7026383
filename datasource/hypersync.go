package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"

	"github.com/valyala/fasthttp"
)

// Hypersync may answer a query with a partial range (next_block < to_block).
// Follow-up requests are capped so one refresh cannot loop forever.
const maxHypersyncPages = 8

var blockFields = []string{
	"number",
	"timestamp",
	"hash",
	"parent_hash",
	"miner",
	"gas_used",
	"gas_limit",
	"base_fee_per_gas",
	"difficulty",
	"size",
}

var transactionFields = []string{
	"hash",
	"from",
	"to",
	"value",
	"block_number",
	"transaction_index",
	"gas_used",
	"gas_price",
	"status",
	"input",
	"kind",
	"nonce",
	"cumulative_gas_used",
}

type HypersyncSource struct {
	url     string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewHypersyncSource caps every request at timeout, or at the context
// deadline when that comes first. A non-positive timeout means the default.
func NewHypersyncSource(url, token string, timeout time.Duration) *HypersyncSource {

	if url == "" {
		url = constants.DefaultHypersyncUrl
	}

	if timeout <= 0 {
		timeout = constants.DefaultSourceTimeout
	}

	return &HypersyncSource{
		url:     strings.TrimRight(url, "/"),
		token:   token,
		timeout: timeout,
		client: &fasthttp.Client{
			Name:                "chain-tracker",
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
}

type hypersyncHeightResponse struct {
	Height lenientQuantity `json:"height"`
}

type hypersyncTxSelection struct {
	From []string `json:"from,omitempty"`
	To   []string `json:"to,omitempty"`
}

type hypersyncFieldSelection struct {
	Block       []string `json:"block,omitempty"`
	Transaction []string `json:"transaction,omitempty"`
}

type hypersyncQuery struct {
	FromBlock          uint64                  `json:"from_block"`
	ToBlock            uint64                  `json:"to_block"`
	Blocks             []struct{}              `json:"blocks,omitempty"`
	Transactions       []hypersyncTxSelection  `json:"transactions,omitempty"`
	IncludeAllBlocks   bool                    `json:"include_all_blocks,omitempty"`
	FieldSelection     hypersyncFieldSelection `json:"field_selection"`
	MaxNumBlocks       int                     `json:"max_num_blocks,omitempty"`
	MaxNumTransactions int                     `json:"max_num_transactions,omitempty"`
}

type hypersyncResponseData struct {
	Blocks       []rawBlock       `json:"blocks"`
	Transactions []rawTransaction `json:"transactions"`
}

type hypersyncResponse struct {
	Data          []hypersyncResponseData `json:"data"`
	ArchiveHeight lenientQuantity         `json:"archive_height"`
	NextBlock     lenientQuantity         `json:"next_block"`
}

func (s *HypersyncSource) Height(ctx context.Context) (uint64, error) {

	var resp hypersyncHeightResponse

	if err := s.do(ctx, fasthttp.MethodGet, "/height", nil, &resp); err != nil {
		return 0, err
	}

	return uint64(resp.Height), nil
}

func (s *HypersyncSource) Fetch(ctx context.Context, query Query) (*FetchResult, error) {

	if err := query.validate(); err != nil {
		return nil, err
	}

	result := &FetchResult{}

	wire := buildHypersyncQuery(&query)

	for page := 0; ; page++ {

		body, err := json.Marshal(wire)
		if err != nil {
			return nil, fmt.Errorf("marshal hypersync query: %w", err)
		}

		var resp hypersyncResponse

		if err := s.do(ctx, fasthttp.MethodPost, "/query", body, &resp); err != nil {
			return nil, err
		}

		for _, data := range resp.Data {

			for i := range data.Blocks {
				result.Blocks = append(result.Blocks, data.Blocks[i].normalize())
			}

			for i := range data.Transactions {
				tx := data.Transactions[i].normalize()
				if query.MatchesFilters(&tx) {
					result.Transactions = append(result.Transactions, tx)
				}
			}

		}

		if uint64(resp.ArchiveHeight) > result.Height {
			result.Height = uint64(resp.ArchiveHeight)
		}

		next := uint64(resp.NextBlock)

		if next >= query.ToBlock || next <= wire.FromBlock {
			break
		}

		// The rest of the range was never scanned.
		if page+1 >= maxHypersyncPages || reachedCaps(&query, result) {
			result.Truncated = true
			break
		}

		wire.FromBlock = next

	}

	return result, nil
}

func reachedCaps(query *Query, result *FetchResult) bool {

	if query.MaxBlocks > 0 && len(result.Blocks) >= query.MaxBlocks {
		return true
	}

	return query.MaxTransactions > 0 && len(result.Transactions) >= query.MaxTransactions
}

func buildHypersyncQuery(query *Query) hypersyncQuery {

	wire := hypersyncQuery{
		FromBlock:          query.FromBlock,
		ToBlock:            query.ToBlock,
		MaxNumBlocks:       query.MaxBlocks,
		MaxNumTransactions: query.MaxTransactions,
	}

	if query.IncludeBlocks {
		wire.Blocks = []struct{}{{}}
		wire.IncludeAllBlocks = true
		wire.FieldSelection.Block = blockFields
	}

	if query.IncludeTransactions {

		wire.FieldSelection.Transaction = transactionFields

		switch {
		case query.Address != "":
			wire.Transactions = []hypersyncTxSelection{
				{From: []string{query.Address}},
				{To: []string{query.Address}},
			}
		default:
			wire.Transactions = []hypersyncTxSelection{{}}
		}

	}

	return wire
}

func (s *HypersyncSource) do(ctx context.Context, method, path string, body []byte, out any) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url + path)
	req.Header.SetMethod(method)

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("hypersync %s: %w", path, err)
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return fmt.Errorf("%w: hypersync %s returned %d: %s", ErrUpstream, path, status, truncate(resp.Body(), 256))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode hypersync %s: %w", path, err)
	}

	return nil
}

func truncate(raw []byte, max int) string {

	if len(raw) <= max {
		return string(raw)
	}

	return string(raw[:max]) + "..."
}
