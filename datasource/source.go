package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/holiman/uint256"
)

// ErrUpstream wraps non-success replies from the indexing service.
var ErrUpstream = errors.New("upstream error")

// Query selects a block range [FromBlock, ToBlock). Address and MinValue narrow
// the transaction selection; blocks are only returned when IncludeBlocks is set.
type Query struct {
	FromBlock           uint64
	ToBlock             uint64
	IncludeBlocks       bool
	IncludeTransactions bool
	Address             string
	MinValue            *uint256.Int
	MaxBlocks           int
	MaxTransactions     int
	// Receipts asks for receipt-level fields (gas used, cumulative gas, status).
	// Sources that pay an extra round trip per transaction skip them otherwise.
	Receipts bool
}

// FetchResult carries normalized records. Derived fields (utilization, per-block
// counts, fees, timestamps on transactions) are left for the caller.
//
// Truncated is set when a cap stopped the source before the end of the range,
// so matching transactions past the cut were never seen.
type FetchResult struct {
	Blocks       []structures.Block
	Transactions []structures.Transaction
	Height       uint64
	Truncated    bool
}

// Source is the only I/O boundary of the tracker.
type Source interface {
	Height(ctx context.Context) (uint64, error)
	Fetch(ctx context.Context, query Query) (*FetchResult, error)
}

// New builds the source named by cfg.SourceKind.
func New(cfg *structures.TrackerConfig) (Source, error) {

	switch strings.ToLower(cfg.SourceKind) {

	case "", constants.SourceHypersync:
		return NewHypersyncSource(cfg.HypersyncUrl, cfg.HypersyncToken, time.Duration(cfg.SourceTimeoutMs)*time.Millisecond), nil

	case constants.SourceJsonRpc:
		if cfg.JsonRpcUrl == "" {
			return nil, fmt.Errorf("JSON_RPC_URL is required for source %q", cfg.SourceKind)
		}
		source, err := NewJsonRpcSource(cfg.JsonRpcUrl)
		if err != nil {
			return nil, err
		}
		return source, nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.SourceKind)

	}

}

// MatchesFilters applies the address and min-value narrowing client side.
func (q *Query) MatchesFilters(tx *structures.Transaction) bool {

	if q.Address != "" && !tx.Touches(q.Address) {
		return false
	}

	if q.MinValue != nil && tx.ValueInt().Lt(q.MinValue) {
		return false
	}

	return true
}

func (q *Query) validate() error {

	if q.ToBlock <= q.FromBlock {
		return fmt.Errorf("empty block range [%d, %d)", q.FromBlock, q.ToBlock)
	}

	return nil
}
