package datasource

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/holiman/uint256"
	"github.com/umbracle/go-web3"
	"github.com/umbracle/go-web3/jsonrpc"
)

const jsonRpcFetchers = 8

// JsonRpcSource reads blocks straight from an EVM node. It is slower than
// Hypersync (one call per block, one per receipt) and meant as a fallback.
type JsonRpcSource struct {
	client *jsonrpc.Client
}

func NewJsonRpcSource(url string) (*JsonRpcSource, error) {

	client, err := jsonrpc.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("dial json-rpc %s: %w", url, err)
	}

	client.SetMaxConnsLimit(jsonRpcFetchers * 4)

	return &JsonRpcSource{client: client}, nil
}

func (s *JsonRpcSource) Close() error {
	return s.client.Close()
}

// callWithContext runs a blocking client call and abandons it when ctx ends.
func callWithContext[T any](ctx context.Context, call func() (T, error)) (T, error) {

	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		value, err := call()
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}

func (s *JsonRpcSource) Height(ctx context.Context) (uint64, error) {

	height, err := callWithContext(ctx, s.client.Eth().BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	return height, nil
}

func (s *JsonRpcSource) Fetch(ctx context.Context, query Query) (*FetchResult, error) {

	if err := query.validate(); err != nil {
		return nil, err
	}

	from := query.FromBlock
	if query.MaxBlocks > 0 && query.ToBlock-from > uint64(query.MaxBlocks) {
		from = query.ToBlock - uint64(query.MaxBlocks)
	}

	blocks, err := s.fetchBlocks(ctx, from, query.ToBlock)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{}

	for _, block := range blocks {

		if query.IncludeBlocks {
			result.Blocks = append(result.Blocks, normalizeWeb3Block(block))
		}

		if !query.IncludeTransactions {
			continue
		}

		for _, web3Tx := range block.Transactions {
			tx := normalizeWeb3Transaction(web3Tx)
			if query.MatchesFilters(&tx) {
				result.Transactions = append(result.Transactions, tx)
			}
		}

	}

	if query.MaxTransactions > 0 && len(result.Transactions) > query.MaxTransactions {
		result.Transactions = result.Transactions[:query.MaxTransactions]
		result.Truncated = true
	}

	if query.Receipts {
		if err := s.attachReceipts(ctx, result.Transactions); err != nil {
			return nil, err
		}
	}

	if height, err := s.Height(ctx); err == nil {
		result.Height = height
	}

	return result, nil
}

// fetchBlocks pulls [from, to) with a bounded number of concurrent calls and
// returns them in ascending order. Any failed block fails the whole batch, and
// no new call starts once ctx is done.
func (s *JsonRpcSource) fetchBlocks(ctx context.Context, from, to uint64) ([]*web3.Block, error) {

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		blocks   []*web3.Block
		slots    = make(chan struct{}, jsonRpcFetchers)
	)

dispatch:
	for number := from; number < to; number++ {

		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			break dispatch
		case slots <- struct{}{}:
		}

		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()

		if failed {
			<-slots
			break
		}

		wg.Add(1)

		go func(number uint64) {
			defer wg.Done()
			defer func() { <-slots }()

			block, err := callWithContext(ctx, func() (*web3.Block, error) {
				return s.client.Eth().GetBlockByNumber(web3.BlockNumber(number), true)
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("eth_getBlockByNumber %d: %w", number, err)
				}
				return
			}

			if block != nil {
				blocks = append(blocks, block)
			}
		}(number)

	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch blocks [%d, %d): %w", from, to, err)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Number < blocks[j].Number })

	return blocks, nil
}

func (s *JsonRpcSource) attachReceipts(ctx context.Context, txs []structures.Transaction) error {

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		slots    = make(chan struct{}, jsonRpcFetchers)
	)

	for i := range txs {

		wg.Add(1)
		slots <- struct{}{}

		go func(tx *structures.Transaction) {
			defer wg.Done()
			defer func() { <-slots }()

			receipt, err := callWithContext(ctx, func() (*web3.Receipt, error) {
				return s.client.Eth().GetTransactionReceipt(web3.HexToHash(tx.Hash))
			})

			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("eth_getTransactionReceipt %s: %w", tx.Hash, err)
				}
				mu.Unlock()
				return
			}

			if receipt == nil {
				return
			}

			tx.GasUsed = receipt.GasUsed
			tx.CumulativeGasUsed = receipt.CumulativeGasUsed
		}(&txs[i])

	}

	wg.Wait()

	return firstErr
}

func normalizeWeb3Block(block *web3.Block) structures.Block {

	normalized := structures.Block{
		Number:     block.Number,
		Timestamp:  int64(block.Timestamp),
		Hash:       block.Hash.String(),
		ParentHash: block.ParentHash.String(),
		Miner:      block.Miner.String(),
		GasUsed:    block.GasUsed,
		GasLimit:   block.GasLimit,
	}

	if block.Difficulty != nil && block.Difficulty.IsUint64() {
		normalized.Difficulty = block.Difficulty.Uint64()
	}

	return normalized
}

func normalizeWeb3Transaction(web3Tx *web3.Transaction) structures.Transaction {

	tx := structures.Transaction{
		Hash:             web3Tx.Hash.String(),
		From:             web3Tx.From.String(),
		Value:            "0",
		BlockNumber:      web3Tx.BlockNumber,
		TransactionIndex: web3Tx.TxnIndex,
		// Without a receipt the gas limit is the best available bound.
		GasUsed:  web3Tx.Gas,
		GasPrice: web3Tx.GasPrice,
		Nonce:    web3Tx.Nonce,
		Status:   1,
		Input:    "0x" + hex.EncodeToString(web3Tx.Input),
	}

	if web3Tx.To != nil {
		tx.To = web3Tx.To.String()
	}

	if web3Tx.Value != nil {
		if value, overflow := uint256.FromBig(web3Tx.Value); !overflow {
			tx.Value = value.Dec()
		}
	}

	return tx
}
