package cache_engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/structures"
)

const (
	chainStart     = int64(1_700_000_000)
	chainBlockTime = int64(2)
)

// fakeSource serves a synthetic chain: block n has timestamp
// chainStart + n*chainBlockTime and txPerBlock transactions.
type fakeSource struct {
	mu sync.Mutex

	height     uint64
	blocks     map[uint64]structures.Block
	txs        []structures.Transaction
	heightErr  error
	fetchErr   error
	fetchCalls int
	queries    []datasource.Query
	// dropBlocks hides block records (not their transactions) from Fetch.
	dropBlocks map[uint64]bool
	// truncate makes Fetch report that a cap cut the scan short.
	truncate bool
}

func newFakeSource(height uint64, txPerBlock int) *fakeSource {

	src := &fakeSource{
		blocks:     make(map[uint64]structures.Block),
		dropBlocks: make(map[uint64]bool),
	}

	for n := uint64(0); n <= height; n++ {
		src.addBlock(n, txPerBlock)
	}

	src.height = height

	return src
}

func (f *fakeSource) addBlock(number uint64, txCount int) {

	f.blocks[number] = structures.Block{
		Number:    number,
		Timestamp: chainStart + int64(number)*chainBlockTime,
		Hash:      fmt.Sprintf("0xblock%d", number),
		Miner:     "0xminer",
		GasUsed:   15_000_000,
		GasLimit:  30_000_000,
	}

	for i := 0; i < txCount; i++ {
		f.txs = append(f.txs, structures.Transaction{
			Hash:             fmt.Sprintf("0xtx%d_%d", number, i),
			From:             fmt.Sprintf("0xSender%d", i),
			To:               "0xreceiver",
			Value:            "1000",
			BlockNumber:      number,
			TransactionIndex: uint64(i),
			GasUsed:          21_000,
			GasPrice:         2_000_000_000,
			Status:           1,
			Input:            "0x",
		})
	}
}

// extend grows the chain to newHeight.
func (f *fakeSource) extend(newHeight uint64, txPerBlock int) {

	f.mu.Lock()
	defer f.mu.Unlock()

	for n := f.height + 1; n <= newHeight; n++ {
		f.addBlock(n, txPerBlock)
	}

	f.height = newHeight
}

func (f *fakeSource) setErrors(heightErr, fetchErr error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.heightErr = heightErr
	f.fetchErr = fetchErr
}

func (f *fakeSource) calls() int {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetchCalls
}

func (f *fakeSource) Height(ctx context.Context) (uint64, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.heightErr != nil {
		return 0, f.heightErr
	}

	return f.height, nil
}

func (f *fakeSource) Fetch(ctx context.Context, query datasource.Query) (*datasource.FetchResult, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	f.queries = append(f.queries, query)

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	result := &datasource.FetchResult{Height: f.height, Truncated: f.truncate}

	if query.IncludeBlocks {
		for n := query.FromBlock; n < query.ToBlock; n++ {
			if block, ok := f.blocks[n]; ok && !f.dropBlocks[n] {
				result.Blocks = append(result.Blocks, block)
			}
		}
	}

	if query.IncludeTransactions {
		for i := range f.txs {
			tx := f.txs[i]
			if tx.BlockNumber < query.FromBlock || tx.BlockNumber >= query.ToBlock {
				continue
			}
			if query.MatchesFilters(&tx) {
				result.Transactions = append(result.Transactions, tx)
			}
		}
	}

	return result, nil
}

// clockAt returns a fixed clock just after block `height` was produced.
func clockAt(height uint64) func() time.Time {

	now := time.Unix(chainStart+int64(height)*chainBlockTime+1, 0)

	return func() time.Time { return now }
}

type recordingListener struct {
	mu      sync.Mutex
	updates []structures.RefreshUpdate
}

func (l *recordingListener) OnRefresh(update structures.RefreshUpdate) {
	l.mu.Lock()
	l.updates = append(l.updates, update)
	l.mu.Unlock()
}

type recordingRecorder struct {
	mu        sync.Mutex
	snapshots []structures.Metrics
}

func (r *recordingRecorder) Record(at time.Time, metrics structures.Metrics) error {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, metrics)
	r.mu.Unlock()
	return nil
}
