package cache_engine

import (
	"context"
	"sync"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/telemetry"

	"golang.org/x/sync/singleflight"
)

// MetricsRecorder receives every successfully recomputed snapshot.
type MetricsRecorder interface {
	Record(at time.Time, metrics structures.Metrics) error
}

// RefreshListener is told about refreshes that brought in new transactions.
type RefreshListener interface {
	OnRefresh(update structures.RefreshUpdate)
}

type Option func(*Engine)

func WithRecorder(recorder MetricsRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

func WithListener(listener RefreshListener) Option {
	return func(e *Engine) { e.listener = listener }
}

func WithCollector(collector *telemetry.Collector) Option {
	return func(e *Engine) { e.collector = collector }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the recent-block and recent-transaction caches and the metrics
// snapshot.
//
// writerMu admits one refresh or recompute at a time. mu guards the published
// state; published slices are never modified in place, a writer builds new
// slices and swaps them in, so readers may keep a slice after releasing mu.
type Engine struct {
	source    datasource.Source
	params    structures.EngineParams
	recorder  MetricsRecorder
	listener  RefreshListener
	collector *telemetry.Collector
	now       func() time.Time

	flight   singleflight.Group
	writerMu sync.Mutex

	mu                 sync.RWMutex
	blocks             []structures.Block
	transactions       []structures.Transaction
	metrics            structures.Metrics
	lastHeight         uint64
	lastMetricsUpdate  time.Time
	timestampFallbacks uint64
}

func New(source datasource.Source, params structures.EngineParams, opts ...Option) *Engine {

	if params.RefreshLookback == 0 {
		params.RefreshLookback = constants.DefaultRefreshLookback
	}
	if params.TpsLookback == 0 {
		params.TpsLookback = constants.DefaultTpsLookback
	}
	if params.MetricsStaleness <= 0 {
		params.MetricsStaleness = constants.DefaultMetricsStaleness
	}
	if params.SourceTimeout <= 0 {
		params.SourceTimeout = constants.DefaultSourceTimeout
	}
	if params.EstimatedValidators <= 0 {
		params.EstimatedValidators = constants.DefaultEstimatedValidators
	}

	e := &Engine{
		source:       source,
		params:       params,
		now:          time.Now,
		blocks:       []structures.Block{},
		transactions: []structures.Transaction{},
		metrics: structures.Metrics{
			Validators:      params.EstimatedValidators,
			NetworkActivity: structures.ActivityLow,
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.params.SourceTimeout)
}

func (e *Engine) Params() structures.EngineParams {
	return e.params
}

func (e *Engine) Metrics() structures.Metrics {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.metrics
}

func (e *Engine) LastHeight() uint64 {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.lastHeight
}

func (e *Engine) LastMetricsUpdate() time.Time {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.lastMetricsUpdate
}

func (e *Engine) TimestampFallbacks() uint64 {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.timestampFallbacks
}

func (e *Engine) CacheSizes() (blocks, transactions int) {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.blocks), len(e.transactions)
}

// ChainHeight asks the source directly, bypassing the caches.
func (e *Engine) ChainHeight(ctx context.Context) (uint64, error) {

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.source.Height(ctx)
}

func (e *Engine) cached() ([]structures.Block, []structures.Transaction) {

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.blocks, e.transactions
}

// lookbackStart returns max(0, height-lookback).
func lookbackStart(height, lookback uint64) uint64 {

	if lookback >= height {
		return 0
	}

	return height - lookback
}
