package databases

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// MetricsHistory keeps the last `capacity` metrics snapshots keyed by
// big-endian unix millis, so iteration order is chronological.
// It lives on leveldb's in-memory storage: nothing survives a restart.
type MetricsHistory struct {
	mu       sync.Mutex
	db       *leveldb.DB
	capacity int
	count    int
}

func OpenMetricsHistory(capacity int) (*MetricsHistory, error) {

	if capacity <= 0 {
		return nil, fmt.Errorf("metrics history capacity must be positive, got %d", capacity)
	}

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open metrics history: %w", err)
	}

	return &MetricsHistory{db: db, capacity: capacity}, nil
}

func historyKey(at time.Time) []byte {

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(at.UnixMilli()))
	return key

}

// Record stores a snapshot and evicts the oldest entries beyond capacity.
// Two snapshots in the same millisecond collapse into the later one.
func (h *MetricsHistory) Record(at time.Time, metrics structures.Metrics) error {

	value, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey(at)

	existed, err := h.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("check metrics snapshot: %w", err)
	}

	if err := h.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("store metrics snapshot: %w", err)
	}

	if !existed {
		h.count++
	}

	if h.count <= h.capacity {
		return nil
	}

	batch := new(leveldb.Batch)

	iter := h.db.NewIterator(nil, nil)
	for excess := h.count - h.capacity; excess > 0 && iter.Next(); excess-- {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()

	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan metrics history: %w", err)
	}

	if err := h.db.Write(batch, nil); err != nil {
		return fmt.Errorf("trim metrics history: %w", err)
	}

	h.count -= batch.Len()

	return nil
}

// Recent returns up to limit snapshots, newest first.
func (h *MetricsHistory) Recent(limit int) ([]structures.MetricsHistoryEntry, error) {

	if limit <= 0 {
		return []structures.MetricsHistoryEntry{}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]structures.MetricsHistoryEntry, 0, min(limit, h.count))

	iter := h.db.NewIterator(nil, nil)
	defer iter.Release()

	for ok := iter.Last(); ok && len(entries) < limit; ok = iter.Prev() {

		var metrics structures.Metrics

		if err := json.Unmarshal(iter.Value(), &metrics); err != nil {
			return nil, fmt.Errorf("decode metrics snapshot: %w", err)
		}

		entries = append(entries, structures.MetricsHistoryEntry{
			Timestamp: int64(binary.BigEndian.Uint64(iter.Key())),
			Metrics:   metrics,
		})

	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan metrics history: %w", err)
	}

	return entries, nil
}

func (h *MetricsHistory) Len() int {

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.count
}

func (h *MetricsHistory) Capacity() int {
	return h.capacity
}

func (h *MetricsHistory) Close() error {
	return h.db.Close()
}
