package store

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/trussle/expense/pkg/lru"
	"github.com/trussle/expense/pkg/models"
)

// VirtualStore keeps records in memory, bounded by an LRU.
type VirtualStore struct {
	mutex     sync.RWMutex
	lru       *lru.LRU
	puts      int
	evictions int
	logger    log.Logger
}

// NewVirtualStore creates a VirtualStore holding at most size records. The
// least recently written record is evicted once the store is full.
func NewVirtualStore(size int, logger log.Logger) *VirtualStore {
	store := &VirtualStore{
		logger: logger,
	}
	store.lru = lru.NewLRU(size, store.onElementEviction)
	return store
}

// Put stores the record, overwriting any record with the same key.
func (v *VirtualStore) Put(ctx context.Context, record models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.lru.Add(record.PK, record)
	v.puts++
	return nil
}

// Get returns the record stored under the partition key.
func (v *VirtualStore) Get(pk string) (models.Record, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.lru.Peek(pk)
}

// Len returns the number of distinct records held.
func (v *VirtualStore) Len() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.lru.Len()
}

// Puts returns the number of writes the store has accepted.
func (v *VirtualStore) Puts() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.puts
}

// Evictions returns the number of records dropped to stay within size.
func (v *VirtualStore) Evictions() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.evictions
}

// Called from Put, with the mutex held.
func (v *VirtualStore) onElementEviction(reason lru.EvictionReason, key string, value models.Record) {
	v.evictions++
	level.Debug(v.logger).Log("state", "evicted", "pk", key, "reason", reason.String(), "processed_at", value.ProcessedAt)
}
