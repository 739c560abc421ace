package queue

import (
	"context"
	"strconv"
	"sync"
)

const defaultVirtualBatch = 10

// VirtualQueue is an in-memory queue. Failed records are put back at the front
// of the queue.
type VirtualQueue struct {
	mutex    sync.Mutex
	records  []Record
	inflight map[Receipt]Record
	sequence int
	batch    int
}

// NewVirtualQueue creates an empty VirtualQueue.
func NewVirtualQueue() *VirtualQueue {
	return &VirtualQueue{
		inflight: make(map[Receipt]Record),
		batch:    defaultVirtualBatch,
	}
}

// Enqueue appends the body to the queue.
func (v *VirtualQueue) Enqueue(ctx context.Context, body []byte) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.sequence++
	id := strconv.Itoa(v.sequence)
	v.records = append(v.records, NewRecord(id, Receipt(id), body))
	return nil
}

// Dequeue reserves up to a batch of records.
func (v *VirtualQueue) Dequeue(ctx context.Context) ([]Record, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	num := len(v.records)
	if num > v.batch {
		num = v.batch
	}

	res := make([]Record, num)
	copy(res, v.records[:num])
	v.records = v.records[num:]

	for _, r := range res {
		v.inflight[r.Receipt] = r
	}
	return res, nil
}

// Commit acknowledges reserved records.
func (v *VirtualQueue) Commit(ctx context.Context, records []Record) (Result, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	var res Result
	for _, r := range records {
		if _, ok := v.inflight[r.Receipt]; !ok {
			res.Failure++
			continue
		}
		delete(v.inflight, r.Receipt)
		res.Success++
	}
	return res, nil
}

// Failed returns reserved records to the front of the queue.
func (v *VirtualQueue) Failed(ctx context.Context, records []Record) (Result, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	var (
		res      Result
		restored []Record
	)
	for _, r := range records {
		if _, ok := v.inflight[r.Receipt]; !ok {
			continue
		}
		delete(v.inflight, r.Receipt)
		restored = append(restored, r)
		res.Failure++
	}
	v.records = append(restored, v.records...)
	return res, nil
}

// Len returns the number of records waiting and reserved.
func (v *VirtualQueue) Len() (waiting, inflight int) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return len(v.records), len(v.inflight)
}
