package lru

import (
	"container/list"

	"github.com/trussle/expense/pkg/models"
)

// EvictionReason describes why the eviction happened
type EvictionReason int

const (
	// Popped as the least recently used record, either to make room or
	// manually.
	Popped EvictionReason = iota
)

func (r EvictionReason) String() string {
	switch r {
	case Popped:
		return "popped"
	}
	return "unknown"
}

type keyValue struct {
	key   string
	value models.Record
}

// EvictCallback lets you know when an eviction has happened in the cache
type EvictCallback func(EvictionReason, string, models.Record)

// LRU implements a non-thread safe fixed size LRU cache of records keyed by
// partition key.
type LRU struct {
	size    int
	items   map[string]*list.Element
	list    *list.List
	onEvict EvictCallback
}

// NewLRU creates a LRU cache with a size and callback on eviction
func NewLRU(size int, onEvict EvictCallback) *LRU {
	return &LRU{
		size:    size,
		items:   make(map[string]*list.Element),
		list:    list.New(),
		onEvict: onEvict,
	}
}

// Add adds a key, value pair, replacing any value already held for the key.
// Returns true if an eviction happened.
func (l *LRU) Add(key string, value models.Record) bool {
	if elem, ok := l.items[key]; ok {
		l.list.MoveToFront(elem)
		elem.Value = keyValue{key, value}
		return false
	}

	l.items[key] = l.list.PushFront(keyValue{key, value})

	if l.list.Len() > l.size {
		l.Pop()
		return true
	}
	return false
}

// Peek returns a value, without marking the LRU cache.
// Returns true if a value is found.
func (l *LRU) Peek(key string) (value models.Record, ok bool) {
	var elem *list.Element
	if elem, ok = l.items[key]; ok {
		value = elem.Value.(keyValue).value
	}
	return
}

// Pop removes the last LRU item with in the cache
func (l *LRU) Pop() (string, models.Record, bool) {
	if elem := l.list.Back(); elem != nil {
		kv := l.removeElement(Popped, elem)
		return kv.key, kv.value, true
	}
	return "", models.Record{}, false
}

// Len returns the current length of the LRU cache
func (l *LRU) Len() int {
	return l.list.Len()
}

func (l *LRU) removeElement(reason EvictionReason, e *list.Element) keyValue {
	kv := l.list.Remove(e).(keyValue)
	delete(l.items, kv.key)
	if l.onEvict != nil {
		l.onEvict(reason, kv.key, kv.value)
	}
	return kv
}
