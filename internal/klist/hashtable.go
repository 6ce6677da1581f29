package klist

import "nucleus/internal/kerrors"

// HashTable maps a signed integer key to a value of type V, with
// collisions resolved by separate chaining, grounded on the original
// kernel's ht.c. Frame addresses, tids, and pids are all small signed
// integers, so one generic table serves integer-keyed indices such as
// tid->tcb and pid->pcb.
type HashTable[V any] struct {
	buckets [][]entry[V]
	size    int
}

type entry[V any] struct {
	key int64
	val V
}

// NewHashTable creates a table with the given number of buckets. Buckets
// grow independently via chaining; bucketCount only affects average
// chain length.
func NewHashTable[V any](bucketCount int) *HashTable[V] {
	if bucketCount <= 0 {
		bucketCount = 64
	}
	return &HashTable[V]{buckets: make([][]entry[V], bucketCount)}
}

func (h *HashTable[V]) index(key int64) int {
	b := int(key % int64(len(h.buckets)))
	if b < 0 {
		b += len(h.buckets)
	}
	return b
}

// Len returns the number of entries currently stored.
func (h *HashTable[V]) Len() int { return h.size }

// Get looks up key. ok is false if absent.
func (h *HashTable[V]) Get(key int64) (val V, ok bool) {
	b := h.index(key)
	for _, e := range h.buckets[b] {
		if e.key == key {
			return e.val, true
		}
	}
	return val, false
}

// Put inserts or overwrites the value stored under key.
func (h *HashTable[V]) Put(key int64, val V) {
	b := h.index(key)
	for i, e := range h.buckets[b] {
		if e.key == key {
			h.buckets[b][i].val = val
			return
		}
	}
	h.buckets[b] = append(h.buckets[b], entry[V]{key: key, val: val})
	h.size++
}

// Remove deletes key and returns its value. If deferred is non-nil, the
// removed value is also pushed there (it is still returned as well) —
// used when Remove runs under the scheduler lock and the caller must free
// the resource only after releasing it (§4.A).
func (h *HashTable[V]) Remove(key int64, deferred *RingBuffer[V]) (val V, err error) {
	b := h.index(key)
	chain := h.buckets[b]
	for i, e := range chain {
		if e.key == key {
			h.buckets[b] = append(chain[:i], chain[i+1:]...)
			h.size--
			if deferred != nil {
				_ = deferred.Write(e.val)
			}
			return e.val, nil
		}
	}
	return val, kerrors.New("HashTable.Remove", kerrors.NotFound, "key not present")
}
