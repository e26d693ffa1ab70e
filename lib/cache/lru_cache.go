package cache

import "sync"

type node[K comparable, V any] struct {
	key K
	val V

	prev *node[K, V]
	next *node[K, V]
}

// LRU is a fixed capacity cache that evicts the least recently used entry.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	cache    map[K]*node[K, V]

	left  *node[K, V]
	right *node[K, V]
}

func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	left, right := &node[K, V]{}, &node[K, V]{}

	left.next = right
	right.prev = left

	return &LRU[K, V]{
		left:     left,
		right:    right,
		capacity: capacity,
		cache:    make(map[K]*node[K, V]),
	}
}

func (l *LRU[K, V]) Put(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, exists := l.cache[key]
	if exists {
		l.deleteNode(n)
	}

	n = &node[K, V]{key: key, val: value}
	l.cache[key] = n
	l.insertNode(n)

	if len(l.cache) > l.capacity {
		l.evict()
	}
}

func (l *LRU[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, exists := l.cache[key]
	if !exists {
		var zero V
		return zero, false
	}

	l.deleteNode(n)
	l.insertNode(n)

	return n.val, true
}

// Take returns the value for key and drops it from the cache.
func (l *LRU[K, V]) Take(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, exists := l.cache[key]
	if !exists {
		var zero V
		return zero, false
	}

	l.deleteNode(n)
	delete(l.cache, key)

	return n.val, true
}

func (l *LRU[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.cache)
}

func (l *LRU[K, V]) evict() {
	lru := l.left.next
	l.deleteNode(lru)

	delete(l.cache, lru.key)
}

func (l *LRU[K, V]) insertNode(n *node[K, V]) {
	prev, next := l.right.prev, l.right

	n.prev = prev
	n.next = next

	prev.next = n
	next.prev = n
}

func (l *LRU[K, V]) deleteNode(n *node[K, V]) {
	prev, next := n.prev, n.next

	prev.next = next
	next.prev = prev
}
