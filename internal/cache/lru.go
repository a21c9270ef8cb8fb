package cache

// node is an element of the intrusive LRU list.
type node[K comparable] struct {
	key        K
	prev, next *node[K]
}

// lru is a doubly-linked recency list: head is the most recently used key.
// It is not safe for concurrent use; the owning shard holds the lock.
type lru[K comparable] struct {
	head, tail *node[K]
	n          int
}

func (l *lru[K]) pushFront(key K) *node[K] {
	nd := &node[K]{key: key, next: l.head}
	if l.head != nil {
		l.head.prev = nd
	}
	l.head = nd
	if l.tail == nil {
		l.tail = nd
	}
	l.n++
	return nd
}

func (l *lru[K]) touch(nd *node[K]) {
	if nd == l.head {
		return
	}
	l.unlink(nd)
	nd.next = l.head
	if l.head != nil {
		l.head.prev = nd
	}
	l.head = nd
	if l.tail == nil {
		l.tail = nd
	}
	l.n++
}

func (l *lru[K]) popBack() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	nd := l.tail
	l.unlink(nd)
	return nd.key, true
}

func (l *lru[K]) unlink(nd *node[K]) {
	if nd.prev != nil {
		nd.prev.next = nd.next
	} else {
		l.head = nd.next
	}
	if nd.next != nil {
		nd.next.prev = nd.prev
	} else {
		l.tail = nd.prev
	}
	nd.prev, nd.next = nil, nil
	l.n--
}
