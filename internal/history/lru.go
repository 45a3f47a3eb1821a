package history

import (
	"container/list"
	"sync"
)

// LRUStore is an in-memory LRU cache that writes through to a backing
// Store and falls back to it on a miss.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // front is most recently used
	items map[string]*list.Element
}

// NewLRUStore creates a cache holding up to cap sessions in front of
// back. Capacity below 1 is raised to 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save writes to the backing store first, then caches sess.
// A failed backing write leaves the cache unchanged.
func (s *LRUStore) Save(sess *Session) error {
	if err := s.back.Save(sess); err != nil {
		return err
	}
	s.mu.Lock()
	s.put(sess)
	s.mu.Unlock()
	return nil
}

// Load returns the cached session or loads and caches it from the
// backing store.
func (s *LRUStore) Load(id string) (*Session, error) {
	s.mu.Lock()
	if e, ok := s.items[id]; ok {
		s.order.MoveToFront(e)
		sess := e.Value.(*Session)
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	sess, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[id]; ok {
		// A concurrent Load or Save got there first.
		s.order.MoveToFront(e)
		return e.Value.(*Session), nil
	}
	s.put(sess)
	return sess, nil
}

// Len returns the number of cached sessions.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// put inserts or refreshes sess. The caller holds mu.
func (s *LRUStore) put(sess *Session) {
	if e, ok := s.items[sess.ID]; ok {
		e.Value = sess
		s.order.MoveToFront(e)
		return
	}
	s.items[sess.ID] = s.order.PushFront(sess)
	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Session).ID)
	}
}
