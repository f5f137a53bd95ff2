package store

import (
	"sort"
	"sync"

	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
)

// InmemStore keeps encoded records in a map. Records are stored encoded so
// that mutators always work on a private copy, exactly like the persistent
// backends.
type InmemStore struct {
	*outbox.InmemJournal

	mu      sync.RWMutex
	records map[string][]byte
	locks   recordLocks
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		InmemJournal: outbox.NewInmemJournal(),
		records:      make(map[string][]byte),
	}
}

// Register implements the Store interface.
func (s *InmemStore) Register(username string) error {
	data, err := social.NewUserRecord().Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[username]; ok {
		return alreadyExists(username)
	}

	s.records[username] = data

	return nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(username string) (*social.UserRecord, error) {
	s.mu.RLock()
	data, ok := s.records[username]
	s.mu.RUnlock()

	if !ok {
		return nil, notFound(username)
	}

	u := new(social.UserRecord)
	if err := u.Unmarshal(data); err != nil {
		return nil, err
	}

	return u, nil
}

// Update implements the Store interface.
func (s *InmemStore) Update(username string, fn func(*social.UserRecord) error) error {
	unlock := s.locks.lock(username)
	defer unlock()

	u, err := s.Get(username)
	if err != nil {
		return err
	}

	if err := fn(u); err != nil {
		return err
	}

	data, err := u.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[username] = data
	s.mu.Unlock()

	return nil
}

// Usernames implements the Store interface.
func (s *InmemStore) Usernames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]string, 0, len(s.records))
	for u := range s.records {
		res = append(res, u)
	}
	sort.Strings(res)

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
