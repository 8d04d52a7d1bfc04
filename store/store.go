package store

import "sync"

// Reader is the read side of the store
type Reader interface {
	Get(username string) (string, bool)
	Len() int
}

// Store is an in-memory username -> SSN mapping, safe for concurrent use.
// Nothing is written to disk, contents are lost on restart.
type Store struct {
	mx   sync.RWMutex
	data map[string]string
}

func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(username string) (string, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	ssn, ok := s.data[username]
	return ssn, ok
}

// Upsert inserts or overwrites the SSN stored for username
func (s *Store) Upsert(username, ssn string) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.data[username] = ssn
}

func (s *Store) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()

	return len(s.data)
}

// Snapshot returns a copy of the current contents
func (s *Store) Snapshot() map[string]string {
	s.mx.RLock()
	defer s.mx.RUnlock()

	var res = make(map[string]string, len(s.data))
	for k, v := range s.data {
		res[k] = v
	}

	return res
}
