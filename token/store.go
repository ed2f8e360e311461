package token

import "sync"

// Kind names one of the two credential slots.
type Kind string

const (
	// Access is the short-lived credential attached to every call.
	Access Kind = "accessToken"
	// Refresh is the long-lived credential used only to obtain a new access credential.
	Refresh Kind = "refreshToken"
)

// Kinds lists every slot a Store holds.
var Kinds = []Kind{Access, Refresh}

// Store persists the access and refresh credentials as two independent slots.
// Values are opaque; an absent slot is distinct from an empty string.
// Implementations never fail the caller: if the backing storage is
// unavailable they degrade to in-memory behaviour.
type Store interface {
	Save(kind Kind, value string)
	Load(kind Kind) (string, bool)
	Clear()
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	values map[Kind]string
	mu     sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[Kind]string),
	}
}

func (s *MemoryStore) Save(kind Kind, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[kind] = value
}

func (s *MemoryStore) Load(kind Kind) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[kind]
	return v, ok
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

// Snapshot returns a copy of the held slots.
func (s *MemoryStore) Snapshot() map[Kind]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Kind]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
