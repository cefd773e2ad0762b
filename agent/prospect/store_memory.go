package prospect

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps records in process. Every read and write copies the record,
// so callers never alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...*Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]*Record, len(seed))}
	for _, rec := range seed {
		if rec == nil || rec.ClientID == "" {
			continue
		}
		cp := rec.Clone()
		cp.ID = cp.ClientID
		s.records[cp.ClientID] = cp
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	cp, err := prepareWrite(rec.ClientID, rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[cp.ClientID]; exists {
		return nil, ErrRecordExists
	}
	s.records[cp.ClientID] = cp
	return cp.Clone(), nil
}

func (s *MemoryStore) GetByID(_ context.Context, clientID string) (*Record, error) {
	id, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) GetByName(_ context.Context, fragment string) (*Record, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.sortedIDs() {
		if rec := s.records[id]; nameMatches(rec, fragment) {
			return rec.Clone(), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) Update(_ context.Context, clientID string, rec *Record) (*Record, error) {
	cp, err := prepareWrite(clientID, rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[cp.ClientID]; !ok {
		return nil, ErrRecordNotFound
	}
	s.records[cp.ClientID] = cp
	return cp.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, clientID string) error {
	id, err := normalizeID(clientID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListByIDPrefix(_ context.Context, prefix string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, id := range s.sortedIDs() {
		if strings.HasPrefix(id, prefix) {
			out = append(out, s.records[id].Clone())
		}
	}
	return out, nil
}

// sortedIDs must be called with s.mu held.
func (s *MemoryStore) sortedIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
