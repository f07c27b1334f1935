package offline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"housing_sync/internal/domain"
)

const (
	keyCompare      = "compare:list"
	keyRecent       = "search:recent"
	keyThreads      = "threads"
	prefixMessages  = "messages:"
	MaxCompared     = 3
	MaxRecentSearch = 10
)

var listPrefixes = []string{keyCompare, keyRecent, keyThreads, prefixMessages}

var (
	ErrAlreadyCompared = errors.New("property is already in comparison")
	ErrComparisonFull  = fmt.Errorf("maximum %d properties can be compared at once", MaxCompared)
)

type lists struct {
	compare  []domain.Property
	recent   []domain.RecentSearch
	threads  []domain.MessageThread
	messages map[string][]domain.Message
}

func (l *lists) load(kv KV) error {
	l.reset()
	if err := getJSON(kv, keyCompare, &l.compare); err != nil {
		return err
	}
	if err := getJSON(kv, keyRecent, &l.recent); err != nil {
		return err
	}
	if err := getJSON(kv, keyThreads, &l.threads); err != nil {
		return err
	}
	return kv.Scan(prefixMessages, func(k string, v []byte) error {
		var msgs []domain.Message
		if err := json.Unmarshal(v, &msgs); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		l.messages[strings.TrimPrefix(k, prefixMessages)] = msgs
		return nil
	})
}

func (l *lists) reset() {
	l.compare = nil
	l.recent = nil
	l.threads = nil
	l.messages = make(map[string][]domain.Message)
}

func getJSON(kv KV, key string, dst any) error {
	raw, ok, err := kv.Get(key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// ---- comparison ----

// AddToComparison appends p. Duplicates and a fourth entry are rejected.
func (s *Store) AddToComparison(p domain.Property) ([]domain.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.compare {
		if c.ID == p.ID {
			return nil, ErrAlreadyCompared
		}
	}
	if len(s.compare) >= MaxCompared {
		return nil, ErrComparisonFull
	}
	next := append(clones(s.compare), p.Clone())
	if err := s.put(keyCompare, next); err != nil {
		return nil, err
	}
	s.compare = next
	return clones(next), nil
}

// RemoveFromComparison is a no-op for ids not in the list.
func (s *Store) RemoveFromComparison(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Property, 0, len(s.compare))
	for _, c := range s.compare {
		if c.ID != id {
			next = append(next, c)
		}
	}
	if len(next) == len(s.compare) {
		return nil
	}
	if err := s.put(keyCompare, next); err != nil {
		return err
	}
	s.compare = next
	return nil
}

func (s *Store) ClearComparison() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(keyCompare); err != nil {
		return err
	}
	s.compare = nil
	return nil
}

func (s *Store) Comparison() []domain.Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clones(s.compare)
}

func clones(in []domain.Property) []domain.Property {
	out := make([]domain.Property, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// ---- recent searches ----

// RecordSearch puts f at the front, dropping an older entry with the same
// filters and keeping at most MaxRecentSearch.
func (s *Store) RecordSearch(f domain.PropertyFilter, resultCount int) (domain.RecentSearch, error) {
	rs := domain.RecentSearch{ID: s.newID(), Filter: f, ResultCount: resultCount, Timestamp: s.now().UTC()}
	fk := filterKey(f)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.RecentSearch, 0, MaxRecentSearch)
	next = append(next, rs)
	for _, r := range s.recent {
		if len(next) == MaxRecentSearch {
			break
		}
		if filterKey(r.Filter) != fk {
			next = append(next, r)
		}
	}
	if err := s.put(keyRecent, next); err != nil {
		return domain.RecentSearch{}, err
	}
	s.recent = next
	return rs, nil
}

// RecentSearches is newest first.
func (s *Store) RecentSearches() []domain.RecentSearch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RecentSearch(nil), s.recent...)
}

func (s *Store) RemoveRecentSearch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.RecentSearch, 0, len(s.recent))
	for _, r := range s.recent {
		if r.ID != id {
			next = append(next, r)
		}
	}
	if len(next) == len(s.recent) {
		return nil
	}
	if err := s.put(keyRecent, next); err != nil {
		return err
	}
	s.recent = next
	return nil
}

func (s *Store) ClearRecentSearches() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(keyRecent); err != nil {
		return err
	}
	s.recent = nil
	return nil
}

func filterKey(f domain.PropertyFilter) string {
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))
	f.District = strings.ToLower(strings.TrimSpace(f.District))
	b, _ := json.Marshal(f)
	return string(b)
}
