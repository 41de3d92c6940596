package catalog

import (
	"sort"
	"sync"
	"time"

	"relayd/pkg/types"
)

// Store holds catalog entries keyed by model id.
type Store struct {
	mu      sync.Mutex
	entries map[string]types.CatalogEntry
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]types.CatalogEntry), now: time.Now}
}

// SeedFromDescriptors adds an exposed, healthy entry for each new descriptor
// (hidden-tagged ones start unexposed) and drops entries whose descriptor is gone.
// Existing entries keep their state.
func (s *Store) SeedFromDescriptors(descs []types.Descriptor) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		seen[d.ID] = true
		if _, ok := s.entries[d.ID]; ok {
			continue
		}
		s.entries[d.ID] = types.CatalogEntry{
			ModelID:     d.ID,
			DisplayName: d.DisplayName,
			Exposed:     !d.HasTag("hidden"),
			Health:      types.HealthOK,
			LastChecked: now,
		}
	}
	for id := range s.entries {
		if !seen[id] {
			delete(s.entries, id)
		}
	}
}

// Upsert replaces the entry for e.ModelID, stamping LastChecked when unset.
func (s *Store) Upsert(e types.CatalogEntry) {
	if e.LastChecked.IsZero() {
		e.LastChecked = s.now()
	}
	s.mu.Lock()
	s.entries[e.ModelID] = e
	s.mu.Unlock()
}

// Get returns the entry for id.
func (s *Store) Get(id string) (types.CatalogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// Entries returns all entries ordered by model id.
func (s *Store) Entries() []types.CatalogEntry {
	s.mu.Lock()
	out := make([]types.CatalogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}
