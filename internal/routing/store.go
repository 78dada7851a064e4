package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store persists path entries keyed by PairKey or UnitKey.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) StoreStats
}

// StoreStats describes the contents of a path store.
type StoreStats struct {
	Backend  string        `json:"backend"`
	Entries  int           `json:"entries"`
	ByState  map[State]int `json:"byState,omitempty"`
	Capacity int           `json:"capacity,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty"`
	// Error is set when the backend could not be read.
	Error string `json:"error,omitempty"`
}

// PairKey identifies the path between two coordinates for a tier.
// Coordinates are rounded to ~1m so the key survives float noise in re-ingested data.
func PairKey(tier Tier, from, to Coordinate) string {
	return fmt.Sprintf("%s:pair:%.5f,%.5f:%.5f,%.5f", tier, from.Lat, from.Lon, to.Lat, to.Lon)
}

// UnitKey identifies the path through an ordered waypoint list for a tier.
func UnitKey(tier Tier, unitID string, points []Coordinate) string {
	h := sha256.New()
	for _, p := range points {
		fmt.Fprintf(h, "%.5f,%.5f;", p.Lat, p.Lon)
	}
	return fmt.Sprintf("%s:unit:%s:%s", tier, unitID, hex.EncodeToString(h.Sum(nil))[:16])
}

// Default MemoryStore sizing.
const (
	DefaultStoreSize = 4096
	DefaultStoreTTL  = 6 * time.Hour
)

// MemoryStore is an in-process Store with LRU eviction and per-entry expiry.
type MemoryStore struct {
	lru  *expirable.LRU[string, Entry]
	size int
	ttl  time.Duration
}

// NewMemoryStore creates a MemoryStore. Non-positive arguments select the defaults.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultStoreSize
	}
	if ttl <= 0 {
		ttl = DefaultStoreTTL
	}
	return &MemoryStore{
		lru:  expirable.NewLRU[string, Entry](size, nil, ttl),
		size: size,
		ttl:  ttl,
	}
}

// Get returns the entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := s.lru.Get(key)
	return e, ok, nil
}

// Put stores e under key, evicting the least recently used entry when full.
func (s *MemoryStore) Put(_ context.Context, key string, e Entry) error {
	s.lru.Add(key, e)
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

// Stats counts live entries by state.
func (s *MemoryStore) Stats(_ context.Context) StoreStats {
	byState := make(map[State]int)
	values := s.lru.Values()
	for _, e := range values {
		byState[e.State]++
	}
	return StoreStats{
		Backend:  "memory",
		Entries:  len(values),
		ByState:  byState,
		Capacity: s.size,
		TTL:      s.ttl,
	}
}
