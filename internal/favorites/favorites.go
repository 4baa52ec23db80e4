// Package favorites keeps per-owner favorite places, saved addresses and
// recent searches in the kv repository.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"placemap/internal/core"
	"placemap/internal/geo"
	"placemap/internal/kv"
)

// MaxRecentSearches is how many distinct searches are remembered per owner.
const MaxRecentSearches = 10

// ErrNotFound is returned when removing an entry that does not exist.
var ErrNotFound = errors.New("favorites: not found")

// ErrInvalid wraps every input validation failure.
var ErrInvalid = errors.New("favorites: invalid input")

// Favorite is a place the owner starred.
type Favorite struct {
	ID          string           `json:"id"`
	PlaceID     string           `json:"place_id,omitempty"`
	Name        string           `json:"name"`
	Address     string           `json:"address,omitempty"`
	Coordinates core.Coordinates `json:"coordinates"`
	Category    string           `json:"category,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AddressLabel classifies a saved address.
type AddressLabel string

const (
	LabelHome  AddressLabel = "home"
	LabelWork  AddressLabel = "work"
	LabelOther AddressLabel = "other"
)

// SavedAddress is a named address the owner reuses as a search origin.
type SavedAddress struct {
	ID          string           `json:"id"`
	Label       AddressLabel     `json:"label"`
	Name        string           `json:"name,omitempty"`
	Address     string           `json:"address"`
	Coordinates core.Coordinates `json:"coordinates"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RecentSearch is a past search kept for offline reuse.
type RecentSearch struct {
	Query      string           `json:"query"`
	Center     core.Coordinates `json:"center"`
	Category   string           `json:"category,omitempty"`
	SearchedAt time.Time        `json:"searched_at"`
}

// Service manages favorites for every owner. It is safe for concurrent use.
type Service struct {
	repo kv.Repository
	// serializes read-modify-write cycles on the per-owner lists
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewService creates a Service on top of repo.
func NewService(repo kv.Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

func favoritesKey(owner string) string { return "favorites:" + owner }
func addressesKey(owner string) string { return "addresses:" + owner }
func searchesKey(owner string) string  { return "searches:" + owner }

// loadList reads a JSON list; a missing key is an empty list.
func loadList[T any](ctx context.Context, repo kv.Repository, key string) ([]T, error) {
	items, err := kv.Get[[]T](ctx, repo, key)
	if errors.Is(err, kv.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Add stores a favorite. A favorite with the same name at the same rounded
// coordinates is not added twice; the existing entry is returned instead.
func (s *Service) Add(ctx context.Context, owner string, f Favorite) (Favorite, error) {
	if strings.TrimSpace(f.Name) == "" {
		return Favorite{}, fmt.Errorf("%w: favorite name is required", ErrInvalid)
	}
	if err := f.Coordinates.Validate(); err != nil {
		return Favorite{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := loadList[Favorite](ctx, s.repo, favoritesKey(owner))
	if err != nil {
		return Favorite{}, err
	}
	for _, existing := range list {
		if sameFavorite(existing, f) {
			return existing, nil
		}
	}

	f.ID = s.newID()
	f.CreatedAt = s.now().UTC()
	list = append([]Favorite{f}, list...)
	if err := kv.Set(ctx, s.repo, favoritesKey(owner), list); err != nil {
		return Favorite{}, err
	}
	return f, nil
}

func sameFavorite(a, b Favorite) bool {
	return strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) &&
		geo.PointKey(a.Coordinates) == geo.PointKey(b.Coordinates)
}

// List returns the owner's favorites, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]Favorite, error) {
	return loadList[Favorite](ctx, s.repo, favoritesKey(owner))
}

// Remove deletes a favorite by ID.
func (s *Service) Remove(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeByID(ctx, s.repo, favoritesKey(owner), id, func(f Favorite) string { return f.ID })
}

// SaveAddress stores an address. Home and work are singletons: saving a new
// one replaces the previous entry with that label.
func (s *Service) SaveAddress(ctx context.Context, owner string, a SavedAddress) (SavedAddress, error) {
	switch a.Label {
	case LabelHome, LabelWork, LabelOther:
	case "":
		a.Label = LabelOther
	default:
		return SavedAddress{}, fmt.Errorf("%w: unknown address label %q", ErrInvalid, a.Label)
	}
	if strings.TrimSpace(a.Address) == "" {
		return SavedAddress{}, fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if err := a.Coordinates.Validate(); err != nil {
		return SavedAddress{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := loadList[SavedAddress](ctx, s.repo, addressesKey(owner))
	if err != nil {
		return SavedAddress{}, err
	}
	if a.Label != LabelOther {
		kept := list[:0]
		for _, existing := range list {
			if existing.Label != a.Label {
				kept = append(kept, existing)
			}
		}
		list = kept
	}

	a.ID = s.newID()
	a.CreatedAt = s.now().UTC()
	list = append(list, a)
	if err := kv.Set(ctx, s.repo, addressesKey(owner), list); err != nil {
		return SavedAddress{}, err
	}
	return a, nil
}

// ListAddresses returns the owner's saved addresses in insertion order.
func (s *Service) ListAddresses(ctx context.Context, owner string) ([]SavedAddress, error) {
	return loadList[SavedAddress](ctx, s.repo, addressesKey(owner))
}

// RemoveAddress deletes a saved address by ID.
func (s *Service) RemoveAddress(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeByID(ctx, s.repo, addressesKey(owner), id, func(a SavedAddress) string { return a.ID })
}

// RecordSearch remembers a search. Repeating a search moves it to the front;
// only the last MaxRecentSearches distinct searches are kept.
func (s *Service) RecordSearch(ctx context.Context, owner string, rs RecentSearch) error {
	rs.Query = strings.TrimSpace(rs.Query)
	if rs.SearchedAt.IsZero() {
		rs.SearchedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := loadList[RecentSearch](ctx, s.repo, searchesKey(owner))
	if err != nil {
		return err
	}
	out := make([]RecentSearch, 0, MaxRecentSearches)
	out = append(out, rs)
	for _, prev := range list {
		if len(out) == MaxRecentSearches {
			break
		}
		if sameSearch(prev, rs) {
			continue
		}
		out = append(out, prev)
	}
	return kv.Set(ctx, s.repo, searchesKey(owner), out)
}

func sameSearch(a, b RecentSearch) bool {
	return strings.EqualFold(a.Query, b.Query) &&
		strings.EqualFold(a.Category, b.Category) &&
		geo.PointKey(a.Center) == geo.PointKey(b.Center)
}

// RecentSearches returns the owner's recent searches, newest first.
func (s *Service) RecentSearches(ctx context.Context, owner string) ([]RecentSearch, error) {
	return loadList[RecentSearch](ctx, s.repo, searchesKey(owner))
}

func removeByID[T any](ctx context.Context, repo kv.Repository, key, id string, idOf func(T) string) error {
	list, err := loadList[T](ctx, repo, key)
	if err != nil {
		return err
	}
	for i, item := range list {
		if idOf(item) == id {
			list = append(list[:i], list[i+1:]...)
			return kv.Set(ctx, repo, key, list)
		}
	}
	return ErrNotFound
}
