package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/dkhromov/urlmapper/internal/repository"
)

// MockMappingRepository implements repository.MappingRepository for testing
type MockMappingRepository struct {
	mu       sync.RWMutex
	mappings map[string]*models.URLMapping // short_code -> mapping
	nextID   int64
}

func NewMockMappingRepository() *MockMappingRepository {
	return &MockMappingRepository{
		mappings: make(map[string]*models.URLMapping),
		nextID:   1,
	}
}

func (m *MockMappingRepository) Create(ctx context.Context, mapping *models.URLMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mappings[mapping.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	mapping.ID = m.nextID
	m.nextID++
	stored := *mapping
	m.mappings[mapping.ShortCode] = &stored
	return nil
}

func (m *MockMappingRepository) GetByShortCode(ctx context.Context, code string) (*models.URLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, exists := m.mappings[code]
	if !exists {
		return nil, repository.ErrMappingNotFound
	}
	copied := *mapping
	return &copied, nil
}

func (m *MockMappingRepository) GetByID(ctx context.Context, id int64) (*models.URLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mapping := range m.mappings {
		if mapping.ID == id {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, repository.ErrMappingNotFound
}

func (m *MockMappingRepository) GetByOriginalURL(ctx context.Context, originalURL string, ownerID *string) (*models.URLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.URLMapping
	for _, mapping := range m.mappings {
		if mapping.OriginalURL != originalURL || !sameOwner(mapping.OwnerID, ownerID) {
			continue
		}
		if found == nil || mapping.CreatedAt.Before(found.CreatedAt) {
			found = mapping
		}
	}
	if found == nil {
		return nil, repository.ErrMappingNotFound
	}
	copied := *found
	return &copied, nil
}

func (m *MockMappingRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.URLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.URLMapping
	for _, mapping := range m.mappings {
		if mapping.OwnerID != nil && *mapping.OwnerID == ownerID {
			result = append(result, *mapping)
		}
	}
	// newest first
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockMappingRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.mappings[code]
	return exists, nil
}

func (m *MockMappingRepository) Delete(ctx context.Context, code string, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, exists := m.mappings[code]
	if !exists || mapping.OwnerID == nil || *mapping.OwnerID != ownerID {
		return repository.ErrMappingNotFound
	}
	delete(m.mappings, code)
	return nil
}

// Seed inserts a mapping directly, bypassing uniqueness checks.
func (m *MockMappingRepository) Seed(mapping *models.URLMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping.ID == 0 {
		mapping.ID = m.nextID
		m.nextID++
	}
	stored := *mapping
	m.mappings[mapping.ShortCode] = &stored
}

func (m *MockMappingRepository) applyClick(mappingID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mapping := range m.mappings {
		if mapping.ID == mappingID {
			mapping.ClickCount++
			t := at
			mapping.LastAccessedAt = &t
			return
		}
	}
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MockClickRepository implements repository.ClickRepository for testing.
// Link it to a MockMappingRepository so AppendClick also bumps the counter,
// mirroring the transactional behavior of the real store.
type MockClickRepository struct {
	mu       sync.RWMutex
	clicks   map[int64][]*models.ClickLog // mapping_id -> clicks
	mappings *MockMappingRepository
	nextID   int64
}

func NewMockClickRepository(mappings *MockMappingRepository) *MockClickRepository {
	return &MockClickRepository{
		clicks:   make(map[int64][]*models.ClickLog),
		mappings: mappings,
		nextID:   1,
	}
}

func (m *MockClickRepository) AppendClick(ctx context.Context, click *models.ClickLog) error {
	m.mu.Lock()
	click.ID = m.nextID
	m.nextID++
	stored := *click
	m.clicks[click.URLMappingID] = append(m.clicks[click.URLMappingID], &stored)
	m.mu.Unlock()

	if m.mappings != nil {
		m.mappings.applyClick(click.URLMappingID, click.ClickedAt)
	}
	return nil
}

func (m *MockClickRepository) RecentClicks(ctx context.Context, mappingID int64, limit int) ([]models.ClickLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clicks := m.clicks[mappingID]
	result := make([]models.ClickLog, 0, limit)
	// newest first
	for i := len(clicks) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, *clicks[i])
	}
	return result, nil
}

func (m *MockClickRepository) CountryCounts(ctx context.Context, mappingID int64, limit int) ([]models.CountryCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	var order []string
	for _, click := range m.clicks[mappingID] {
		if click.Country == nil {
			continue
		}
		if _, seen := counts[*click.Country]; !seen {
			order = append(order, *click.Country)
		}
		counts[*click.Country]++
	}

	// count desc, ties keep first-seen order (same rule as the SQL aggregate)
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	result := make([]models.CountryCount, 0, len(order))
	for _, country := range order {
		if len(result) == limit {
			break
		}
		result = append(result, models.CountryCount{Country: country, Count: counts[country]})
	}
	return result, nil
}

// CountFor returns the number of stored click rows for a mapping.
func (m *MockClickRepository) CountFor(mappingID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clicks[mappingID])
}

// MockGeoResolver implements service.GeoResolver for testing
type MockGeoResolver struct {
	mu        sync.Mutex
	Country   string
	City      string
	Delay     time.Duration
	callCount int
}

func (m *MockGeoResolver) Resolve(ctx context.Context, ip string) (string, string) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ""
		case <-time.After(m.Delay):
		}
	}
	return m.Country, m.City
}

func (m *MockGeoResolver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
