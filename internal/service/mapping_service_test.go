package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/dkhromov/urlmapper/internal/repository"
	"github.com/dkhromov/urlmapper/internal/service"
	"github.com/dkhromov/urlmapper/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestService создаёт тестовое окружение с моковыми репозиториями
func setupTestService() (service.MappingService, *mocks.MockMappingRepository, *mocks.MockClickRepository) {
	mappingRepo := mocks.NewMockMappingRepository()
	clickRepo := mocks.NewMockClickRepository(mappingRepo)
	logger, _ := zap.NewDevelopment()
	svc := service.NewMappingService(mappingRepo, clickRepo, service.NewCodeGenerator(nil), logger)
	return svc, mappingRepo, clickRepo
}

func strPtr(s string) *string { return &s }

// TestMappingService_Create_Success проверяет успешное создание ссылки
func TestMappingService_Create_Success(t *testing.T) {
	svc, _, _ := setupTestService()

	mapping, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/test",
	})

	require.NoError(t, err)
	assert.Len(t, mapping.ShortCode, 7)
	assert.Equal(t, "https://example.com/test", mapping.OriginalURL)
	assert.NotZero(t, mapping.ID)
	assert.Nil(t, mapping.OwnerID)
}

// TestMappingService_Create_WithCustomCode проверяет создание с кастомным кодом
func TestMappingService_Create_WithCustomCode(t *testing.T) {
	svc, _, _ := setupTestService()

	mapping, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/test",
		CustomCode:  "My-Code_1",
	})

	require.NoError(t, err)
	assert.Equal(t, "My-Code_1", mapping.ShortCode)
}

// TestMappingService_Create_InvalidCustomCode проверяет валидацию кастомного кода
func TestMappingService_Create_InvalidCustomCode(t *testing.T) {
	svc, _, _ := setupTestService()

	_, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/test",
		CustomCode:  "ab",
	})

	assert.ErrorIs(t, err, service.ErrInvalidCode)
}

// TestMappingService_Create_CustomCodeTaken проверяет конфликт занятого кода
func TestMappingService_Create_CustomCodeTaken(t *testing.T) {
	svc, _, _ := setupTestService()

	_, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/first",
		CustomCode:  "my-code",
	})
	require.NoError(t, err)

	_, err = svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/second",
		CustomCode:  "my-code",
	})
	assert.ErrorIs(t, err, service.ErrCodeTaken)
}

// TestMappingService_Create_Normalization проверяет нормализацию URL:
// без схемы подставляется https://, присутствующая схема не трогается
func TestMappingService_Create_Normalization(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"example.com/page", "https://example.com/page"},
		{"HTTP://Example.com", "HTTP://Example.com"},
		{"https://example.com", "https://example.com"},
		{"  example.com  ", "https://example.com"},
	}

	for _, tt := range tests {
		svc, _, _ := setupTestService()
		mapping, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
			OriginalURL: tt.input,
		})
		require.NoError(t, err, "URL должен быть принят: %q", tt.input)
		assert.Equal(t, tt.expected, mapping.OriginalURL)
	}
}

// TestMappingService_Create_InvalidURL проверяет отклонение мусорных URL
func TestMappingService_Create_InvalidURL(t *testing.T) {
	svc, _, _ := setupTestService()

	invalid := []string{
		"",
		"   ",
		"https://" + strings.Repeat("a", 2100) + ".com",
	}

	for _, raw := range invalid {
		_, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
			OriginalURL: raw,
		})
		assert.ErrorIs(t, err, service.ErrInvalidURL, "URL должен быть отклонён: %q", raw)
	}
}

// TestMappingService_Create_Idempotent проверяет, что повторная отправка
// того же URL тем же владельцем возвращает существующий mapping
func TestMappingService_Create_Idempotent(t *testing.T) {
	svc, _, _ := setupTestService()
	owner := strPtr("user-1")

	first, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "example.com/page",
		OwnerID:     owner,
	})
	require.NoError(t, err)

	second, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "example.com/page",
		OwnerID:     owner,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ShortCode, second.ShortCode)
}

// TestMappingService_Create_IdempotentAnonymous проверяет идемпотентность
// и для анонимных создателей
func TestMappingService_Create_IdempotentAnonymous(t *testing.T) {
	svc, _, _ := setupTestService()

	first, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/anon",
	})
	require.NoError(t, err)

	second, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/anon",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

// TestMappingService_Create_DifferentOwners проверяет, что разные владельцы
// получают разные mapping для одного URL
func TestMappingService_Create_DifferentOwners(t *testing.T) {
	svc, _, _ := setupTestService()

	first, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/shared",
		OwnerID:     strPtr("user-1"),
	})
	require.NoError(t, err)

	second, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/shared",
		OwnerID:     strPtr("user-2"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

// conflictingRepo имитирует гонку check-then-insert: первые N вставок
// отбиваются unique-индексом
type conflictingRepo struct {
	*mocks.MockMappingRepository
	mu            sync.Mutex
	conflictsLeft int
}

func (r *conflictingRepo) Create(ctx context.Context, mapping *models.URLMapping) error {
	r.mu.Lock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		r.mu.Unlock()
		return repository.ErrCodeExists
	}
	r.mu.Unlock()
	return r.MockMappingRepository.Create(ctx, mapping)
}

// TestMappingService_Create_RetriesOnInsertRace проверяет, что проигранная
// гонка на вставке лечится перегенерацией кода, а не ошибкой
func TestMappingService_Create_RetriesOnInsertRace(t *testing.T) {
	mappingRepo := &conflictingRepo{
		MockMappingRepository: mocks.NewMockMappingRepository(),
		conflictsLeft:         2,
	}
	clickRepo := mocks.NewMockClickRepository(mappingRepo.MockMappingRepository)
	logger, _ := zap.NewDevelopment()
	svc := service.NewMappingService(mappingRepo, clickRepo, service.NewCodeGenerator(nil), logger)

	mapping, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/race",
	})

	require.NoError(t, err)
	assert.Len(t, mapping.ShortCode, 7)
}

// TestMappingService_Create_RetryBudgetExhausted проверяет, что после
// исчерпания попыток возвращается общая ошибка
func TestMappingService_Create_RetryBudgetExhausted(t *testing.T) {
	mappingRepo := &conflictingRepo{
		MockMappingRepository: mocks.NewMockMappingRepository(),
		conflictsLeft:         100,
	}
	clickRepo := mocks.NewMockClickRepository(mappingRepo.MockMappingRepository)
	logger, _ := zap.NewDevelopment()
	svc := service.NewMappingService(mappingRepo, clickRepo, service.NewCodeGenerator(nil), logger)

	_, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/doom",
	})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrCodeTaken)
}

// TestMappingService_Create_Concurrent проверяет уникальность кодов при
// параллельном создании
func TestMappingService_Create_Concurrent(t *testing.T) {
	svc, _, _ := setupTestService()

	const n = 20
	var wg sync.WaitGroup
	codes := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			mapping, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
				OriginalURL: fmt.Sprintf("https://example.com/page-%d", id),
			})
			assert.NoError(t, err)
			codes <- mapping.ShortCode
		}(i)
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "коды не должны повторяться: %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)
}

// TestMappingService_Resolve проверяет горячий путь редиректа
func TestMappingService_Resolve(t *testing.T) {
	svc, _, _ := setupTestService()

	created, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/target",
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), created.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/target", resolved.OriginalURL)

	_, err = svc.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// TestMappingService_ListByOwner проверяет список ссылок владельца,
// новые первыми
func TestMappingService_ListByOwner(t *testing.T) {
	svc, mappingRepo, _ := setupTestService()
	owner := "user-1"

	now := time.Now()
	mappingRepo.Seed(&models.URLMapping{ShortCode: "older12", OriginalURL: "https://example.com/1", CreatedAt: now.Add(-time.Hour), OwnerID: &owner})
	mappingRepo.Seed(&models.URLMapping{ShortCode: "newer12", OriginalURL: "https://example.com/2", CreatedAt: now, OwnerID: &owner})
	mappingRepo.Seed(&models.URLMapping{ShortCode: "foreign", OriginalURL: "https://example.com/3", CreatedAt: now, OwnerID: strPtr("user-2")})

	list, err := svc.ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer12", list[0].ShortCode)
	assert.Equal(t, "older12", list[1].ShortCode)
}

// TestMappingService_Delete_Owner проверяет удаление владельцем
func TestMappingService_Delete_Owner(t *testing.T) {
	svc, _, _ := setupTestService()
	owner := strPtr("user-1")

	created, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/mine",
		OwnerID:     owner,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMapping(context.Background(), created.ShortCode, *owner))

	_, err = svc.Resolve(context.Background(), created.ShortCode)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// TestMappingService_Delete_NonOwner проверяет, что чужой или анонимный
// вызов не удаляет mapping и не раскрывает его существование
func TestMappingService_Delete_NonOwner(t *testing.T) {
	svc, _, _ := setupTestService()

	created, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/protected",
		OwnerID:     strPtr("user-1"),
	})
	require.NoError(t, err)

	err = svc.DeleteMapping(context.Background(), created.ShortCode, "user-2")
	assert.ErrorIs(t, err, service.ErrNotFound)

	// Mapping остаётся доступным
	resolved, err := svc.Resolve(context.Background(), created.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)
}

// TestMappingService_GetStatistics проверяет сборку отчёта: порядок стран
// по убыванию, равные — в порядке первого появления
func TestMappingService_GetStatistics(t *testing.T) {
	svc, _, clickRepo := setupTestService()

	created, err := svc.CreateMapping(context.Background(), &models.CreateMappingInput{
		OriginalURL: "https://example.com/stats",
	})
	require.NoError(t, err)

	countries := []string{"US", "US", "DE", "US", "FR"}
	base := time.Now().Add(-time.Hour)
	for i, country := range countries {
		c := country
		err := clickRepo.AppendClick(context.Background(), &models.ClickLog{
			URLMappingID: created.ID,
			ClickedAt:    base.Add(time.Duration(i) * time.Minute),
			IPAddress:    fmt.Sprintf("8.8.8.%d", i),
			Country:      &c,
		})
		require.NoError(t, err)
	}

	stats, err := svc.GetStatistics(context.Background(), created.ShortCode)
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.TotalClicks)
	assert.Len(t, stats.RecentClicks, 5)
	assert.Equal(t, map[string]int64{"US": 3, "DE": 1, "FR": 1}, stats.ClicksByCountry)
	assert.Equal(t, []string{"US", "DE", "FR"}, stats.CountryOrder)
	require.NotNil(t, stats.LastAccessedAt)
}

// TestMappingService_GetStatistics_NotFound проверяет отчёт по чужому коду
func TestMappingService_GetStatistics_NotFound(t *testing.T) {
	svc, _, _ := setupTestService()

	_, err := svc.GetStatistics(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
