package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/dkhromov/urlmapper/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxWriteRetries      = 3    // Максимальное количество попыток записи
	processTimeout       = 10 * time.Second
)

// ClickProcessor асинхронно фиксирует клики: редирект кидает событие в канал
// и сразу отвечает посетителю, воркеры дотаскивают геолокацию и запись в БД.
type ClickProcessor interface {
	Start()
	Stop()
	Dispatch(event *models.ClickEvent)
}

// clickProcessor реализация на worker pool. Живёт на собственном контексте:
// отмена HTTP-запроса не отменяет уже отправленное событие.
type clickProcessor struct {
	clickRepo    repository.ClickRepository
	mappingRepo  repository.MappingRepository
	geo          GeoResolver
	logger       *zap.Logger
	clickChannel chan *models.ClickEvent
	workerCount  int
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// ClickProcessorOptions переопределяют размеры пула (нули — значения по умолчанию).
type ClickProcessorOptions struct {
	Workers    int
	BufferSize int
}

// NewClickProcessor создаёт новый процессор кликов
func NewClickProcessor(
	clickRepo repository.ClickRepository,
	mappingRepo repository.MappingRepository,
	geo GeoResolver,
	logger *zap.Logger,
	opts ClickProcessorOptions,
) ClickProcessor {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	buffer := opts.BufferSize
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}

	return &clickProcessor{
		clickRepo:    clickRepo,
		mappingRepo:  mappingRepo,
		geo:          geo,
		logger:       logger,
		clickChannel: make(chan *models.ClickEvent, buffer),
		workerCount:  workers,
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop дорабатывает уже принятые события и останавливает воркеров.
func (p *clickProcessor) Stop() {
	p.logger.Info("Остановка процессора кликов...")
	close(p.clickChannel)
	p.wg.Wait()
	p.cancel()
	p.logger.Info("Процессор кликов остановлен")
}

// Dispatch отправляет событие в пул, не блокируя вызывающего. Если буфер
// полон, событие теряется: аналитика best-effort, редирект важнее.
func (p *clickProcessor) Dispatch(event *models.ClickEvent) {
	select {
	case p.clickChannel <- event:
	default:
		p.logger.Warn("Буфер канала кликов заполнен, событие потеряно",
			zap.Int64("mapping_id", event.MappingID),
		)
	}
}

// worker обрабатывает события кликов из канала
func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	for event := range p.clickChannel {
		p.processClick(event)
	}

	p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
}

// processClick обрабатывает одно событие. Любая ошибка логируется и
// глотается: ответ посетителю давно ушёл, возвращать её некому.
func (p *clickProcessor) processClick(event *models.ClickEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, processTimeout)
	defer cancel()

	// Mapping могли удалить между редиректом и записью — это не ошибка,
	// редирект уже случился
	_, err := p.mappingRepo.GetByID(ctx, event.MappingID)
	if err != nil {
		if !errors.Is(err, repository.ErrMappingNotFound) {
			p.logger.Warn("Не удалось прочитать mapping для клика",
				zap.Int64("mapping_id", event.MappingID),
				zap.Error(err),
			)
		}
		return
	}

	country, city := p.geo.Resolve(ctx, event.IPAddress)

	click := &models.ClickLog{
		URLMappingID: event.MappingID,
		ClickedAt:    time.Now().UTC(),
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
		Country:      optional(country),
		City:         optional(city),
	}

	// Retry логика для записи в БД
	for i := 0; i < maxWriteRetries; i++ {
		if err = p.clickRepo.AppendClick(ctx, click); err == nil {
			return
		}
		if i < maxWriteRetries-1 {
			p.logger.Debug("Повторная попытка записи клика",
				zap.Int64("mapping_id", event.MappingID),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("Не удалось записать клик после всех попыток",
		zap.Int64("mapping_id", event.MappingID),
		zap.Error(err),
	)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
