// category.go — справочник категорий документов с TTL-кэшем.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// categoryListKey — ключ кэша для списка активных категорий.
const categoryListKey int64 = 0

// CategoryService — чтение категорий документов.
// Список и отдельные категории кэшируются на ttl.
type CategoryService struct {
	repo   repository.CategoryRepository
	list   *TTLCache[int64, []*model.Category]
	byID   *TTLCache[int64, *model.Category]
	logger *slog.Logger
}

// NewCategoryService создаёт сервис категорий.
func NewCategoryService(repo repository.CategoryRepository, ttl time.Duration, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		repo:   repo,
		list:   NewTTLCache[int64, []*model.Category]("category_list", 1, ttl),
		byID:   NewTTLCache[int64, *model.Category]("category", 256, ttl),
		logger: logger.With(slog.String("component", "category_service")),
	}
}

// List возвращает активные категории в порядке сортировки.
func (s *CategoryService) List(ctx context.Context) ([]*model.Category, error) {
	if cats, ok := s.list.Get(categoryListKey); ok {
		return cats, nil
	}
	cats, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("список категорий: %w", err)
	}
	s.list.Set(categoryListKey, cats)
	return cats, nil
}

// Get возвращает категорию по ID, включая неактивные.
func (s *CategoryService) Get(ctx context.Context, id int64) (*model.Category, error) {
	if c, ok := s.byID.Get(id); ok {
		return c, nil
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: категория %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("категория %d: %w", id, err)
	}
	s.byID.Set(id, c)
	return c, nil
}

// Invalidate сбрасывает кэш категорий.
func (s *CategoryService) Invalidate() {
	s.list.Purge()
	s.byID.Purge()
	s.logger.Debug("Кэш категорий сброшен")
}
