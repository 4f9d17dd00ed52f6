// users.go — сопоставление JWT-субъекта с локальной записью пользователя.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// Identity — данные пользователя из проверенного JWT.
type Identity struct {
	// Subject — claim sub
	Subject string
	Email   string
	Name    string
	// Role — роль, вычисленная из групп IdP
	Role string
}

// UserService — резолвинг пользователей по JWT с кэшированием.
type UserService struct {
	repo   repository.UserRepository
	cache  *TTLCache[string, *model.User]
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей; ttl — время жизни записи в кэше.
func NewUserService(repo repository.UserRepository, ttl time.Duration, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		cache:  NewTTLCache[string, *model.User]("user", 4096, ttl),
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// Resolve возвращает локального пользователя для JWT-субъекта, создавая
// или обновляя запись (email, имя) при необходимости.
func (s *UserService) Resolve(ctx context.Context, id Identity) (*model.User, error) {
	if id.Subject == "" {
		return nil, fmt.Errorf("%w: пустой sub в токене", ErrUnauthorized)
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))

	if u, ok := s.cache.Get(id.Subject); ok && u.Email == email && u.Name == id.Name {
		return u, nil
	}

	u := &model.User{
		ExternalID: id.Subject,
		Email:      email,
		Name:       id.Name,
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("сохранение пользователя %s: %w", id.Subject, fromRepo(err))
	}
	s.cache.Set(id.Subject, u)

	s.logger.Debug("Пользователь синхронизирован",
		slog.Int64("user_id", u.ID),
		slog.String("sub", id.Subject),
	)
	return u, nil
}

// GetByID возвращает пользователя по внутреннему ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fromRepo(err)
	}
	return u, nil
}
