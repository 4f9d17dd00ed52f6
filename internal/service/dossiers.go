// dossiers.go — создание dossier и управление постоянным доступом пользователей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// dossierNumberAttempts — попыток сгенерировать уникальный номер dossier.
const dossierNumberAttempts = 3

// DossierService — dossier пользователя и доступ к ним.
type DossierService struct {
	repo   repository.DossierRepository
	users  repository.UserRepository
	gate   *AccessGate
	logger *slog.Logger
}

// NewDossierService создаёт сервис dossier.
func NewDossierService(
	repo repository.DossierRepository,
	users repository.UserRepository,
	gate *AccessGate,
	logger *slog.Logger,
) *DossierService {
	return &DossierService{
		repo:   repo,
		users:  users,
		gate:   gate,
		logger: logger.With(slog.String("component", "dossier_service")),
	}
}

// newDossierNumber — номер вида D-1A2B3C4D.
func newDossierNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "D-" + strings.ToUpper(id[:8])
}

// Create создаёт dossier, владелец — текущий пользователь.
func (s *DossierService) Create(ctx context.Context, p *Principal) (*model.Dossier, error) {
	if !p.IsUser() {
		return nil, ErrForbidden
	}

	var lastErr error
	for range dossierNumberAttempts {
		d := &model.Dossier{
			DossierNumber: newDossierNumber(),
			OwnerID:       p.User.ID,
			Status:        model.DossierStatusActive,
		}
		err := s.repo.Create(ctx, d)
		if err == nil {
			s.logger.Info("Dossier создан",
				slog.Int64("dossier_id", d.ID),
				slog.String("number", d.DossierNumber),
				slog.Int64("owner_id", d.OwnerID),
			)
			return d, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("создание dossier: %w", fromRepo(err))
		}
		lastErr = err
	}
	return nil, fmt.Errorf("создание dossier: %w", fromRepo(lastErr))
}

// ListForUser — собственные и открытые пользователю dossier.
func (s *DossierService) ListForUser(ctx context.Context, p *Principal) ([]*model.Dossier, error) {
	if !p.IsUser() {
		return nil, ErrForbidden
	}
	return s.repo.ListForUser(ctx, p.User.ID)
}

// Get возвращает dossier владельцу или пользователю с доступом.
func (s *DossierService) Get(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID int64) (*model.Dossier, error) {
	if err := s.gate.AuthorizeDossier(ctx, p, dossierID, model.CapabilityView, meta); err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, dossierID)
	if err != nil {
		return nil, fromRepo(err)
	}
	return d, nil
}

// Share открывает доступ к dossier пользователю с указанным email.
func (s *DossierService) Share(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID int64, email string) (*model.User, error) {
	if err := s.gate.AuthorizeOwner(ctx, p, dossierID, meta); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationError("geen gebruiker gevonden met e-mailadres %s", email)
		}
		return nil, err
	}
	if u.ID == p.User.ID {
		return nil, validationError("u bent al eigenaar van dit dossier")
	}

	if err := s.repo.AddShare(ctx, dossierID, u.ID); err != nil {
		return nil, fmt.Errorf("открытие доступа к dossier %d: %w", dossierID, fromRepo(err))
	}

	s.logger.Info("Доступ к dossier открыт",
		slog.Int64("dossier_id", dossierID),
		slog.Int64("user_id", u.ID),
	)
	return u, nil
}

// Unshare закрывает доступ пользователя к dossier.
func (s *DossierService) Unshare(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID, userID int64) error {
	if err := s.gate.AuthorizeOwner(ctx, p, dossierID, meta); err != nil {
		return err
	}
	removed, err := s.repo.RemoveShare(ctx, dossierID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: доступ пользователя %d к dossier %d", ErrNotFound, userID, dossierID)
	}

	s.logger.Info("Доступ к dossier закрыт",
		slog.Int64("dossier_id", dossierID),
		slog.Int64("user_id", userID),
	)
	return nil
}

// ListShares — пользователи с доступом к dossier (только владельцу).
func (s *DossierService) ListShares(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID int64) ([]*model.DossierShare, error) {
	if err := s.gate.AuthorizeOwner(ctx, p, dossierID, meta); err != nil {
		return nil, err
	}
	return s.repo.ListShares(ctx, dossierID)
}
