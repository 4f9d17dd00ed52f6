package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// UserRepository — доступ к таблице gebruikers.
type UserRepository interface {
	// Upsert создаёт пользователя по extern_id или обновляет email и имя.
	Upsert(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по внутреннему ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByEmail ищет пользователя по email (без учёта регистра).
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, extern_id, email, naam, aangemaakt_op, gewijzigd_op`

func (r *userRepo) Upsert(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO gebruikers (extern_id, email, naam)
		VALUES ($1, $2, $3)
		ON CONFLICT (extern_id) DO UPDATE SET
			email = EXCLUDED.email,
			naam = EXCLUDED.naam,
			gewijzigd_op = CASE
				WHEN gebruikers.email IS DISTINCT FROM EXCLUDED.email
					OR gebruikers.naam IS DISTINCT FROM EXCLUDED.naam
				THEN now() ELSE gebruikers.gewijzigd_op END
		RETURNING id, aangemaakt_op, gewijzigd_op`

	err := r.db.QueryRow(ctx, query, u.ExternalID, u.Email, u.Name).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM gebruikers WHERE id = $1`, userColumns)
	return r.scanOne(ctx, query, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM gebruikers WHERE lower(email) = $1 ORDER BY id LIMIT 1`, userColumns)
	return r.scanOne(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepo) scanOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
