package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// GuestRepository — доступ к таблице dossier_gasten.
// Репозиторий возвращает записи как есть: действительность приглашения
// (отзыв, срок) оценивает сервисный слой.
type GuestRepository interface {
	// Create вставляет приглашение. Дубликат email в dossier — ErrConflict.
	Create(ctx context.Context, g *model.Guest) error
	// GetByID возвращает гостя по ID.
	GetByID(ctx context.Context, id int64) (*model.Guest, error)
	// GetByTokenHash возвращает гостя по хешу токена.
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.Guest, error)
	// ExistsByEmail проверяет приглашение email в dossier (без учёта регистра).
	ExistsByEmail(ctx context.Context, dossierID int64, email string) (bool, error)
	// ListByDossier возвращает гостей dossier, новые первыми.
	ListByDossier(ctx context.Context, dossierID int64) ([]*model.Guest, error)
	// Revoke отзывает приглашение; false — уже отозвано или не найдено.
	Revoke(ctx context.Context, id int64, at time.Time) (bool, error)
	// ReplaceToken записывает новый хеш и срок и снимает отзыв.
	ReplaceToken(ctx context.Context, id int64, tokenHash string, expiresAt, sentAt time.Time) (*model.Guest, error)
	// RecordAccess фиксирует первый (если ещё не было) и последний доступ.
	RecordAccess(ctx context.Context, id int64, at time.Time) error
	// BelongsToDossier проверяет привязку гостя к dossier.
	BelongsToDossier(ctx context.Context, guestID, dossierID int64) (bool, error)
	// Delete удаляет запись. Если на гостя ссылаются документы — ErrConflict.
	Delete(ctx context.Context, id int64) error
}

type guestRepo struct {
	db DBTX
}

// NewGuestRepository создаёт репозиторий гостевых приглашений.
func NewGuestRepository(db DBTX) GuestRepository {
	return &guestRepo{db: db}
}

const guestColumns = `id, dossier_id, email, naam, token_hash, verloopt_op, rechten,
	uitgenodigd_door_gebruiker_id, uitnodiging_verzonden_op, eerste_toegang_op,
	laatste_toegang_op, ingetrokken, ingetrokken_op, aangemaakt_op`

// rowScanner — общий интерфейс pgx.Row и pgx.Rows для сканирования.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuest(row rowScanner) (*model.Guest, error) {
	g := &model.Guest{}
	var permission string
	err := row.Scan(
		&g.ID, &g.DossierID, &g.Email, &g.Name, &g.TokenHash, &g.ExpiresAt, &permission,
		&g.InvitedBy, &g.InvitationSentAt, &g.FirstAccessAt,
		&g.LastAccessAt, &g.Revoked, &g.RevokedAt, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Permission = model.Permission(permission)
	return g, nil
}

func (r *guestRepo) Create(ctx context.Context, g *model.Guest) error {
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	query := `
		INSERT INTO dossier_gasten (dossier_id, email, naam, token_hash, verloopt_op, rechten,
			uitgenodigd_door_gebruiker_id, uitnodiging_verzonden_op)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, ingetrokken, aangemaakt_op`

	err := r.db.QueryRow(ctx, query,
		g.DossierID, g.Email, g.Name, g.TokenHash, g.ExpiresAt, string(g.Permission),
		g.InvitedBy, g.InvitationSentAt,
	).Scan(&g.ID, &g.Revoked, &g.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: гость с email %s уже приглашён в dossier %d", ErrConflict, g.Email, g.DossierID)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: dossier %d или пользователь %d не найден", ErrValidation, g.DossierID, g.InvitedBy)
		case isCheckViolation(err):
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return fmt.Errorf("ошибка создания гостя: %w", err)
	}
	return nil
}

func (r *guestRepo) GetByID(ctx context.Context, id int64) (*model.Guest, error) {
	query := fmt.Sprintf(`SELECT %s FROM dossier_gasten WHERE id = $1`, guestColumns)
	g, err := scanGuest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения гостя: %w", err)
	}
	return g, nil
}

func (r *guestRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*model.Guest, error) {
	query := fmt.Sprintf(`SELECT %s FROM dossier_gasten WHERE token_hash = $1`, guestColumns)
	g, err := scanGuest(r.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска гостя по токену: %w", err)
	}
	return g, nil
}

func (r *guestRepo) ExistsByEmail(ctx context.Context, dossierID int64, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dossier_gasten WHERE dossier_id = $1 AND lower(email) = $2)`,
		dossierID, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки email гостя: %w", err)
	}
	return ok, nil
}

func (r *guestRepo) ListByDossier(ctx context.Context, dossierID int64) ([]*model.Guest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dossier_gasten
		WHERE dossier_id = $1
		ORDER BY aangemaakt_op DESC, id DESC`, guestColumns)

	rows, err := r.db.Query(ctx, query, dossierID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка гостей: %w", err)
	}
	defer rows.Close()

	var result []*model.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения гостя: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (r *guestRepo) Revoke(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE dossier_gasten
		SET ingetrokken = TRUE, ingetrokken_op = $2
		WHERE id = $1 AND NOT ingetrokken`, id, at)
	if err != nil {
		return false, fmt.Errorf("ошибка отзыва гостя: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *guestRepo) ReplaceToken(ctx context.Context, id int64, tokenHash string, expiresAt, sentAt time.Time) (*model.Guest, error) {
	query := fmt.Sprintf(`
		UPDATE dossier_gasten
		SET token_hash = $2,
			verloopt_op = $3,
			uitnodiging_verzonden_op = $4,
			ingetrokken = FALSE,
			ingetrokken_op = NULL
		WHERE id = $1
		RETURNING %s`, guestColumns)

	g, err := scanGuest(r.db.QueryRow(ctx, query, id, tokenHash, expiresAt, sentAt))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: хеш токена уже используется", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка обновления токена гостя: %w", err)
	}
	return g, nil
}

func (r *guestRepo) RecordAccess(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE dossier_gasten
		SET eerste_toegang_op = COALESCE(eerste_toegang_op, $2),
			laatste_toegang_op = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка фиксации доступа гостя: %w", err)
	}
	return nil
}

func (r *guestRepo) BelongsToDossier(ctx context.Context, guestID, dossierID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dossier_gasten WHERE id = $1 AND dossier_id = $2)`,
		guestID, dossierID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки привязки гостя: %w", err)
	}
	return ok, nil
}

func (r *guestRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dossier_gasten WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на гостя %d ссылаются документы", ErrConflict, id)
		}
		return fmt.Errorf("ошибка удаления гостя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
