package repository

import (
	"context"
	"fmt"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// DossierRepository — доступ к таблицам dossiers и dossier_gedeelde_gebruikers.
type DossierRepository interface {
	// Create создаёт dossier; ID и временные метки заполняются из БД.
	Create(ctx context.Context, d *model.Dossier) error
	// GetByID возвращает dossier по ID.
	GetByID(ctx context.Context, id int64) (*model.Dossier, error)
	// ListForUser возвращает dossiers, которыми пользователь владеет
	// или к которым ему открыт доступ.
	ListForUser(ctx context.Context, userID int64) ([]*model.Dossier, error)
	// IsOwner проверяет, что пользователь — владелец dossier.
	IsOwner(ctx context.Context, dossierID, userID int64) (bool, error)
	// IsSharedWith проверяет, открыт ли пользователю доступ к dossier.
	IsSharedWith(ctx context.Context, dossierID, userID int64) (bool, error)
	// AddShare открывает доступ; повторный вызов — ErrConflict.
	AddShare(ctx context.Context, dossierID, userID int64) error
	// RemoveShare закрывает доступ; false — доступа не было.
	RemoveShare(ctx context.Context, dossierID, userID int64) (bool, error)
	// ListShares возвращает пользователей с доступом к dossier.
	ListShares(ctx context.Context, dossierID int64) ([]*model.DossierShare, error)
}

type dossierRepo struct {
	db DBTX
}

// NewDossierRepository создаёт репозиторий dossiers.
func NewDossierRepository(db DBTX) DossierRepository {
	return &dossierRepo{db: db}
}

const dossierColumns = `d.id, d.dossier_nummer, d.gebruiker_id, d.status, d.aangemaakt_op, d.gewijzigd_op`

func (r *dossierRepo) Create(ctx context.Context, d *model.Dossier) error {
	if d.Status == "" {
		d.Status = model.DossierStatusActive
	}
	query := `
		INSERT INTO dossiers (dossier_nummer, gebruiker_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, aangemaakt_op, gewijzigd_op`

	err := r.db.QueryRow(ctx, query, d.DossierNumber, d.OwnerID, d.Status).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dossier с номером %s уже существует", ErrConflict, d.DossierNumber)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец %d не найден", ErrValidation, d.OwnerID)
		}
		return fmt.Errorf("ошибка создания dossier: %w", err)
	}
	return nil
}

func (r *dossierRepo) GetByID(ctx context.Context, id int64) (*model.Dossier, error) {
	query := fmt.Sprintf(`SELECT %s FROM dossiers d WHERE d.id = $1`, dossierColumns)

	d := &model.Dossier{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.DossierNumber, &d.OwnerID, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения dossier: %w", err)
	}
	return d, nil
}

func (r *dossierRepo) ListForUser(ctx context.Context, userID int64) ([]*model.Dossier, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dossiers d
		WHERE d.gebruiker_id = $1
			OR EXISTS (
				SELECT 1 FROM dossier_gedeelde_gebruikers g
				WHERE g.dossier_id = d.id AND g.gebruiker_id = $1
			)
		ORDER BY d.aangemaakt_op DESC, d.id DESC`, dossierColumns)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка dossiers: %w", err)
	}
	defer rows.Close()

	var result []*model.Dossier
	for rows.Next() {
		d := &model.Dossier{}
		if err := rows.Scan(
			&d.ID, &d.DossierNumber, &d.OwnerID, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения dossier: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *dossierRepo) IsOwner(ctx context.Context, dossierID, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dossiers WHERE id = $1 AND gebruiker_id = $2)`,
		dossierID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки владельца dossier: %w", err)
	}
	return ok, nil
}

func (r *dossierRepo) IsSharedWith(ctx context.Context, dossierID, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM dossier_gedeelde_gebruikers
			WHERE dossier_id = $1 AND gebruiker_id = $2
		)`,
		dossierID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки доступа к dossier: %w", err)
	}
	return ok, nil
}

func (r *dossierRepo) AddShare(ctx context.Context, dossierID, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dossier_gedeelde_gebruikers (dossier_id, gebruiker_id) VALUES ($1, $2)`,
		dossierID, userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: доступ уже открыт", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: dossier или пользователь не найден", ErrNotFound)
		}
		return fmt.Errorf("ошибка открытия доступа к dossier: %w", err)
	}
	return nil
}

func (r *dossierRepo) RemoveShare(ctx context.Context, dossierID, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM dossier_gedeelde_gebruikers WHERE dossier_id = $1 AND gebruiker_id = $2`,
		dossierID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка закрытия доступа к dossier: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *dossierRepo) ListShares(ctx context.Context, dossierID int64) ([]*model.DossierShare, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.dossier_id, g.gebruiker_id, u.email, u.naam, g.aangemaakt_op
		FROM dossier_gedeelde_gebruikers g
		JOIN gebruikers u ON u.id = g.gebruiker_id
		WHERE g.dossier_id = $1
		ORDER BY g.aangemaakt_op`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка доступа: %w", err)
	}
	defer rows.Close()

	var result []*model.DossierShare
	for rows.Next() {
		s := &model.DossierShare{}
		if err := rows.Scan(&s.DossierID, &s.UserID, &s.UserEmail, &s.UserName, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения доступа: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
