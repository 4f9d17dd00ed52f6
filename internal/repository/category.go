package repository

import (
	"context"
	"fmt"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// CategoryRepository — чтение справочника document_categorieen.
type CategoryRepository interface {
	// ListActive возвращает активные категории в порядке сортировки.
	ListActive(ctx context.Context) ([]*model.Category, error)
	// GetByID возвращает категорию (в том числе неактивную).
	GetByID(ctx context.Context, id int64) (*model.Category, error)
}

type categoryRepo struct {
	db DBTX
}

// NewCategoryRepository создаёт репозиторий категорий документов.
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &categoryRepo{db: db}
}

const categoryColumns = `id, naam, omschrijving, toegestane_extensies, max_grootte_mb, sorteer_volgorde, actief`

func (r *categoryRepo) ListActive(ctx context.Context) ([]*model.Category, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM document_categorieen
		WHERE actief
		ORDER BY sorteer_volgorde, naam`, categoryColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения категорий: %w", err)
	}
	defer rows.Close()

	var result []*model.Category
	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Description, &c.AllowedExtensions, &c.MaxSizeMB, &c.SortOrder, &c.Active,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения категории: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *categoryRepo) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_categorieen WHERE id = $1`, categoryColumns)

	c := &model.Category{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.AllowedExtensions, &c.MaxSizeMB, &c.SortOrder, &c.Active,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения категории: %w", err)
	}
	return c, nil
}
