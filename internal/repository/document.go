package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// DocumentRepository — доступ к таблице dossier_documenten.
type DocumentRepository interface {
	// Create вставляет метаданные документа. Субъект загрузки обязателен:
	// нулевой Actor отклоняется с ErrValidation до обращения к БД.
	Create(ctx context.Context, d *model.Document) error
	// GetActiveByID возвращает документ, если он не удалён.
	GetActiveByID(ctx context.Context, id int64) (*model.Document, error)
	// FindByDossierIDWithCategory возвращает неудалённые документы dossier
	// с названием категории и именем загрузившего, новые первыми.
	FindByDossierIDWithCategory(ctx context.Context, dossierID int64) ([]*model.DocumentWithCategory, error)
	// SoftDelete помечает документ удалённым; false — уже удалён или не найден.
	SoftDelete(ctx context.Context, id int64, at time.Time) (bool, error)
	// BelongsToDossier проверяет принадлежность документа dossier.
	BelongsToDossier(ctx context.Context, documentID, dossierID int64) (bool, error)
}

type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

const documentColumns = `d.id, d.dossier_id, d.categorie_id, d.blob_container, d.blob_pad,
	d.originele_bestandsnaam, d.opgeslagen_bestandsnaam, d.bestandsgrootte, d.mime_type,
	d.geupload_door_gebruiker_id, d.geupload_door_gast_id, d.upload_ip,
	d.aangemaakt_op, d.verwijderd_op`

// documentScanDest возвращает адреса полей для Scan в порядке documentColumns.
func documentScanDest(d *model.Document, userID, guestID **int64) []any {
	return []any{
		&d.ID, &d.DossierID, &d.CategoryID, &d.BlobContainer, &d.BlobPath,
		&d.OriginalFilename, &d.StoredFilename, &d.Size, &d.MimeType,
		userID, guestID, &d.UploadIP,
		&d.CreatedAt, &d.DeletedAt,
	}
}

func (r *documentRepo) Create(ctx context.Context, d *model.Document) error {
	if d.UploadedBy.IsZero() {
		return fmt.Errorf("%w: не указан загрузивший документ (пользователь или гость)", ErrValidation)
	}

	query := `
		INSERT INTO dossier_documenten (dossier_id, categorie_id, blob_container, blob_pad,
			originele_bestandsnaam, opgeslagen_bestandsnaam, bestandsgrootte, mime_type,
			geupload_door_gebruiker_id, geupload_door_gast_id, upload_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, aangemaakt_op`

	err := r.db.QueryRow(ctx, query,
		d.DossierID, d.CategoryID, d.BlobContainer, d.BlobPath,
		d.OriginalFilename, d.StoredFilename, d.Size, d.MimeType,
		d.UploadedBy.UserID(), d.UploadedBy.GuestID(), d.UploadIP,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		switch {
		case isCheckViolation(err):
			return fmt.Errorf("%w: %v", ErrValidation, err)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: dossier, категория или загрузивший не найдены", ErrValidation)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetActiveByID(ctx context.Context, id int64) (*model.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dossier_documenten d
		WHERE d.id = $1 AND d.verwijderd_op IS NULL`, documentColumns)

	d := &model.Document{}
	var userID, guestID *int64
	if err := r.db.QueryRow(ctx, query, id).Scan(documentScanDest(d, &userID, &guestID)...); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	d.UploadedBy = model.ActorFromColumns(userID, guestID)
	return d, nil
}

func (r *documentRepo) FindByDossierIDWithCategory(ctx context.Context, dossierID int64) ([]*model.DocumentWithCategory, error) {
	query := fmt.Sprintf(`
		SELECT %s, c.naam,
			COALESCE(NULLIF(u.naam, ''), NULLIF(g.naam, ''), g.email, '')
		FROM dossier_documenten d
		JOIN document_categorieen c ON c.id = d.categorie_id
		LEFT JOIN gebruikers u ON u.id = d.geupload_door_gebruiker_id
		LEFT JOIN dossier_gasten g ON g.id = d.geupload_door_gast_id
		WHERE d.dossier_id = $1 AND d.verwijderd_op IS NULL
		ORDER BY d.aangemaakt_op DESC, d.id DESC`, documentColumns)

	rows, err := r.db.Query(ctx, query, dossierID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения документов dossier: %w", err)
	}
	defer rows.Close()

	var result []*model.DocumentWithCategory
	for rows.Next() {
		dc := &model.DocumentWithCategory{}
		var userID, guestID *int64
		dest := append(documentScanDest(&dc.Document, &userID, &guestID), &dc.CategoryName, &dc.UploaderName)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка чтения документа: %w", err)
		}
		dc.UploadedBy = model.ActorFromColumns(userID, guestID)
		result = append(result, dc)
	}
	return result, rows.Err()
}

func (r *documentRepo) SoftDelete(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE dossier_documenten
		SET verwijderd_op = $2
		WHERE id = $1 AND verwijderd_op IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления документа: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *documentRepo) BelongsToDossier(ctx context.Context, documentID, dossierID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dossier_documenten WHERE id = $1 AND dossier_id = $2)`,
		documentID, dossierID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки принадлежности документа: %w", err)
	}
	return ok, nil
}
