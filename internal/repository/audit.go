package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// AuditRepository — журнал аудита (таблица document_audit_log).
// Только вставка и чтение: записи не изменяются и не удаляются.
type AuditRepository interface {
	// Insert добавляет запись; ID и время заполняются из БД.
	Insert(ctx context.Context, e *model.AuditEntry) error
	// ListByDossier возвращает записи dossier, новые первыми.
	ListByDossier(ctx context.Context, dossierID int64, limit, offset int) ([]*model.AuditEntry, error)
	// CountByDossier возвращает количество записей dossier.
	CountByDossier(ctx context.Context, dossierID int64) (int, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: неизвестное действие аудита %q", ErrValidation, e.Action)
	}

	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("ошибка сериализации деталей аудита: %w", err)
		}
	}

	query := `
		INSERT INTO document_audit_log (dossier_id, document_id, gebruiker_id, gast_id,
			ip_adres, user_agent, actie, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, aangemaakt_op`

	err := r.db.QueryRow(ctx, query,
		e.DossierID, e.DocumentID, e.Actor.UserID(), e.Actor.GuestID(),
		e.IP, e.UserAgent, string(e.Action), details,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByDossier(ctx context.Context, dossierID int64, limit, offset int) ([]*model.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dossier_id, document_id, gebruiker_id, gast_id,
			ip_adres, user_agent, actie, details, aangemaakt_op
		FROM document_audit_log
		WHERE dossier_id = $1
		ORDER BY aangemaakt_op DESC, id DESC
		LIMIT $2 OFFSET $3`, dossierID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		var userID, guestID *int64
		var action string
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.DossierID, &e.DocumentID, &userID, &guestID,
			&e.IP, &e.UserAgent, &action, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи аудита: %w", err)
		}
		e.Actor = model.ActorFromColumns(userID, guestID)
		e.Action = model.AuditAction(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("ошибка разбора деталей аудита %d: %w", e.ID, err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *auditRepo) CountByDossier(ctx context.Context, dossierID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_audit_log WHERE dossier_id = $1`, dossierID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}
	return n, nil
}
