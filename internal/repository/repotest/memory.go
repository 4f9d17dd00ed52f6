// Пакет repotest — in-memory реализация репозиториев для unit-тестов
// сервисов и обработчиков. Повторяет ограничения схемы PostgreSQL,
// на которые опирается бизнес-логика: уникальность, внешние ключи,
// фильтр soft delete, порядок сортировки.
package repotest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// Store — все таблицы в памяти. Безопасен для конкурентного использования.
type Store struct {
	mu sync.Mutex

	// Now — часы для столбцов aangemaakt_op; по умолчанию time.Now
	Now func() time.Time

	seq        int64
	users      map[int64]*model.User
	dossiers   map[int64]*model.Dossier
	shares     map[[2]int64]time.Time
	categories map[int64]*model.Category
	guests     map[int64]*model.Guest
	documents  map[int64]*model.Document
	audit      []*model.AuditEntry
}

// New создаёт пустое хранилище с категориями по умолчанию.
func New() *Store {
	s := &Store{
		Now:        time.Now,
		users:      make(map[int64]*model.User),
		dossiers:   make(map[int64]*model.Dossier),
		shares:     make(map[[2]int64]time.Time),
		categories: make(map[int64]*model.Category),
		guests:     make(map[int64]*model.Guest),
		documents:  make(map[int64]*model.Document),
	}
	s.AddCategory(&model.Category{Name: "identiteit", AllowedExtensions: "pdf,jpg,jpeg,png", MaxSizeMB: 10, SortOrder: 1, Active: true})
	s.AddCategory(&model.Category{Name: "bewijs", AllowedExtensions: "pdf,jpg", MaxSizeMB: 10, SortOrder: 6, Active: true})
	s.AddCategory(&model.Category{Name: "overig", AllowedExtensions: "pdf,jpg,jpeg,png,doc,docx,txt", MaxSizeMB: 25, SortOrder: 8, Active: true})
	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// AddCategory добавляет категорию (справочник заполняется миграцией).
func (s *Store) AddCategory(c *model.Category) *model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	cp := *c
	s.categories[c.ID] = &cp
	return c
}

// CategoryByName возвращает категорию по имени или nil.
func (s *Store) CategoryByName(name string) *model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name {
			cp := *c
			return &cp
		}
	}
	return nil
}

// SetGuestExpiry переписывает срок действия приглашения (для тестов истечения).
func (s *Store) SetGuestExpiry(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guests[id]; ok {
		g.ExpiresAt = at
	}
}

// AuditEntries возвращает копию всего журнала в порядке вставки.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, *e)
	}
	return out
}

// Репозитории поверх общего хранилища.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Dossiers() repository.DossierRepository { return dossierRepo{s} }
func (s *Store) Categories() repository.CategoryRepository { return categoryRepo{s} }
func (s *Store) Guests() repository.GuestRepository { return guestRepo{s} }
func (s *Store) Documents() repository.DocumentRepository { return documentRepo{s} }
func (s *Store) Audit() repository.AuditRepository { return auditRepo{s} }

// --- gebruikers ---

type userRepo struct{ s *Store }

func (r userRepo) Upsert(_ context.Context, u *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for _, existing := range s.users {
		if existing.ExternalID == u.ExternalID {
			existing.Email = u.Email
			existing.Name = u.Name
			existing.UpdatedAt = now
			*u = *existing
			return nil
		}
	}
	u.ID = s.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	var found *model.User
	for _, u := range r.s.users {
		if strings.ToLower(u.Email) == email && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// --- dossiers ---

type dossierRepo struct{ s *Store }

func (r dossierRepo) Create(_ context.Context, d *model.Dossier) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = model.DossierStatusActive
	}
	if _, ok := s.users[d.OwnerID]; !ok {
		return fmt.Errorf("%w: владелец %d не найден", repository.ErrValidation, d.OwnerID)
	}
	for _, existing := range s.dossiers {
		if existing.DossierNumber == d.DossierNumber {
			return fmt.Errorf("%w: dossier с номером %s уже существует", repository.ErrConflict, d.DossierNumber)
		}
	}
	d.ID = s.nextID()
	now := s.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	s.dossiers[d.ID] = &cp
	return nil
}

func (r dossierRepo) GetByID(_ context.Context, id int64) (*model.Dossier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dossiers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r dossierRepo) ListForUser(_ context.Context, userID int64) ([]*model.Dossier, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.Dossier
	for _, d := range s.dossiers {
		_, shared := s.shares[[2]int64{d.ID, userID}]
		if d.OwnerID == userID || shared {
			cp := *d
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *model.Dossier) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return result, nil
}

func (r dossierRepo) IsOwner(_ context.Context, dossierID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dossiers[dossierID]
	return ok && d.OwnerID == userID, nil
}

func (r dossierRepo) IsSharedWith(_ context.Context, dossierID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.shares[[2]int64{dossierID, userID}]
	return ok, nil
}

func (r dossierRepo) AddShare(_ context.Context, dossierID, userID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{dossierID, userID}
	if _, ok := s.shares[key]; ok {
		return fmt.Errorf("%w: доступ уже открыт", repository.ErrConflict)
	}
	_, dOK := s.dossiers[dossierID]
	_, uOK := s.users[userID]
	if !dOK || !uOK {
		return fmt.Errorf("%w: dossier или пользователь не найден", repository.ErrNotFound)
	}
	s.shares[key] = s.Now()
	return nil
}

func (r dossierRepo) RemoveShare(_ context.Context, dossierID, userID int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{dossierID, userID}
	if _, ok := s.shares[key]; !ok {
		return false, nil
	}
	delete(s.shares, key)
	return true, nil
}

func (r dossierRepo) ListShares(_ context.Context, dossierID int64) ([]*model.DossierShare, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.DossierShare
	for key, at := range s.shares {
		if key[0] != dossierID {
			continue
		}
		u := s.users[key[1]]
		result = append(result, &model.DossierShare{
			DossierID: dossierID,
			UserID:    u.ID,
			UserEmail: u.Email,
			UserName:  u.Name,
			CreatedAt: at,
		})
	}
	slices.SortFunc(result, func(a, b *model.DossierShare) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.UserID - b.UserID)
	})
	return result, nil
}

// --- document_categorieen ---

type categoryRepo struct{ s *Store }

func (r categoryRepo) ListActive(_ context.Context) ([]*model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Category
	for _, c := range r.s.categories {
		if c.Active {
			cp := *c
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *model.Category) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (r categoryRepo) GetByID(_ context.Context, id int64) (*model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// --- dossier_gasten ---

type guestRepo struct{ s *Store }

func (r guestRepo) Create(_ context.Context, g *model.Guest) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	if !g.Permission.Valid() {
		return fmt.Errorf("%w: недопустимые права %q", repository.ErrValidation, g.Permission)
	}
	if _, ok := s.dossiers[g.DossierID]; !ok {
		return fmt.Errorf("%w: dossier %d не найден", repository.ErrValidation, g.DossierID)
	}
	for _, existing := range s.guests {
		if existing.TokenHash == g.TokenHash ||
			(existing.DossierID == g.DossierID && existing.Email == g.Email) {
			return fmt.Errorf("%w: гость с email %s уже приглашён в dossier %d", repository.ErrConflict, g.Email, g.DossierID)
		}
	}
	g.ID = s.nextID()
	g.Revoked = false
	g.RevokedAt = nil
	g.CreatedAt = s.Now()
	cp := *g
	s.guests[g.ID] = &cp
	return nil
}

func (r guestRepo) GetByID(_ context.Context, id int64) (*model.Guest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r guestRepo) GetByTokenHash(_ context.Context, tokenHash string) (*model.Guest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.guests {
		if g.TokenHash == tokenHash {
			cp := *g
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r guestRepo) ExistsByEmail(_ context.Context, dossierID int64, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, g := range r.s.guests {
		if g.DossierID == dossierID && g.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r guestRepo) ListByDossier(_ context.Context, dossierID int64) ([]*model.Guest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Guest
	for _, g := range r.s.guests {
		if g.DossierID == dossierID {
			cp := *g
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *model.Guest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return result, nil
}

func (r guestRepo) Revoke(_ context.Context, id int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guests[id]
	if !ok || g.Revoked {
		return false, nil
	}
	g.Revoked = true
	g.RevokedAt = &at
	return true, nil
}

func (r guestRepo) ReplaceToken(_ context.Context, id int64, tokenHash string, expiresAt, sentAt time.Time) (*model.Guest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	g.TokenHash = tokenHash
	g.ExpiresAt = expiresAt
	g.InvitationSentAt = &sentAt
	g.Revoked = false
	g.RevokedAt = nil
	cp := *g
	return &cp, nil
}

func (r guestRepo) RecordAccess(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if g.FirstAccessAt == nil {
		first := at
		g.FirstAccessAt = &first
	}
	g.LastAccessAt = &at
	return nil
}

func (r guestRepo) BelongsToDossier(_ context.Context, guestID, dossierID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guests[guestID]
	return ok && g.DossierID == dossierID, nil
}

func (r guestRepo) Delete(_ context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guests[id]; !ok {
		return repository.ErrNotFound
	}
	for _, d := range s.documents {
		if gid := d.UploadedBy.GuestID(); gid != nil && *gid == id {
			return fmt.Errorf("%w: на гостя %d ссылаются документы", repository.ErrConflict, id)
		}
	}
	delete(s.guests, id)
	return nil
}

// --- dossier_documenten ---

type documentRepo struct{ s *Store }

func (r documentRepo) Create(_ context.Context, d *model.Document) error {
	if d.UploadedBy.IsZero() {
		return fmt.Errorf("%w: не указан загрузивший документ (пользователь или гость)", repository.ErrValidation)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dOK := s.dossiers[d.DossierID]
	_, cOK := s.categories[d.CategoryID]
	uploaderOK := false
	switch d.UploadedBy.Kind() {
	case model.ActorUser:
		_, uploaderOK = s.users[d.UploadedBy.ID()]
	case model.ActorGuest:
		_, uploaderOK = s.guests[d.UploadedBy.ID()]
	}
	if !dOK || !cOK || !uploaderOK {
		return fmt.Errorf("%w: dossier, категория или загрузивший не найдены", repository.ErrValidation)
	}
	d.ID = s.nextID()
	d.CreatedAt = s.Now()
	d.DeletedAt = nil
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (r documentRepo) GetActiveByID(_ context.Context, id int64) (*model.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.documents[id]
	if !ok || d.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r documentRepo) FindByDossierIDWithCategory(_ context.Context, dossierID int64) ([]*model.DocumentWithCategory, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.DocumentWithCategory
	for _, d := range s.documents {
		if d.DossierID != dossierID || d.DeletedAt != nil {
			continue
		}
		dc := &model.DocumentWithCategory{Document: *d}
		if c, ok := s.categories[d.CategoryID]; ok {
			dc.CategoryName = c.Name
		}
		dc.UploaderName = s.uploaderName(d.UploadedBy)
		result = append(result, dc)
	}
	slices.SortFunc(result, func(a, b *model.DocumentWithCategory) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return result, nil
}

// uploaderName — имя пользователя, иначе имя гостя, иначе email гостя.
func (s *Store) uploaderName(a model.Actor) string {
	switch a.Kind() {
	case model.ActorUser:
		if u, ok := s.users[a.ID()]; ok {
			return u.Name
		}
	case model.ActorGuest:
		if g, ok := s.guests[a.ID()]; ok {
			return g.DisplayName()
		}
	}
	return ""
}

func (r documentRepo) SoftDelete(_ context.Context, id int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.documents[id]
	if !ok || d.DeletedAt != nil {
		return false, nil
	}
	d.DeletedAt = &at
	return true, nil
}

func (r documentRepo) BelongsToDossier(_ context.Context, documentID, dossierID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.documents[documentID]
	return ok && d.DossierID == dossierID, nil
}

// --- document_audit_log ---

type auditRepo struct{ s *Store }

func (r auditRepo) Insert(_ context.Context, e *model.AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: неизвестное действие аудита %q", repository.ErrValidation, e.Action)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID()
	e.CreatedAt = s.Now()
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (r auditRepo) ListByDossier(_ context.Context, dossierID int64, limit, offset int) ([]*model.AuditEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*model.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if e.DossierID != nil && *e.DossierID == dossierID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r auditRepo) CountByDossier(_ context.Context, dossierID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.audit {
		if e.DossierID != nil && *e.DossierID == dossierID {
			n++
		}
	}
	return n, nil
}
