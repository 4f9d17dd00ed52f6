package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/rbac"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository/repotest"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/storage/blobstore"
)

// testClock — управляемые часы для проверок срока действия.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv — все сервисы поверх in-memory репозиториев и локального blob-хранилища.
type testEnv struct {
	store    *repotest.Store
	clock    *testClock
	blobDir  string
	blobs    *blobstore.Store
	audit    *AuditService
	gate     *AccessGate
	guests   *GuestService
	auth     *GuestAuthenticator
	cats     *CategoryService
	docs     *DocumentService
	dossiers *DossierService
	users    *UserService
}

var testMeta = model.RequestMeta{IP: "203.0.113.7", UserAgent: "go-test"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	store := repotest.New()
	store.Now = clock.Now

	dir := t.TempDir()
	provider, err := blobstore.NewLocalProvider(dir, "http://localhost:8080/blobs", []byte("test-signing-key"))
	if err != nil {
		t.Fatalf("NewLocalProvider() ошибка: %v", err)
	}
	blobs := blobstore.New(provider, "dossier", 15*time.Minute, logger)
	t.Cleanup(func() { _ = blobs.Close() })

	audit := NewAuditService(store.Audit(), logger)
	gate := NewAccessGate(store.Dossiers(), store.Guests(), audit, logger)
	gate.now = clock.Now
	guests := NewGuestService(store.Guests(), audit, "https://portal.example.nl/", 30, logger)
	guests.now = clock.Now
	cats := NewCategoryService(store.Categories(), time.Minute, logger)
	docs := NewDocumentService(store.Documents(), cats, blobs, gate, audit, logger)
	docs.now = clock.Now

	return &testEnv{
		store:    store,
		clock:    clock,
		blobDir:  dir,
		blobs:    blobs,
		audit:    audit,
		gate:     gate,
		guests:   guests,
		auth:     NewGuestAuthenticator(guests, audit, logger),
		cats:     cats,
		docs:     docs,
		dossiers: NewDossierService(store.Dossiers(), store.Users(), gate, logger),
		users:    NewUserService(store.Users(), time.Minute, logger),
	}
}

// user создаёт пользователя и возвращает его как субъекта запроса.
func (e *testEnv) user(t *testing.T, sub, email string) *Principal {
	t.Helper()
	u := &model.User{ExternalID: sub, Email: email, Name: sub}
	if err := e.store.Users().Upsert(context.Background(), u); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	return UserPrincipal(u, rbac.RoleUser)
}

// dossier создаёт dossier владельца.
func (e *testEnv) dossier(t *testing.T, owner *Principal) *model.Dossier {
	t.Helper()
	d, err := e.dossiers.Create(context.Background(), owner)
	if err != nil {
		t.Fatalf("DossierService.Create() ошибка: %v", err)
	}
	return d
}

// invite приглашает гостя и возвращает запись и plaintext-токен.
func (e *testEnv) invite(t *testing.T, owner *Principal, dossierID int64, email string, perm model.Permission) (*model.Guest, string) {
	t.Helper()
	inv, err := e.guests.Invite(context.Background(), owner.Actor(), testMeta, CreateGuestInput{
		DossierID:  dossierID,
		Email:      email,
		Permission: perm,
		InvitedBy:  owner.User.ID,
	})
	if err != nil {
		t.Fatalf("Invite() ошибка: %v", err)
	}
	return inv.Guest, inv.Token
}

// category возвращает категорию по имени из справочника.
func (e *testEnv) category(t *testing.T, name string) *model.Category {
	t.Helper()
	c := e.store.CategoryByName(name)
	if c == nil {
		t.Fatalf("категория %q не найдена", name)
	}
	return c
}

// pdfBytes — содержимое, которое определяется как application/pdf.
func pdfBytes(size int) []byte {
	head := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	if size < len(head) {
		size = len(head)
	}
	return append(head, bytes.Repeat([]byte("0"), size-len(head))...)
}

// uploadPDF загружает PDF в категорию от имени субъекта.
func (e *testEnv) uploadPDF(t *testing.T, p *Principal, dossierID int64, category string, size int) *model.Document {
	t.Helper()
	data := pdfBytes(size)
	doc, err := e.docs.Upload(context.Background(), p, testMeta, UploadInput{
		DossierID:   dossierID,
		CategoryID:  e.category(t, category).ID,
		Filename:    "verklaring.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	return doc
}

// auditActions — действия журнала в порядке записи.
func (e *testEnv) auditActions() []model.AuditAction {
	var out []model.AuditAction
	for _, a := range e.store.AuditEntries() {
		out = append(out, a.Action)
	}
	return out
}

// lastAudit — последняя запись журнала с указанным действием.
func (e *testEnv) lastAudit(t *testing.T, action model.AuditAction) model.AuditEntry {
	t.Helper()
	entries := e.store.AuditEntries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Action == action {
			return entries[i]
		}
	}
	t.Fatalf("нет записи аудита %s, есть: %v", action, e.auditActions())
	return model.AuditEntry{}
}
