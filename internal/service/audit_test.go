package service

import (
	"context"
	"errors"
	"testing"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// failingAuditRepo — журнал, который всегда возвращает ошибку записи.
type failingAuditRepo struct{}

func (failingAuditRepo) Insert(context.Context, *model.AuditEntry) error {
	return errors.New("connection refused")
}

func (failingAuditRepo) ListByDossier(context.Context, int64, int, int) ([]*model.AuditEntry, error) {
	return nil, errors.New("connection refused")
}

func (failingAuditRepo) CountByDossier(context.Context, int64) (int, error) {
	return 0, errors.New("connection refused")
}

func TestAuditService_WrappersSwallowErrors(t *testing.T) {
	svc := NewAuditService(failingAuditRepo{}, testLogger())
	ctx := context.Background()

	// Не паникуют и не возвращают ошибку
	svc.LogUpload(ctx, model.UserActor(1), testMeta, 1, 2, nil)
	svc.LogAccessDenied(ctx, model.Actor{}, testMeta, nil, ReasonInvalidToken, nil)

	if err := svc.Log(ctx, &model.AuditEntry{Action: model.AuditView}); err == nil {
		t.Error("Log() должен вернуть ошибку хранилища")
	}
	if _, _, err := svc.ListByDossier(ctx, 1, 10, 0); err == nil {
		t.Error("ListByDossier() должен вернуть ошибку хранилища")
	}
}

func TestAuditService_RejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	err := env.audit.Log(context.Background(), &model.AuditEntry{Action: "update"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Log(update) = %v, ожидается ErrValidation", err)
	}
}

func TestAuditService_ListByDossier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := int64(1), int64(2)

	for i := range 5 {
		env.audit.LogDownload(ctx, model.UserActor(7), testMeta, a, int64(100+i))
	}
	env.audit.LogDownload(ctx, model.UserActor(7), testMeta, b, 200)
	env.audit.LogAccessDenied(ctx, model.Actor{}, testMeta, nil, ReasonInvalidToken, nil)

	entries, total, err := env.audit.ListByDossier(ctx, a, 2, 1)
	if err != nil {
		t.Fatalf("ListByDossier() ошибка: %v", err)
	}
	if total != 5 || len(entries) != 2 {
		t.Fatalf("total = %d, len = %d; ожидается 5 и 2", total, len(entries))
	}
	// Новые первыми: offset 1 пропускает документ 104
	if *entries[0].DocumentID != 103 || *entries[1].DocumentID != 102 {
		t.Errorf("документы %d, %d; ожидается 103, 102", *entries[0].DocumentID, *entries[1].DocumentID)
	}
	if entries[0].Actor != model.UserActor(7) || entries[0].IP != testMeta.IP {
		t.Errorf("запись = %+v", entries[0])
	}
}
