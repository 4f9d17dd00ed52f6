package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/guesttoken"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

func TestGuestService_TokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	name := "Alice"
	g, token, err := env.guests.CreateWithToken(ctx, CreateGuestInput{
		DossierID:  d.ID,
		Email:      "Alice@Example.com",
		Name:       &name,
		Permission: model.PermissionUploadView,
		InvitedBy:  owner.User.ID,
	})
	if err != nil {
		t.Fatalf("CreateWithToken() ошибка: %v", err)
	}
	if !guesttoken.WellFormed(token) || len(token) != 64 {
		t.Fatalf("токен %q: ожидается 64 hex-символа", token)
	}
	if g.TokenHash == token || g.TokenHash != guesttoken.Hash(token) {
		t.Error("в записи должен храниться только хэш токена")
	}

	found, err := env.guests.FindByToken(ctx, token)
	if err != nil {
		t.Fatalf("FindByToken() ошибка: %v", err)
	}
	if found == nil {
		t.Fatal("FindByToken() = nil для только что выданного токена")
	}
	if found.ID != g.ID || found.DossierID != d.ID || found.Email != "alice@example.com" || found.Permission != model.PermissionUploadView {
		t.Errorf("FindByToken() = %+v", found)
	}

	for _, other := range []string{"", "abc", strings.Repeat("0", 64), strings.ToUpper(token)[:63] + "x"} {
		got, err := env.guests.FindByToken(ctx, other)
		if err != nil {
			t.Fatalf("FindByToken(%q) ошибка: %v", other, err)
		}
		if got != nil {
			t.Errorf("FindByToken(%q) = гость %d, ожидается nil", other, got.ID)
		}
	}
}

func TestGuestService_DefaultExpiry(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	g, _ := env.invite(t, owner, d.ID, "bob@example.com", model.PermissionView)
	want := env.clock.Now().AddDate(0, 0, 30)
	if !g.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, ожидается %v", g.ExpiresAt, want)
	}
}

func TestGuestService_ExpiryEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)
	g, token := env.invite(t, owner, d.ID, "bob@example.com", model.PermissionView)

	env.store.SetGuestExpiry(g.ID, env.clock.Now().Add(-time.Minute))

	found, err := env.guests.FindByToken(ctx, token)
	if err != nil {
		t.Fatalf("FindByToken() ошибка: %v", err)
	}
	if found != nil {
		t.Error("истёкший гость не должен находиться по токену")
	}
	ok, err := env.guests.HasPermission(ctx, g.ID, model.CapabilityView)
	if err != nil || ok {
		t.Errorf("HasPermission() = %v, %v; ожидается false", ok, err)
	}
}

func TestGuestService_ExpiryByClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	_, token, err := env.guests.CreateWithToken(ctx, CreateGuestInput{
		DossierID: d.ID, Email: "c@example.com", Permission: model.PermissionView, ExpiryDays: 1, InvitedBy: owner.User.ID,
	})
	if err != nil {
		t.Fatalf("CreateWithToken() ошибка: %v", err)
	}

	env.clock.Advance(23 * time.Hour)
	if g, _ := env.guests.FindByToken(ctx, token); g == nil {
		t.Fatal("до истечения срока гость должен находиться")
	}
	env.clock.Advance(time.Hour)
	if g, _ := env.guests.FindByToken(ctx, token); g != nil {
		t.Fatal("в момент истечения срока гость не должен находиться")
	}
}

func TestGuestService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)
	g, token := env.invite(t, owner, d.ID, "bob@example.com", model.PermissionView)

	ok, err := env.guests.Revoke(ctx, g.ID)
	if err != nil || !ok {
		t.Fatalf("первый Revoke() = %v, %v; ожидается true", ok, err)
	}
	if found, _ := env.guests.FindByToken(ctx, token); found != nil {
		t.Error("отозванный гость не должен находиться по токену")
	}
	ok, err = env.guests.Revoke(ctx, g.ID)
	if err != nil || ok {
		t.Errorf("повторный Revoke() = %v, %v; ожидается false", ok, err)
	}

	revoked, err := env.guests.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if revoked.Status(env.clock.Now()) != model.GuestStatusRevoked || revoked.RevokedAt == nil {
		t.Errorf("статус = %s, RevokedAt = %v", revoked.Status(env.clock.Now()), revoked.RevokedAt)
	}
}

func TestGuestService_RegenerateToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)
	g, oldToken := env.invite(t, owner, d.ID, "bob@example.com", model.PermissionView)

	if _, err := env.guests.Revoke(ctx, g.ID); err != nil {
		t.Fatalf("Revoke() ошибка: %v", err)
	}
	env.clock.Advance(48 * time.Hour)

	updated, newToken, err := env.guests.RegenerateToken(ctx, g.ID, 7)
	if err != nil {
		t.Fatalf("RegenerateToken() ошибка: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("новый токен совпадает со старым")
	}
	if updated.Revoked {
		t.Error("перевыпуск токена должен снимать отзыв")
	}
	if want := env.clock.Now().AddDate(0, 0, 7); !updated.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, ожидается %v", updated.ExpiresAt, want)
	}

	if found, _ := env.guests.FindByToken(ctx, oldToken); found != nil {
		t.Error("старый токен после перевыпуска должен быть недействителен")
	}
	found, err := env.guests.FindByToken(ctx, newToken)
	if err != nil || found == nil || found.ID != g.ID {
		t.Errorf("FindByToken(новый) = %v, %v", found, err)
	}
}

func TestGuestService_ExpiryDaysValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	for _, days := range []int{-1, 366} {
		_, _, err := env.guests.CreateWithToken(ctx, CreateGuestInput{
			DossierID: d.ID, Email: "x@example.com", Permission: model.PermissionView, ExpiryDays: days, InvitedBy: owner.User.ID,
		})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("ExpiryDays=%d: ошибка = %v, ожидается ErrValidation", days, err)
		}
	}

	_, _, err := env.guests.CreateWithToken(ctx, CreateGuestInput{
		DossierID: d.ID, Email: "x@example.com", Permission: "admin", InvitedBy: owner.User.ID,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Message == "" {
		t.Errorf("недопустимые права: ошибка = %v, ожидается ValidationError с сообщением", err)
	}
}

func TestGuestService_BelongsToDossier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	a := env.dossier(t, owner)
	b := env.dossier(t, owner)
	g, _ := env.invite(t, owner, a.ID, "bob@example.com", model.PermissionView)

	if ok, _ := env.guests.BelongsToDossier(ctx, g.ID, a.ID); !ok {
		t.Error("гость должен принадлежать своему dossier")
	}
	for _, other := range []int64{b.ID, a.ID + 1000, 0} {
		if ok, _ := env.guests.BelongsToDossier(ctx, g.ID, other); ok {
			t.Errorf("BelongsToDossier(%d, %d) = true", g.ID, other)
		}
	}
}

func TestGuestService_HasPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	tests := []struct {
		perm       model.Permission
		wantUpload bool
		wantView   bool
	}{
		{model.PermissionUpload, true, false},
		{model.PermissionView, false, true},
		{model.PermissionUploadView, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			g, _ := env.invite(t, owner, d.ID, string(tt.perm)+"@example.com", tt.perm)
			up, err := env.guests.HasPermission(ctx, g.ID, model.CapabilityUpload)
			if err != nil || up != tt.wantUpload {
				t.Errorf("upload = %v (%v), хотели %v", up, err, tt.wantUpload)
			}
			view, err := env.guests.HasPermission(ctx, g.ID, model.CapabilityView)
			if err != nil || view != tt.wantView {
				t.Errorf("view = %v (%v), хотели %v", view, err, tt.wantView)
			}
		})
	}

	if ok, err := env.guests.HasPermission(ctx, 99999, model.CapabilityView); err != nil || ok {
		t.Errorf("несуществующий гость: %v, %v", ok, err)
	}
}

func TestGuestService_RecordFirstAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)
	g, _ := env.invite(t, owner, d.ID, "bob@example.com", model.PermissionView)

	first := env.clock.Now()
	if err := env.guests.RecordFirstAccess(ctx, g.ID); err != nil {
		t.Fatalf("RecordFirstAccess() ошибка: %v", err)
	}
	env.clock.Advance(time.Hour)
	if err := env.guests.RecordFirstAccess(ctx, g.ID); err != nil {
		t.Fatalf("RecordFirstAccess() ошибка: %v", err)
	}

	got, _ := env.guests.Get(ctx, g.ID)
	if got.FirstAccessAt == nil || !got.FirstAccessAt.Equal(first) {
		t.Errorf("FirstAccessAt = %v, ожидается %v", got.FirstAccessAt, first)
	}
	if got.LastAccessAt == nil || !got.LastAccessAt.Equal(env.clock.Now()) {
		t.Errorf("LastAccessAt = %v, ожидается %v", got.LastAccessAt, env.clock.Now())
	}
}

func TestGuestService_InviteDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)
	other := env.dossier(t, owner)
	env.invite(t, owner, d.ID, "alice@example.com", model.PermissionView)

	exists, err := env.guests.ExistsByEmail(ctx, d.ID, "ALICE@example.com")
	if err != nil || !exists {
		t.Errorf("ExistsByEmail() = %v, %v; ожидается true без учёта регистра", exists, err)
	}

	_, err = env.guests.Invite(ctx, owner.Actor(), testMeta, CreateGuestInput{
		DossierID: d.ID, Email: "Alice@Example.com", Permission: model.PermissionUpload, InvitedBy: owner.User.ID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("повторное приглашение: ошибка = %v, ожидается ErrConflict", err)
	}

	// Тот же email в другом dossier допустим
	env.invite(t, owner, other.ID, "alice@example.com", model.PermissionView)
}

func TestGuestService_InviteAuditAndURL(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.nl")
	d := env.dossier(t, owner)

	inv, err := env.guests.Invite(context.Background(), owner.Actor(), testMeta, CreateGuestInput{
		DossierID: d.ID, Email: "alice@example.com", Permission: model.PermissionUploadView, InvitedBy: owner.User.ID,
	})
	if err != nil {
		t.Fatalf("Invite() ошибка: %v", err)
	}
	wantURL := "https://portal.example.nl/documenten/toegang?token=" + inv.Token
	if inv.AccessURL != wantURL {
		t.Errorf("AccessURL = %q, ожидается %q", inv.AccessURL, wantURL)
	}

	e := env.lastAudit(t, model.AuditGuestInvited)
	if e.DossierID == nil || *e.DossierID != d.ID {
		t.Errorf("DossierID аудита = %v, ожидается %d", e.DossierID, d.ID)
	}
	if e.Actor != owner.Actor() || e.IP != testMeta.IP {
		t.Errorf("аудит: actor=%v ip=%q", e.Actor, e.IP)
	}
	if strings.Contains(strings.Join(detailStrings(e.Details), " "), inv.Token) {
		t.Error("токен не должен попадать в журнал аудита")
	}
}

func detailStrings(d map[string]any) []string {
	var out []string
	for _, v := range d {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestGuestService_RevokeInDossier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	a := env.dossier(t, owner)
	b := env.dossier(t, owner)
	g, _ := env.invite(t, owner, a.ID, "bob@example.com", model.PermissionView)

	if err := env.guests.RevokeInDossier(ctx, owner.Actor(), testMeta, b.ID, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("отзыв через чужой dossier: ошибка = %v, ожидается ErrNotFound", err)
	}
	if err := env.guests.RevokeInDossier(ctx, owner.Actor(), testMeta, a.ID, g.ID); err != nil {
		t.Fatalf("RevokeInDossier() ошибка: %v", err)
	}
	if err := env.guests.RevokeInDossier(ctx, owner.Actor(), testMeta, a.ID, g.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный отзыв: ошибка = %v, ожидается ErrConflict", err)
	}
	env.lastAudit(t, model.AuditGuestRevoked)
}

func TestGuestService_RegenerateInDossier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	a := env.dossier(t, owner)
	b := env.dossier(t, owner)
	g, _ := env.invite(t, owner, a.ID, "bob@example.com", model.PermissionView)

	if _, err := env.guests.RegenerateInDossier(ctx, owner.Actor(), testMeta, b.ID, g.ID, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("перевыпуск через чужой dossier: ошибка = %v, ожидается ErrNotFound", err)
	}
	inv, err := env.guests.RegenerateInDossier(ctx, owner.Actor(), testMeta, a.ID, g.ID, 0)
	if err != nil {
		t.Fatalf("RegenerateInDossier() ошибка: %v", err)
	}
	if !strings.HasSuffix(inv.AccessURL, inv.Token) {
		t.Errorf("AccessURL = %q", inv.AccessURL)
	}
	if e := env.lastAudit(t, model.AuditGuestInvited); e.Details["regenerated"] != true {
		t.Errorf("details = %v, ожидается regenerated=true", e.Details)
	}
}

func TestGuestService_HardDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner", "owner@example.nl")
	admin := env.user(t, "admin", "admin@example.nl")
	d := env.dossier(t, owner)

	plain, _ := env.invite(t, owner, d.ID, "plain@example.com", model.PermissionView)
	if err := env.guests.HardDelete(ctx, admin.Actor(), testMeta, plain.ID); err != nil {
		t.Fatalf("HardDelete() ошибка: %v", err)
	}
	if _, err := env.guests.Get(ctx, plain.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() после удаления: %v, ожидается ErrNotFound", err)
	}
	if err := env.guests.HardDelete(ctx, admin.Actor(), testMeta, plain.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: %v, ожидается ErrNotFound", err)
	}

	uploader, _ := env.invite(t, owner, d.ID, "uploader@example.com", model.PermissionUpload)
	env.uploadPDF(t, GuestPrincipal(uploader), d.ID, "bewijs", 1024)
	if err := env.guests.HardDelete(ctx, admin.Actor(), testMeta, uploader.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("удаление гостя с документами: %v, ожидается ErrConflict", err)
	}
}

func TestGuestService_ListByDossier(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.nl")
	a := env.dossier(t, owner)
	b := env.dossier(t, owner)
	env.invite(t, owner, a.ID, "one@example.com", model.PermissionView)
	env.clock.Advance(time.Second)
	env.invite(t, owner, a.ID, "two@example.com", model.PermissionView)
	env.invite(t, owner, b.ID, "three@example.com", model.PermissionView)

	list, err := env.guests.ListByDossier(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ListByDossier() ошибка: %v", err)
	}
	if len(list) != 2 || list[0].Email != "two@example.com" {
		t.Errorf("ListByDossier() = %d записей, первая %v", len(list), list)
	}
}
