package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/rbac"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-op"

const testIssuer = "https://idp.test/realms/ouderschapsplan"

// guestToken — корректный по форме гостевой токен.
var guestToken = strings.Repeat("ab", 32)

// fakeResolver — резолвер пользователей без БД.
type fakeResolver struct {
	err  error
	last service.Identity
}

func (f *fakeResolver) Resolve(_ context.Context, id service.Identity) (*model.User, error) {
	f.last = id
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: 7, ExternalID: id.Subject, Email: id.Email, Name: id.Name}, nil
}

// fakeGuests — проверка гостевого токена по фиксированному значению.
type fakeGuests struct {
	calls int
	meta  model.RequestMeta
}

func (f *fakeGuests) Authenticate(_ context.Context, token string, meta model.RequestMeta) (*model.Guest, error) {
	f.calls++
	f.meta = meta
	if token == "" {
		return nil, service.ErrNoToken
	}
	if token != guestToken {
		return nil, service.ErrInvalidToken
	}
	return &model.Guest{ID: 11, DossierID: 42, Permission: model.PermissionUploadView}, nil
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestAuth создаёт Authenticator с mock JWKS.
func newTestAuth(t *testing.T, key *rsa.PrivateKey, users UserResolver, guests GuestAuthenticator, limiter *RateLimiter) *Authenticator {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewAuthenticatorWithKeyfunc(kf, AuthOptions{
		Issuer:      testIssuer,
		AdminGroups: []string{"ouderschaps-admins"},
		Limiter:     limiter,
	}, users, guests, testLogger())
}

// userToken генерирует JWT пользователя.
func userToken(t *testing.T, key *rsa.PrivateKey, sub string, groups []string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":                sub,
		"email":              "Ouder@Example.nl",
		"name":               "Ouder Een",
		"preferred_username": "ouder1",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// capture — обработчик, запоминающий субъекта запроса.
func capture(p **service.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*p = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_ValidUserToken(t *testing.T) {
	key := generateTestKey(t)
	users := &fakeResolver{}
	auth := newTestAuth(t, key, users, &fakeGuests{}, nil)

	var got *service.Principal
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, key, "user-123", nil, nil))
	rec := httptest.NewRecorder()
	auth.Middleware()(capture(&got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if !got.IsUser() || got.User.ID != 7 {
		t.Fatalf("субъект = %+v, ожидается пользователь 7", got)
	}
	if got.Role != rbac.RoleUser {
		t.Errorf("роль = %s, ожидается %s", got.Role, rbac.RoleUser)
	}
	if users.last.Subject != "user-123" || users.last.Name != "Ouder Een" {
		t.Errorf("identity = %+v", users.last)
	}
}

func TestAuthenticator_RoleMapping(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuth(t, key, &fakeResolver{}, &fakeGuests{}, nil)

	tests := []struct {
		name   string
		groups []string
		mutate func(jwt.MapClaims)
		want   string
	}{
		{"группа администраторов", []string{"ouderschaps-admins"}, nil, rbac.RoleAdmin},
		{"обычная группа", []string{"ouders"}, nil, rbac.RoleUser},
		{"realm-роль admin", nil, func(c jwt.MapClaims) {
			c["realm_access"] = map[string]any{"roles": []string{"offline_access", "admin"}}
		}, rbac.RoleAdmin},
		{"без групп", nil, nil, rbac.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *service.Principal
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+userToken(t, key, "u", tt.groups, tt.mutate))
			auth.Middleware()(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)
			if got == nil || got.Role != tt.want {
				t.Errorf("роль = %v, ожидается %s", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_NameFallsBackToUsername(t *testing.T) {
	key := generateTestKey(t)
	users := &fakeResolver{}
	auth := newTestAuth(t, key, users, &fakeGuests{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, key, "u", nil, func(c jwt.MapClaims) { delete(c, "name") }))
	var got *service.Principal
	auth.Middleware()(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)

	if users.last.Name != "ouder1" {
		t.Errorf("Name = %q, ожидается preferred_username", users.last.Name)
	}
}

func TestAuthenticator_RejectedUserTokens(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	auth := newTestAuth(t, key, &fakeResolver{}, &fakeGuests{}, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"истёкший", userToken(t, key, "u", nil, func(c jwt.MapClaims) {
			c["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		})},
		{"чужой issuer", userToken(t, key, "u", nil, func(c jwt.MapClaims) { c["iss"] = "https://evil.test" })},
		{"без exp", userToken(t, key, "u", nil, func(c jwt.MapClaims) { delete(c, "exp") })},
		{"без sub", userToken(t, key, "", nil, nil)},
		{"чужой ключ", userToken(t, other, "u", nil, nil)},
		{"мусор с точками", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			auth.Middleware()(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("статус = %d, ожидается 401", rec.Code)
			}
			if called {
				t.Error("следующий обработчик не должен вызываться")
			}
			if !strings.Contains(rec.Body.String(), "Niet geautoriseerd") {
				t.Errorf("тело = %s", rec.Body.String())
			}
		})
	}
}

func TestAuthenticator_ResolverFailure(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuth(t, key, &fakeResolver{err: errors.New("db down")}, &fakeGuests{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, key, "u", nil, nil))
	rec := httptest.NewRecorder()
	auth.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("статус = %d, ожидается 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Error("детали ошибки не должны попадать в ответ")
	}
}

func TestAuthenticator_NonBearerScheme(t *testing.T) {
	auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, &fakeGuests{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	auth.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидается 401", rec.Code)
	}
}

func TestAuthenticator_AuthorizationHeaderDecidesFirst(t *testing.T) {
	key := generateTestKey(t)
	guests := &fakeGuests{}
	auth := newTestAuth(t, key, &fakeResolver{}, guests, nil)

	t.Run("JWT важнее гостевого токена", func(t *testing.T) {
		var got *service.Principal
		req := httptest.NewRequest(http.MethodGet, "/?token="+guestToken, nil)
		req.Header.Set("Authorization", "Bearer "+userToken(t, key, "user-123", nil, nil))
		req.Header.Set(HeaderGuestToken, guestToken)
		rec := httptest.NewRecorder()
		auth.Middleware()(capture(&got)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || !got.IsUser() {
			t.Fatalf("статус = %d, субъект = %+v, ожидается пользователь", rec.Code, got)
		}
	})

	t.Run("другая схема не доходит до гостевого токена", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		req.Header.Set(HeaderGuestToken, guestToken)
		rec := httptest.NewRecorder()
		auth.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("статус = %d, ожидается 401", rec.Code)
		}
	})

	if guests.calls != 0 {
		t.Errorf("гостевой токен проверялся %d раз, ожидается 0", guests.calls)
	}
}

func TestAuthenticator_Anonymous(t *testing.T) {
	guests := &fakeGuests{}
	auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, guests, nil)

	got := &service.Principal{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	auth.Middleware()(capture(&got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || got != nil {
		t.Errorf("статус = %d, субъект = %v; ожидается проход без субъекта", rec.Code, got)
	}
	if guests.calls != 0 {
		t.Error("без токена гостевая проверка не вызывается")
	}
}

func TestAuthenticator_GuestToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer без точек", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+guestToken) }},
		{"заголовок X-Guest-Token", func(r *http.Request) { r.Header.Set(HeaderGuestToken, guestToken) }},
		{"параметр token", func(r *http.Request) { r.URL.RawQuery = "token=" + guestToken }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guests := &fakeGuests{}
			auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, guests, nil)

			var got *service.Principal
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", "browser/1.0")
			req.RemoteAddr = "198.51.100.4:5123"
			tt.setup(req)
			rec := httptest.NewRecorder()
			auth.Middleware()(capture(&got)).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("статус = %d, ожидается 200", rec.Code)
			}
			if !got.IsGuest() || got.Guest.ID != 11 || got.IsUser() {
				t.Errorf("субъект = %+v, ожидается гость 11", got)
			}
			if guests.meta.IP != "198.51.100.4" || guests.meta.UserAgent != "browser/1.0" {
				t.Errorf("meta = %+v", guests.meta)
			}
		})
	}
}

func TestAuthenticator_InvalidGuestToken(t *testing.T) {
	auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, &fakeGuests{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/?token="+strings.Repeat("cd", 32), nil)
	rec := httptest.NewRecorder()
	auth.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидается 401", rec.Code)
	}
}

func TestAuthenticator_GuestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, &fakeGuests{}, limiter)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.9:1000"
		req.Header.Set(HeaderGuestToken, guestToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("коды = %v, ожидается [204 204 429]", codes)
	}

	// Запросы пользователей лимит не расходуют
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("анонимный запрос: статус = %d", rec.Code)
	}
}

func TestGuestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		auth   string
		header string
		query  string
		want   string
	}{
		{"bearer важнее заголовка", "Bearer aaa", "bbb", "ccc", "aaa"},
		{"заголовок важнее параметра", "", "bbb", "ccc", "bbb"},
		{"только параметр", "", "", "ccc", "ccc"},
		{"JWT в bearer не гостевой", "Bearer x.y.z", "", "ccc", "ccc"},
		{"bearer без учёта регистра схемы", "bearer aaa", "", "", "aaa"},
		{"другая схема", "Basic aaa", "", "", ""},
		{"ничего", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.header != "" {
				req.Header.Set(HeaderGuestToken, tt.header)
			}
			if tt.query != "" {
				req.URL.RawQuery = "token=" + tt.query
			}
			if got := GuestTokenFromRequest(req); got != tt.want {
				t.Errorf("GuestTokenFromRequest() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

// --- Проверки субъекта ---

func TestRequireMiddlewares(t *testing.T) {
	user := service.UserPrincipal(&model.User{ID: 1}, rbac.RoleUser)
	admin := service.UserPrincipal(&model.User{ID: 2}, rbac.RoleAdmin)
	guest := service.GuestPrincipal(&model.Guest{ID: 3})

	tests := []struct {
		name string
		mw   func(http.Handler) http.Handler
		p    *service.Principal
		want int
	}{
		{"authenticated: пользователь", RequireAuthenticated(), user, http.StatusOK},
		{"authenticated: гость", RequireAuthenticated(), guest, http.StatusOK},
		{"authenticated: никто", RequireAuthenticated(), nil, http.StatusUnauthorized},
		{"user: пользователь", RequireUser(), user, http.StatusOK},
		{"user: гость", RequireUser(), guest, http.StatusForbidden},
		{"user: никто", RequireUser(), nil, http.StatusUnauthorized},
		{"guest: гость", RequireGuest(), guest, http.StatusOK},
		{"guest: пользователь", RequireGuest(), user, http.StatusForbidden},
		{"guest: никто", RequireGuest(), nil, http.StatusUnauthorized},
		{"admin: admin", RequireRole(rbac.RoleAdmin), admin, http.StatusOK},
		{"admin: пользователь", RequireRole(rbac.RoleAdmin), user, http.StatusForbidden},
		{"admin: гость", RequireRole(rbac.RoleAdmin), guest, http.StatusForbidden},
		{"admin: никто", RequireRole(rbac.RoleAdmin), nil, http.StatusUnauthorized},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.p != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.p))
			}
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("статус = %d, хотели %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPrincipalFromContext_Empty(t *testing.T) {
	if p := PrincipalFromContext(context.Background()); p != nil {
		t.Errorf("ожидается nil, получен %+v", p)
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ключи есть", http.StatusOK, string(buildJWKSetJSON(&key.PublicKey, testKeyID)), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка IdP", http.StatusBadGateway, ``, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewJWKSReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if got, msg := checker.CheckReady(); got != tt.want {
				t.Errorf("CheckReady() = %s (%s), хотели %s", got, msg, tt.want)
			}
		})
	}
}
