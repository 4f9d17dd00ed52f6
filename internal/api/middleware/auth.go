// auth.go — аутентификация запросов: JWT пользователя или гостевой токен.
// JWT проверяется по JWKS IdP (RS256), пользователь сопоставляется с локальной
// записью. Гостевой токен проверяется через GuestAuthenticator.
// Запрос обрабатывается либо как пользователь, либо как гость, но не как оба.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/rbac"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — субъект запроса (*service.Principal).
	ContextKeyPrincipal contextKey = "principal"
)

// HeaderGuestToken — заголовок с гостевым токеном.
const HeaderGuestToken = "X-Guest-Token"

// errInvalidJWT — JWT не прошёл проверку.
var errInvalidJWT = errors.New("невалидный JWT")

// UserResolver сопоставляет идентичность из JWT с локальным пользователем.
// Реализуется service.UserService.
type UserResolver interface {
	Resolve(ctx context.Context, id service.Identity) (*model.User, error)
}

// GuestAuthenticator проверяет гостевой токен.
// Реализуется service.GuestAuthenticator.
type GuestAuthenticator interface {
	Authenticate(ctx context.Context, token string, meta model.RequestMeta) (*model.Guest, error)
}

// oidcClaims — raw claims из JWT IdP.
type oidcClaims struct {
	jwt.RegisteredClaims
	// Email — электронная почта.
	Email string `json:"email"`
	// Name — отображаемое имя.
	Name string `json:"name"`
	// PreferredUsername — имя пользователя (запасное отображаемое имя).
	PreferredUsername string `json:"preferred_username"`
	// RealmAccess — вложенная структура для realm_access.roles.
	RealmAccess *realmAccess `json:"realm_access,omitempty"`
	// Groups — группы пользователя.
	Groups []string `json:"groups,omitempty"`
}

// realmAccess — вложенная структура realm_access в JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWKSOptions — источник ключей подписи JWT.
type JWKSOptions struct {
	// URL — JWKS endpoint IdP
	URL string
	// CACertPath — опциональный CA-сертификат для TLS
	CACertPath string
	// ClientTimeout — таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// RefreshInterval — интервал обновления ключей
	RefreshInterval time.Duration
}

// AuthOptions — параметры проверки JWT и гостевых запросов.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	// Leeway — допустимое отклонение часов
	Leeway time.Duration
	// AdminGroups — группы IdP, дающие роль admin
	AdminGroups []string
	// Limiter — лимит частоты гостевых запросов по IP (nil — без лимита)
	Limiter *RateLimiter
}

// Authenticator — middleware аутентификации.
type Authenticator struct {
	jwks   keyfunc.Keyfunc
	users  UserResolver
	guests GuestAuthenticator
	opts   AuthOptions
	logger *slog.Logger
}

// NewAuthenticator создаёт middleware с JWKS из IdP.
// Старт не блокируется, если IdP ещё недоступен: ключи подтянутся фоновым обновлением.
func NewAuthenticator(
	jwksOpts JWKSOptions,
	opts AuthOptions,
	users UserResolver,
	guests GuestAuthenticator,
	logger *slog.Logger,
) (*Authenticator, error) {
	httpClient := &http.Client{Timeout: jwksOpts.ClientTimeout}
	if jwksOpts.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(jwksOpts.CACertPath, jwksOpts.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", jwksOpts.CACertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", jwksOpts.CACertPath),
		)
	}

	storage, err := jwkset.NewStorageFromHTTP(jwksOpts.URL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksOpts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksOpts.URL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewAuthenticatorWithKeyfunc(k, opts, users, guests, logger), nil
}

// NewAuthenticatorWithKeyfunc создаёт middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewAuthenticatorWithKeyfunc(
	kf keyfunc.Keyfunc,
	opts AuthOptions,
	users UserResolver,
	guests GuestAuthenticator,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		jwks:   kf,
		users:  users,
		guests: guests,
		opts:   opts,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// Middleware возвращает HTTP middleware аутентификации.
// Порядок: Authorization решает первым. Bearer с точками — JWT пользователя,
// и X-Guest-Token или ?token= в этом случае не читаются. Authorization другой
// схемы — 401 без проверки гостевых источников. Иначе ищется гостевой токен
// (GuestTokenFromRequest). Запрос без учётных данных проходит дальше без
// субъекта: решение принимают RequireUser/RequireAuthenticated или шлюз доступа.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			bearer, isBearer := bearerToken(authHeader)
			if authHeader != "" && !isBearer {
				apierrors.Unauthorized(w)
				return
			}

			if isBearer && strings.Contains(bearer, ".") {
				p, err := a.authenticateUser(r.Context(), bearer)
				if err != nil {
					a.writeAuthError(w, r, err)
					return
				}
				noteActor(w, p)
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			token := GuestTokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if a.opts.Limiter != nil && !a.opts.Limiter.Allow(ClientIP(r)) {
				a.logger.Warn("Превышен лимит гостевых запросов",
					slog.String("remote_addr", ClientIP(r)),
				)
				w.Header().Set("Retry-After", "1")
				apierrors.TooManyRequests(w)
				return
			}

			guest, err := a.guests.Authenticate(r.Context(), token, RequestMeta(r))
			if err != nil {
				a.writeAuthError(w, r, err)
				return
			}
			p := service.GuestPrincipal(guest)
			noteActor(w, p)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// writeAuthError отвечает 401 на невалидные учётные данные и 500 на сбои.
func (a *Authenticator) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidJWT),
		errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrNoToken):
		a.logger.Debug("Аутентификация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", ClientIP(r)),
		)
		apierrors.Unauthorized(w)
	default:
		a.logger.Error("Ошибка аутентификации",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		apierrors.InternalError(w)
	}
}

// authenticateUser проверяет JWT и сопоставляет его с локальным пользователем.
func (a *Authenticator) authenticateUser(ctx context.Context, tokenString string) (*service.Principal, error) {
	raw := &oidcClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.opts.Leeway),
	}
	if a.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.opts.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, raw, a.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidJWT, err)
	}
	if !token.Valid {
		return nil, errInvalidJWT
	}

	subject, err := raw.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", errInvalidJWT)
	}

	id := identityFromClaims(raw, a.opts.AdminGroups)
	user, err := a.users.Resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("сопоставление пользователя %s: %w", subject, err)
	}
	return service.UserPrincipal(user, id.Role), nil
}

// identityFromClaims формирует идентичность и роль из claims.
func identityFromClaims(raw *oidcClaims, adminGroups []string) service.Identity {
	name := raw.Name
	if name == "" {
		name = raw.PreferredUsername
	}
	var realmRoles []string
	if raw.RealmAccess != nil {
		realmRoles = raw.RealmAccess.Roles
	}
	return service.Identity{
		Subject: raw.Subject,
		Email:   raw.Email,
		Name:    name,
		Role:    rbac.MapToRole(raw.Groups, realmRoles, adminGroups),
	}
}

// bearerToken извлекает значение из "Authorization: Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// GuestTokenFromRequest извлекает гостевой токен в порядке приоритета:
// Authorization: Bearer без точек (JWT всегда содержит точки),
// заголовок X-Guest-Token, параметр запроса token.
func GuestTokenFromRequest(r *http.Request) string {
	if bearer, ok := bearerToken(r.Header.Get("Authorization")); ok && bearer != "" && !strings.Contains(bearer, ".") {
		return bearer
	}
	if t := strings.TrimSpace(r.Header.Get(HeaderGuestToken)); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// --- Проверки субъекта ---

// RequireAuthenticated пропускает запросы с любым субъектом.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PrincipalFromContext(r.Context()) == nil {
				apierrors.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser пропускает только пользователей; гостю отвечает 403.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			switch {
			case p == nil:
				apierrors.Unauthorized(w)
			case !p.IsUser():
				apierrors.Forbidden(w)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireGuest пропускает только гостей.
func RequireGuest() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			switch {
			case p == nil:
				apierrors.Unauthorized(w)
			case !p.IsGuest():
				apierrors.Forbidden(w)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireRole пропускает пользователей с одной из указанных ролей.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierrors.Unauthorized(w)
				return
			}
			if !p.IsUser() {
				apierrors.Forbidden(w)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierrors.Forbidden(w)
		})
	}
}

// --- Context helpers ---

// WithPrincipal помещает субъекта в контекст.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext извлекает субъекта запроса.
// Возвращает nil, если запрос не аутентифицирован.
func PrincipalFromContext(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*service.Principal)
	return p
}

// --- ReadinessChecker для IdP ---

// JWKSReadinessChecker — проверка доступности IdP через JWKS.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности IdP.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint IdP.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
