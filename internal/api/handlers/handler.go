// handler.go — основной обработчик API.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
// Обработчики не принимают решений о доступе: это делает шлюз доступа в сервисах.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/middleware"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/storage/blobstore"
)

// maxJSONBody — лимит тела JSON-запроса.
const maxJSONBody = 64 << 10

// Deps — сервисы, используемые обработчиками.
type Deps struct {
	Categories *service.CategoryService
	Dossiers   *service.DossierService
	Documents  *service.DocumentService
	Guests     *service.GuestService
	Gate       *service.AccessGate
	Audit      *service.AuditService
	// Blobs — хранилище для /blobs (только локальный провайдер)
	Blobs *blobstore.Store
	// MaxUploadBytes — лимит тела multipart-запроса загрузки
	MaxUploadBytes int64
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	Deps
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(deps Deps, logger *slog.Logger) *APIHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &APIHandler{
		Deps:     deps,
		validate: v,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// jsonFieldName — имя поля в ошибках валидации берётся из json-тега.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации из строки запроса.
// Возвращает корректные limit (1..maxLimit, по умолчанию defLimit) и offset.
func paginationDefaults(r *http.Request, defLimit, maxLimit int) (int, int) {
	l := defLimit
	o := 0

	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		l = v
		if l < 1 {
			l = 1
		}
		if l > maxLimit {
			l = maxLimit
		}
	}

	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		o = v
	}

	return l, o
}

// pathID разбирает положительный числовой параметр пути.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeJSON читает и валидирует тело запроса. При ошибке отвечает 400 и возвращает false.
// Пустое тело допустимо, если allowEmpty.
func (h *APIHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			apierrors.ValidationError(w, "Ongeldige JSON in verzoek")
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		apierrors.ValidationError(w, validationMessage(err))
		return false
	}
	return true
}

// validationMessage переводит ошибку validator в сообщение для пользователя.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Ongeldige invoer"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Veld %s is verplicht", fe.Field())
	case "email":
		return fmt.Sprintf("Veld %s moet een geldig e-mailadres zijn", fe.Field())
	case "oneof":
		return fmt.Sprintf("Veld %s moet een van de volgende waarden hebben: %s", fe.Field(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("Veld %s valt buiten het toegestane bereik (%s %s)", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("Veld %s is ongeldig", fe.Field())
	}
}

// principal возвращает субъекта запроса (nil для анонимного).
func principal(r *http.Request) *service.Principal {
	return middleware.PrincipalFromContext(r.Context())
}

// meta — IP и user agent запроса для аудита.
func meta(r *http.Request) model.RequestMeta {
	return middleware.RequestMeta(r)
}

// errorMessages — тексты 404/409, зависящие от ресурса.
type errorMessages struct {
	notFound string
	conflict string
}

// writeError переводит ошибку сервисного слоя в HTTP-ответ.
// 401/403/500 отвечают фиксированным текстом; подробности идут только в лог.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msgs errorMessages) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		apierrors.ValidationError(w, verr.Message)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, "Ongeldige invoer")
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrNoToken),
		errors.Is(err, service.ErrInvalidToken):
		apierrors.Unauthorized(w)
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w)
	case errors.Is(err, service.ErrNotFound):
		msg := msgs.notFound
		if msg == "" {
			msg = "Niet gevonden"
		}
		apierrors.NotFound(w, msg)
	case errors.Is(err, service.ErrConflict):
		msg := msgs.conflict
		if msg == "" {
			msg = "Conflict met bestaande gegevens"
		}
		apierrors.Conflict(w, msg)
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("Ошибка хранилища",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.ServiceUnavailable(w, "Documentopslag is tijdelijk niet beschikbaar")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w)
	}
}
