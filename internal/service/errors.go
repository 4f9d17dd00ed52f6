// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден (или принадлежит другому dossier).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс, повторное действие).
	ErrConflict = errors.New("конфликт: ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — субъект запроса не определён.
	ErrUnauthorized = errors.New("не аутентифицирован")
	// ErrForbidden — субъект определён, но доступа нет.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrNoToken — гостевой токен не передан.
	ErrNoToken = errors.New("гостевой токен не передан")
	// ErrInvalidToken — токен некорректен, не найден, истёк или отозван.
	ErrInvalidToken = errors.New("недействительный гостевой токен")
	// ErrStorage — blob-хранилище недоступно.
	ErrStorage = errors.New("ошибка blob-хранилища")
)

// ValidationError — ошибка валидации с сообщением для пользователя.
// errors.Is(err, ErrValidation) возвращает true.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Message
}

// Unwrap связывает ошибку с ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// validationError создаёт ValidationError с форматированным сообщением.
func validationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// fromRepo переводит ошибки репозитория в ошибки сервисного слоя,
// сохраняя исходную ошибку в цепочке для логов.
func fromRepo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, repository.ErrValidation):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}
