package blobstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// defaultCategoryDir — каталог для категории, имя которой после очистки пусто.
const defaultCategoryDir = "overig"

// maxExtLength — максимальная длина сохраняемого расширения (без точки).
const maxExtLength = 10

// ContainerName возвращает имя контейнера dossier: <prefix>-<id, 7 цифр>.
// Например: dossier-0000042. Разные dossiers никогда не делят контейнер.
func ContainerName(prefix string, dossierID int64) string {
	return fmt.Sprintf("%s-%07d", prefix, dossierID)
}

// SanitizeCategory превращает название категории в имя каталога:
// строчные латинские буквы, цифры и дефис.
// Остальные символы, включая подчёркивание, заменяются дефисом, повторы схлопываются.
func SanitizeCategory(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return defaultCategoryDir
	}
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// Extension возвращает расширение исходного имени в нижнем регистре без точки.
// Пустая строка — расширения нет или оно содержит недопустимые символы.
func Extension(originalFilename string) string {
	base := originalFilename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
	if ext == "" || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return ext
}

// StorageFilename генерирует имя для хранения: UUID и расширение
// исходного файла в нижнем регистре. Исходное имя в результат не попадает.
// Пример: 3f0c1e9a-8d2b-4b7e-9a51-0c2f4d8e6b1a.pdf
func StorageFilename(originalFilename string) string {
	name := uuid.NewString()
	if ext := Extension(originalFilename); ext != "" {
		return name + "." + ext
	}
	return name
}

// BlobPath — путь blob внутри контейнера: <категория>/<storage filename>.
func BlobPath(category, storageFilename string) string {
	return SanitizeCategory(category) + "/" + storageFilename
}
