package model

import "strings"

// Category — категория документов (таблица document_categorieen).
// Справочные данные: разрешённые расширения и максимальный размер.
type Category struct {
	ID          int64
	Name        string
	Description *string
	// AllowedExtensions — расширения через запятую, например "pdf,jpg"
	AllowedExtensions string
	MaxSizeMB         int
	SortOrder         int
	Active            bool
}

// Extensions возвращает разрешённые расширения в нижнем регистре, без точки.
func (c *Category) Extensions() []string {
	parts := strings.Split(c.AllowedExtensions, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// AllowsExtension проверяет расширение (с точкой или без, регистр не важен).
func (c *Category) AllowsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, e := range c.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// MaxSizeBytes — максимальный размер файла в байтах.
func (c *Category) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}
