package model

import "time"

// Document — метаданные загруженного файла (таблица dossier_documenten).
// Сам файл хранится в blob-хранилище; при soft delete blob не удаляется.
type Document struct {
	ID         int64
	DossierID  int64
	CategoryID int64
	// BlobContainer — контейнер dossier (например dossier-0000042)
	BlobContainer string
	// BlobPath — путь внутри контейнера: <категория>/<storage filename>
	BlobPath         string
	OriginalFilename string
	StoredFilename   string
	Size             int64
	MimeType         string
	// UploadedBy — пользователь или гость, ровно один
	UploadedBy Actor
	UploadIP   string
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// DocumentWithCategory — документ с данными категории и именем загрузившего.
type DocumentWithCategory struct {
	Document
	CategoryName string
	// UploaderName — имя пользователя, иначе имя гостя, иначе email гостя
	UploaderName string
}
