// Пакет model — доменные модели pdfvault.
// FileRecord — единая запись о загруженном документе, хранится в реестре.
package model

import (
	"time"
)

// FileStatus — статус документа.
type FileStatus string

const (
	// StatusUploaded — документ загружен и очищен, финализация не выполнена
	StatusUploaded FileStatus = "uploaded"
	// StatusProcessed — метаданные записаны, документ зашифрован и захэширован
	StatusProcessed FileStatus = "processed"
)

// FileRecord — запись о документе.
// Поле Path не входит в API-ответ: это внутренний путь относительно песочницы.
type FileRecord struct {
	// ID — уникальный идентификатор (UUID v4), не переиспользуется
	ID string `json:"id"`

	// CreatedAt — момент создания записи (UTC), от него отсчитывается возраст
	CreatedAt time.Time `json:"createdAt"`

	// Name — оригинальное имя файла при загрузке
	Name string `json:"name"`

	// Size — размер загруженного файла в байтах
	Size int64 `json:"size"`

	// MimeType — MIME-тип, заявленный при загрузке (или определённый по содержимому)
	MimeType string `json:"mimeType"`

	// Path — путь к файлу относительно песочницы. Единственный владелец файла.
	Path string `json:"-"`

	// UploadedBy — sub из JWT (пусто, если аутентификация отключена)
	UploadedBy string `json:"uploadedBy,omitempty"`

	Metadata Metadata `json:"metadata"`

	Status FileStatus `json:"status"`

	HasDocumentHash         bool `json:"hasDocumentHash"`
	HasEncryptedMetadata    bool `json:"hasEncryptedMetadata"`
	HasMetadataLocks        bool `json:"hasMetadataLocks"`
	HasEncryptedPermissions bool `json:"hasEncryptedPermissions"`

	// DocumentHash — hex SHA-256 обработанного файла, есть после финализации
	DocumentHash string `json:"documentHash,omitempty"`

	// PipelineState — последнее состояние конвейера финализации
	PipelineState string `json:"pipelineState"`

	// LastError — описание последней ошибки финализации
	LastError string `json:"lastError,omitempty"`
}

// Clone возвращает глубокую копию записи.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	c.Metadata = r.Metadata.Clone()
	return &c
}

// Age возвращает возраст записи на момент now.
func (r *FileRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// IsExpired проверяет, превышен ли максимальный возраст.
func (r *FileRecord) IsExpired(now time.Time, maxAge time.Duration) bool {
	return r.Age(now) > maxAge
}

// IsProcessed проверяет, что финализация завершена.
func (r *FileRecord) IsProcessed() bool {
	return r.Status == StatusProcessed
}
