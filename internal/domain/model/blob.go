package model

import "time"

// BlobRecord — sidecar-метаданные хранимого содержимого
// (<root>/<tenantId>/metadata/<blobId>.json).
// Является единственным источником истины для хеша и флага deprecated.
// Имена JSON-полей — стабильный контракт для внешних инструментов.
type BlobRecord struct {
	FileID          string     `json:"fileId"`
	FileName        string     `json:"fileName"`
	OriginalName    string     `json:"originalName"`
	MimeType        string     `json:"mimeType"`
	Size            int64      `json:"size"`
	Hash            string     `json:"hash"`
	CreatedAt       time.Time  `json:"createdAt"`
	UploadedBy      string     `json:"uploadedBy"`
	PreviousVersion string     `json:"previousVersion,omitempty"`
	Deprecated      bool       `json:"deprecated,omitempty"`
	DeprecatedAt    *time.Time `json:"deprecatedAt,omitempty"`
}
