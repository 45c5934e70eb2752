// Пакет wal — файловые write-ahead маркеры операций реестра.
// Каждая транзакция — отдельный файл {tx_id}.wal.json в DR_WAL_DIR.
// Маркер открывается до записи содержимого и фиксирует blob, чтобы
// сбой на шаге метаданных оставлял след для последующей очистки.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpRegister — регистрация нового документа
	OpRegister OperationType = "register"
	// OpReplace — замена документа новой версией
	OpReplace OperationType = "replace"
	// OpDeprecate — перевод документа в Deprecated
	OpDeprecate OperationType = "deprecate"
	// OpDelete — физическое удаление документа
	OpDelete OperationType = "delete"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена до записи содержимого
	StatusRolledBack TransactionStatus = "rolled_back"
	// StatusOrphaned — содержимое записано, метаданные нет; blob осиротел
	StatusOrphaned TransactionStatus = "orphaned"
)

// Entry — запись WAL. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	Operation OperationType     `json:"operation"`
	Status    TransactionStatus `json:"status"`

	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id,omitempty"`

	// BlobID — blob, записанный в рамках транзакции (если уже записан)
	BlobID string `json:"blob_id,omitempty"`

	// Error — причина отката или осиротения
	Error string `json:"error,omitempty"`

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения транзакции (UTC).
	// nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFinished сообщает, что транзакция завершена и маркер можно удалить.
// Осиротевшие маркеры не считаются завершёнными.
func (e *Entry) IsFinished() bool {
	return e.Status == StatusCommitted || e.Status == StatusRolledBack
}

// walFileName возвращает имя файла WAL для данной транзакции.
func walFileName(txID string) string {
	return txID + ".wal.json"
}
