package model

import "time"

// ReplacedReason — причина отзыва записи, заменённой новой версией.
const ReplacedReason = "Replaced by new version."

// Deprecation — отметка об отзыве записи.
type Deprecation struct {
	By     string
	Reason string
	At     time.Time
}

// Apply переводит запись в Deprecated.
func (d Deprecation) Apply(entry *DocumentEntry) {
	at := d.At
	entry.AvailabilityStatus = StatusDeprecated
	entry.DeprecatedAt = &at
	entry.DeprecatedBy = d.By
	entry.DeprecationReason = d.Reason
	entry.UpdatedAt = d.At
}

// Replacement — три эффекта замены, применяемые атомарно:
// новая запись, связь Replaces и отзыв старой записи.
type Replacement struct {
	TenantID    string
	OldID       string
	New         *DocumentEntry
	Association *Association
	Deprecation Deprecation
}
