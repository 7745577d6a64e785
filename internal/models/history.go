package models

import "time"

// ChangeKind — вид изменения комментария в журнале истории.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "Created"
	ChangeModified ChangeKind = "Modified"
	ChangeDeleted  ChangeKind = "Deleted"
)

// Valid сообщает, известен ли вид изменения.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreated, ChangeModified, ChangeDeleted:
		return true
	default:
		return false
	}
}

// HistoryRecord — неизменяемый снимок изменяемых полей комментария (сейчас только Text).
// Записи только добавляются; порядок выдачи — (ChangedAt, ID) по убыванию.
type HistoryRecord struct {
	ID        int64
	CommentID int64
	Text      string
	Kind      ChangeKind
	ChangedBy int64
	ChangedAt time.Time
}

// HistoryFilter — фильтр журнала; nil-поля не участвуют.
type HistoryFilter struct {
	CommentID *int64
	ChangedBy *int64
	From      *time.Time
	To        *time.Time
	Kind      *ChangeKind
}
