package models

import "time"

// JobStatus — состояние задачи экспорта. Переход в терминальное состояние ровно один.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailure JobStatus = "FAILURE"
)

// Terminal сообщает, что задача завершена.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailure
}

// ExportResult — описание готового артефакта.
type ExportResult struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Encoding  string `json:"format"`
}

// ExportJob — асинхронная выгрузка комментариев в файл.
type ExportJob struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Encoding   string        `json:"encoding"`
	Result     *ExportResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
