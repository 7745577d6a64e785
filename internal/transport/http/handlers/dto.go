package handlers

import (
	"time"

	"github.com/ecodeclub/ekit/slice"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
)

// CommentResponse — комментарий в ответах API.
type CommentResponse struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ContentType models.RootKind `json:"content_type"`
	ObjectID    int64           `json:"object_id"`
	Parent      *int64          `json:"parent"`
	Level       int             `json:"level"`
	Ancestors   []int64         `json:"ancestors"`
	Text        string          `json:"text"`
	Created     time.Time       `json:"created"`
	IsLeaf      *bool           `json:"is_leaf,omitempty"`
}

// CreateCommentRequest — корневой комментарий (content_type + object_id) или ответ (parent).
type CreateCommentRequest struct {
	ContentType string `json:"content_type,omitempty"`
	ObjectID    int64  `json:"object_id,omitempty"`
	Parent      *int64 `json:"parent,omitempty"`
	Text        string `json:"text"`
}

// UpdateCommentRequest — новый текст комментария.
type UpdateCommentRequest struct {
	Text string `json:"text"`
}

// PageResponse — страница корневых комментариев.
type PageResponse struct {
	Count    int               `json:"count"`
	Next     *int              `json:"next"`
	Previous *int              `json:"previous"`
	Results  []CommentResponse `json:"results"`
}

// FilterRequest — дескриптор выборки в теле запроса экспорта.
// Поля совпадают с параметрами GET /comments.
type FilterRequest struct {
	ContentType string     `json:"content_type,omitempty"`
	ObjectID    int64      `json:"object_id,omitempty"`
	Ancestor    *int64     `json:"ancestor,omitempty"`
	UserID      *int64     `json:"user_id,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	Level       *int       `json:"level,omitempty"`
}

// ExportRequest — запрос на асинхронную выгрузку.
type ExportRequest struct {
	Filter FilterRequest `json:"filter"`
	Format string        `json:"format"`
}

// ExportSubmitted — id задачи для последующего опроса.
type ExportSubmitted struct {
	TaskID string `json:"task_id"`
}

// ListTaskResponse — опрос задачи выборки: result равен null, пока задача не SUCCESS.
type ListTaskResponse struct {
	TaskID string            `json:"task_id"`
	Status models.JobStatus  `json:"status"`
	Error  string            `json:"error,omitempty"`
	Result []CommentResponse `json:"result"`
}

// HistoryResponse — запись журнала изменений.
type HistoryResponse struct {
	ID        int64             `json:"id"`
	CommentID int64             `json:"comment_id"`
	Text      string            `json:"text"`
	Kind      models.ChangeKind `json:"history_type"`
	ChangedBy int64             `json:"changed_by"`
	ChangedAt time.Time         `json:"changed_at"`
}

func commentFromModel(c models.Comment) CommentResponse {
	anc := c.Ancestors
	if anc == nil {
		anc = []int64{}
	}

	return CommentResponse{
		ID:          c.ID,
		UserID:      c.OwnerID,
		ContentType: c.Root.Kind,
		ObjectID:    c.Root.ID,
		Parent:      c.ParentID,
		Level:       c.Level,
		Ancestors:   anc,
		Text:        c.Text,
		Created:     c.CreatedAt.UTC(),
	}
}

func commentsFromModels(items []models.Comment) []CommentResponse {
	return slice.Map(items, func(_ int, c models.Comment) CommentResponse {
		return commentFromModel(c)
	})
}

func pageFromModel(p *models.Page) PageResponse {
	return PageResponse{
		Count:    p.Total,
		Next:     p.Next,
		Previous: p.Previous,
		Results:  commentsFromModels(p.Items),
	}
}

func historyFromModels(items []models.HistoryRecord) []HistoryResponse {
	return slice.Map(items, func(_ int, r models.HistoryRecord) HistoryResponse {
		return HistoryResponse{
			ID:        r.ID,
			CommentID: r.CommentID,
			Text:      r.Text,
			Kind:      r.Kind,
			ChangedBy: r.ChangedBy,
			ChangedAt: r.ChangedAt.UTC(),
		}
	})
}

// rootRef собирает ссылку на сущность; пустой content_type — ссылки нет.
func rootRef(kind string, id int64) (*models.RootRef, error) {
	if kind == "" && id == 0 {
		return nil, nil
	}

	k, err := models.ParseRootKind(kind)
	if err != nil {
		return nil, invalid("content_type: %v", err)
	}

	if id <= 0 {
		return nil, invalid("object_id must be > 0")
	}

	return &models.RootRef{Kind: k, ID: id}, nil
}

// ToModel переводит тело запроса в дескриптор выборки.
// Значения не проверяются: некорректный дескриптор завершит задачу FAILURE.
func (f FilterRequest) ToModel() models.Filter {
	var root *models.RootRef
	if f.ContentType != "" || f.ObjectID != 0 {
		kind, err := models.ParseRootKind(f.ContentType)
		if err != nil {
			kind = models.RootKind(f.ContentType)
		}
		root = &models.RootRef{Kind: kind, ID: f.ObjectID}
	}

	return models.Filter{
		Root:        root,
		AncestorID:  f.Ancestor,
		OwnerID:     f.UserID,
		CreatedFrom: f.CreatedFrom,
		CreatedTo:   f.CreatedTo,
		Level:       f.Level,
	}
}

func listTaskFromModel(j *service.ListJob) ListTaskResponse {
	out := ListTaskResponse{
		TaskID: j.Job.ID,
		Status: j.Job.Status,
		Error:  j.Job.Error,
	}
	if j.Job.Status == models.JobSuccess {
		out.Result = commentsFromModels(j.Items)
	}

	return out
}
