package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
	apierrors "github.com/pribylovaa/comment-tree/internal/transport/http/errors"
)

func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in CreateCommentRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	root, err := rootRef(in.ContentType, in.ObjectID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	c, err := h.svc.CreateComment(r.Context(), service.CreateCommentInput{
		Actor:    actor,
		Root:     root,
		ParentID: in.Parent,
		Text:     in.Text,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := commentFromModel(*c)
	leaf := true
	out.IsLeaf = &leaf

	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) GetComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	c, err := h.svc.CommentByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	leaf, err := h.svc.IsLeaf(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := commentFromModel(*c)
	out.IsLeaf = &leaf

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in UpdateCommentRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	c, err := h.svc.UpdateComment(r.Context(), service.UpdateCommentInput{Actor: actor, ID: id, Text: in.Text})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commentFromModel(*c))
}

func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteComment(r.Context(), service.DeleteCommentInput{Actor: actor, ID: id}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListComments — выборка по параметрам
// ?content_type=&object_id=&ancestor=&user_id=&created_from=&created_to=&level=
//
// С level выборка ограничена одним уровнем и отдаётся сразу.
// Без level запрос ставится в очередь: 202 {task_id}; результат — GET /comments?task_id=.
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	if taskID := first(r.URL.Query(), "task_id"); taskID != "" {
		h.listResult(w, r, taskID)
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if f.Level != nil {
		items, err := h.svc.ListComments(r.Context(), f)
		if err != nil {
			apierrors.WriteError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, commentsFromModels(items))
		return
	}

	id, err := h.svc.SubmitList(r.Context(), f)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.Header().Set("Location", "/comments?task_id="+url.QueryEscape(id))
	writeJSON(w, http.StatusAccepted, ExportSubmitted{TaskID: id})
}

func (h *Handlers) listResult(w http.ResponseWriter, r *http.Request, taskID string) {
	job, err := h.svc.ListResult(r.Context(), taskID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listTaskFromModel(job))
}

// RootLevelPage — корневые комментарии сущности: /roots/{kind}/{id}/comments?page=
func (h *Handlers) RootLevelPage(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseRootKind(chi.URLParam(r, "kind"))
	if err != nil {
		apierrors.WriteError(w, r, invalid("kind: %v", err))
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	number := 1
	page, err := queryInt(r.URL.Query(), "page")
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if page != nil {
		number = *page
	}

	p, err := h.svc.RootLevelPage(r.Context(), models.RootRef{Kind: kind, ID: id}, number)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageFromModel(p))
}

func filterFromQuery(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()

	var (
		req FilterRequest
		err error
	)

	req.ContentType = first(q, "content_type")

	objectID, err := queryInt64(q, "object_id")
	if err != nil {
		return models.Filter{}, err
	}
	if objectID != nil {
		req.ObjectID = *objectID
	}

	if req.Ancestor, err = queryInt64(q, "ancestor"); err != nil {
		return models.Filter{}, err
	}

	if req.UserID, err = queryInt64(q, "user_id"); err != nil {
		return models.Filter{}, err
	}

	if req.CreatedFrom, err = queryTime(q, "created_from"); err != nil {
		return models.Filter{}, err
	}

	if req.CreatedTo, err = queryTime(q, "created_to"); err != nil {
		return models.Filter{}, err
	}

	if req.Level, err = queryInt(q, "level"); err != nil {
		return models.Filter{}, err
	}

	return req.ToModel(), nil
}
