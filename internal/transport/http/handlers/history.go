package handlers

import (
	"net/http"

	"github.com/pribylovaa/comment-tree/internal/models"
	apierrors "github.com/pribylovaa/comment-tree/internal/transport/http/errors"
)

// ListHistory — журнал изменений: ?comment_id=&changed_by=&from=&to=&kind=
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		f   models.HistoryFilter
		err error
	)

	if f.CommentID, err = queryInt64(q, "comment_id"); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if f.ChangedBy, err = queryInt64(q, "changed_by"); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if f.From, err = queryTime(q, "from"); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if f.To, err = queryTime(q, "to"); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if raw := first(q, "kind"); raw != "" {
		kind := models.ChangeKind(raw)
		f.Kind = &kind
	}

	records, err := h.svc.ListHistory(r.Context(), f)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyFromModels(records))
}
