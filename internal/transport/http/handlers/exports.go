package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	apierrors "github.com/pribylovaa/comment-tree/internal/transport/http/errors"
)

// SubmitExport ставит выгрузку в очередь: 202 и id задачи.
// Неизвестный формат и некорректный фильтр не отклоняются: задача завершится FAILURE.
func (h *Handlers) SubmitExport(w http.ResponseWriter, r *http.Request) {
	var in ExportRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	id, err := h.svc.SubmitExport(r.Context(), in.Filter.ToModel(), in.Format)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.Header().Set("Location", "/comments/exports/"+id)
	writeJSON(w, http.StatusAccepted, ExportSubmitted{TaskID: id})
}

// PollExport — текущее состояние задачи.
func (h *Handlers) PollExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.PollExport(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// DownloadExport отдаёт файл успешной задачи как вложение.
func (h *Handlers) DownloadExport(w http.ResponseWriter, r *http.Request) {
	rc, res, err := h.svc.OpenExport(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", res.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// Заголовки уже отправлены: остаётся только залогировать.
		log.From(r.Context()).Warn("export_download_interrupted", "file", res.Filename, "err", err)
	}
}
