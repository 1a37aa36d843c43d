package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/donorhub/notify-pipeline/internal/api/middleware"
	"github.com/donorhub/notify-pipeline/internal/domain"
	"github.com/donorhub/notify-pipeline/internal/service"
)

// JobHandler serves the producer boundary (enqueue) and the operator view
// of dead-lettered jobs.
type JobHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewJobHandler(svc *service.NotificationService, logger *zap.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

// Enqueue handles POST /api/v1/jobs
//
// Accepts {"type": "...", "payload": {...}} and returns 202 with the job id.
// The producer's contract is binary: accepted durably, or a loud failure.
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// ListDeadLettered handles GET /api/v1/jobs/dead
func (h *JobHandler) ListDeadLettered(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListDeadLettered(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": jobs, "total": len(jobs)})
}
