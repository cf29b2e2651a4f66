package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/service"
)

// JobHandlers serves the job API.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// List returns the job index, optionally filtered with ?status=.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	var status model.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		if err := status.UnmarshalText([]byte(raw)); err != nil {
			WriteServiceError(w, apperrors.ValidationField("status", err.Error()))
			return
		}
	}
	jobs, err := h.Svc.List(r.Context(), status)
	if err != nil {
		h.fail(w, r, "list jobs", err)
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// Create enqueues a pending job from a plan.
func (h *JobHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req service.EnqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		WriteServiceError(w, apperrors.ValidationField("plan", "plan is required"))
		return
	}
	rec, err := h.Svc.Enqueue(r.Context(), req)
	if err != nil {
		h.fail(w, r, "enqueue job", err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+rec.Job.ID.String())
	WriteJSON(w, http.StatusCreated, rec)
}

// Get returns one job record.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	rec, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "read job", err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// Void discards an unfinished job. htmx callers get a page refresh.
func (h *JobHandlers) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Void(r.Context(), id); err != nil {
		h.fail(w, r, "void job", err)
		return
	}
	if IsHTMX(r) {
		SetHXRefresh(w)
	}
	WriteJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(model.JobStatusVoid)})
}

// Escalate fans a failed step out to the escalation sinks.
func (h *JobHandlers) Escalate(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	stepID := strings.TrimSpace(r.PathValue("stepID"))
	if err := h.Svc.Escalate(r.Context(), id, stepID); err != nil {
		h.fail(w, r, "escalate step", err)
		return
	}
	if IsHTMX(r) {
		SetHXTrigger(w, "step-escalated", map[string]string{"stepId": stepID})
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"id": id.String(), "stepId": stepID, "status": "escalated"})
}

// Plans lists the plan names jobs can be created from.
func (h *JobHandlers) Plans(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Plans())
}

func (h *JobHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if code, _ := StatusForError(err); code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.ErrorContext(r.Context(), op+" failed", "error", err)
	}
	WriteServiceError(w, err)
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request) (model.JobID, bool) {
	id, err := model.ParseJobID(r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, apperrors.ValidationField("id", err.Error()))
		return 0, false
	}
	return id, true
}
