package httpx

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/service"
)

// UIHandlers serves the HTML job viewer.
type UIHandlers struct {
	T         *TemplateRenderer
	Jobs      *service.JobService
	Poller    *service.StatusPoller
	Artifacts core.ArtifactReader
	Logger    *slog.Logger
}

type tabView struct {
	jobTab
	Count  int
	Active bool
}

type jobsView struct {
	Tabs      []tabView
	Active    string
	Jobs      []model.JobSummary
	Total     int
	PollEvery time.Duration
}

// Index lists jobs newest first, filtered by the ?status= tab. The list re-fetches itself as an
// htmx partial so new jobs and status changes show up without a reload.
func (h *UIHandlers) Index(w http.ResponseWriter, r *http.Request) {
	all, err := h.Jobs.List(r.Context(), "")
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "The job list could not be loaded.")
		h.logError(r, "list jobs", err)
		return
	}

	active := strings.TrimSpace(r.URL.Query().Get("status"))
	view := jobsView{Active: active, Total: len(all), PollEvery: timelinePollInterval}
	counts := map[string]int{}
	for _, j := range all {
		if st, err := model.JobStatusFromDisplay(j.Status); err == nil {
			counts[string(st)]++
		}
	}
	for _, tab := range jobTabs {
		view.Tabs = append(view.Tabs, tabView{jobTab: tab, Count: counts[tab.Key], Active: tab.Key == active})
	}
	for i := len(all) - 1; i >= 0; i-- {
		if active != "" {
			st, err := model.JobStatusFromDisplay(all[i].Status)
			if err != nil || string(st) != active {
				continue
			}
		}
		view.Jobs = append(view.Jobs, all[i])
	}

	h.renderPage(w, r, PageData{
		Title:       "Jobs",
		CurrentPage: PageJobs,
		Content:     templateJobs,
		Data:        view,
	})
}

type stepView struct {
	model.Step
	Escalatable bool
}

type keyDetail struct {
	Key   string
	Value string
}

type jobView struct {
	ID        model.JobID
	Record    *model.JobRecord
	Loading   bool
	PollEvery time.Duration
	Steps     []stepView
	Details   []keyDetail
	Voidable  bool
	// Prev and Next are the neighbouring ids in the Job Index, zero when there is none.
	Prev model.JobID
	Next model.JobID
}

func newJobView(id model.JobID, snap service.Snapshot) jobView {
	v := jobView{
		ID:        id,
		Record:    snap.Record,
		Loading:   snap.Loading,
		PollEvery: timelinePollInterval,
	}
	if snap.Record == nil {
		return v
	}
	v.Voidable = !snap.Record.Job.Status.Terminal()
	for _, s := range snap.Record.Logs {
		v.Steps = append(v.Steps, stepView{Step: s, Escalatable: s.Status == model.StepStatusError})
	}
	v.Details = orderedDetails(snap.Record.KeyDetails)
	return v
}

var detailOrder = []string{
	model.KeyDetailProcessName,
	model.KeyDetailTeam,
	model.KeyDetailProcessingDate,
	model.KeyDetailStatus,
}

func orderedDetails(in map[string]string) []keyDetail {
	out := make([]keyDetail, 0, len(in))
	for _, k := range detailOrder {
		if v, ok := in[k]; ok {
			out = append(out, keyDetail{Key: k, Value: v})
		}
	}
	rest := make([]string, 0, len(in))
	for k := range in {
		if !slices.Contains(detailOrder, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, keyDetail{Key: k, Value: in[k]})
	}
	return out
}

// neighbours returns the closest indexed ids below and above id, compared numerically. The
// index need not contain id itself.
func neighbours(index []model.JobSummary, id model.JobID) (prev, next model.JobID) {
	for _, e := range index {
		switch {
		case e.ID < id && e.ID > prev:
			prev = e.ID
		case e.ID > id && (next == 0 || e.ID < next):
			next = e.ID
		}
	}
	return prev, next
}

// loadJobView reads the record and the Job Index for one render.
func (h *UIHandlers) loadJobView(r *http.Request, id model.JobID) (jobView, error) {
	snap := h.Poller.Fetch(r.Context(), id, service.Snapshot{})
	if snap.Err != nil {
		return jobView{}, snap.Err
	}
	index, err := h.Jobs.List(r.Context(), "")
	if err != nil {
		return jobView{}, err
	}
	v := newJobView(id, snap)
	v.Prev, v.Next = neighbours(index, id)
	return v, nil
}

// Job renders the job page. A job that does not exist yet renders in its loading state.
func (h *UIHandlers) Job(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseJobID(r.PathValue("id"))
	if err != nil {
		h.NotFound(w, r)
		return
	}
	view, err := h.loadJobView(r, id)
	if err != nil {
		h.logError(r, "read job", err)
		h.renderError(w, r, http.StatusInternalServerError, "The job could not be loaded.")
		return
	}
	title := "Job " + id.String()
	if view.Record != nil {
		title = view.Record.Job.Label
	}
	h.renderPage(w, r, PageData{
		Title:       title,
		CurrentPage: PageJob,
		Content:     templateJob,
		Data:        view,
	})
}

// Timeline renders the polled timeline fragment, re-reading both the record and the Job Index
// so navigation picks up jobs created since the last poll. Read failures answer 503 so htmx
// keeps the previously swapped fragment.
func (h *UIHandlers) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseJobID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	view, err := h.loadJobView(r, id)
	if err != nil {
		h.logError(r, "poll job", err)
		http.Error(w, "job temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if err := h.T.Render(w, templateTimeline, view); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Artifact streams a published artifact. Seekable sources support range requests, which
// video players rely on.
func (h *UIHandlers) Artifact(w http.ResponseWriter, r *http.Request) {
	if h.Artifacts == nil {
		http.NotFound(w, r)
		return
	}
	key := r.PathValue("key")
	rc, err := h.Artifacts.Open(r.Context(), key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		h.logError(r, "open artifact", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer func() { _ = rc.Close() }()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil && !errors.Is(err, r.Context().Err()) {
		h.logError(r, "stream artifact", err)
	}
}

// NotFound renders the 404 page.
func (h *UIHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "Nothing lives at "+r.URL.Path+".")
}

type errorView struct {
	Status  int
	Title   string
	Message string
}

func (h *UIHandlers) renderPage(w http.ResponseWriter, r *http.Request, data PageData) {
	var err error
	if WantsPartial(r) {
		err = h.T.Render(w, data.Content, data.Data)
	} else {
		err = h.T.RenderFull(w, data)
	}
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *UIHandlers) renderError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.T.Render(w, "error-layout", errorView{Status: status, Title: http.StatusText(status), Message: msg}); err != nil {
		_, _ = io.WriteString(w, http.StatusText(status))
	}
}

func (h *UIHandlers) logError(r *http.Request, op string, err error) {
	if h.Logger != nil {
		h.Logger.ErrorContext(r.Context(), op+" failed", "error", err)
	}
}
