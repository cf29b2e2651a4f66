package httpx

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	runboard "github.com/target/runboard"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/service"
)

// Paths of the on-disk frontend used in dev mode.
const (
	TemplatePathFromRoot = "frontend/templates"
	StaticPathFromRoot   = "frontend/static"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobService
	Poller *service.StatusPoller
	// Artifacts serves /artifacts/ (optional).
	Artifacts core.ArtifactReader
	// Ping backs the readiness probe (optional).
	Ping func(ctx context.Context) error
	// TemplateFS overrides where templates are parsed from.
	TemplateFS fs.FS
	IsDev      bool         // Development mode: templates and static files are read from disk
	Logger     *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router: the JSON API under /api, the job viewer,
// artifacts, static assets, and health probes.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, Logger: logger}
	registerJobRoutes(mux, jobHandlers)

	health := &HealthHandlers{Ping: services.Ping, Logger: logger}
	mux.HandleFunc("GET /healthz", health.Live)
	mux.HandleFunc("HEAD /healthz", health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)

	mux.Handle("GET /static/", staticHandler(services.IsDev, logger))

	ui := setupUIHandlers(services, logger)
	if ui == nil {
		return mux
	}
	mux.HandleFunc("GET /{$}", ui.Index)
	mux.HandleFunc("GET /jobs/{id}", ui.Job)
	mux.HandleFunc("GET /jobs/{id}/timeline", ui.Timeline)
	mux.HandleFunc("GET /artifacts/{key...}", ui.Artifact)
	mux.HandleFunc("/", ui.NotFound)
	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("POST /api/jobs", h.Create)
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)
	mux.HandleFunc("POST /api/jobs/{id}/void", h.Void)
	mux.HandleFunc("POST /api/jobs/{id}/steps/{stepID}/escalate", h.Escalate)
	mux.HandleFunc("GET /api/plans", h.Plans)
}

// setupUIHandlers creates UI handlers. Templates come from disk in dev mode and from the
// embedded filesystem otherwise.
func setupUIHandlers(services RouterServices, logger *slog.Logger) *UIHandlers {
	if services.Jobs == nil || services.Poller == nil {
		return nil
	}
	templateFS := services.TemplateFS
	if templateFS == nil {
		templateFS = templateSource(services.IsDev, logger)
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		logger.Error("failed to create template renderer", slog.Any("error", err))
		return nil
	}
	return &UIHandlers{
		T:         tr,
		Jobs:      services.Jobs,
		Poller:    services.Poller,
		Artifacts: services.Artifacts,
		Logger:    logger,
	}
}

func templateSource(isDev bool, logger *slog.Logger) fs.FS {
	if isDev {
		return os.DirFS(TemplatePathFromRoot)
	}
	sub, err := fs.Sub(runboard.TemplateFS, TemplatePathFromRoot)
	if err != nil {
		logger.Warn("failed to open embedded templates; falling back to disk", "error", err)
		return os.DirFS(TemplatePathFromRoot)
	}
	return sub
}

// staticHandler serves /static/* from disk in dev mode and from the embedded filesystem otherwise.
func staticHandler(isDev bool, logger *slog.Logger) http.Handler {
	var root http.FileSystem = http.Dir(StaticPathFromRoot)
	if !isDev {
		sub, err := fs.Sub(runboard.StaticFS, StaticPathFromRoot)
		if err != nil {
			logger.Warn("failed to open embedded static assets; falling back to disk", "error", err)
		} else {
			root = http.FS(sub)
		}
	}
	files := http.StripPrefix("/static/", http.FileServer(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isDev {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=300")
		}
		files.ServeHTTP(w, r)
	})
}
