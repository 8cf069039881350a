package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lease-review/internal/evidence"
	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/review"
	"github.com/sells-group/lease-review/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	h := &apiHandler{env: env}

	r.Get("/health", h.health)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.createJob)
		r.Get("/", h.listJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Delete("/", h.deleteJob)
			r.Get("/state", h.getState)
			r.Post("/run", h.runPipeline)
			r.Post("/run_stage/{stage}", h.runStage)
			r.Post("/field_action", h.fieldAction)
			r.Post("/save", h.save)
			r.Post("/export_excel", h.exportExcel)
			r.Get("/download/working_json", h.downloadWorking)
			r.Get("/download/final_json", h.downloadFinal)
		})
	})
	r.Get("/download/xlsx", h.downloadWorkbook)

	return r
}

type apiHandler struct {
	env *appEnv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the service-layer sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, review.ErrUnknownField):
		writeError(w, http.StatusBadRequest, eris.ToString(err, false))
	case errors.Is(err, review.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, eris.ToString(err, false))
	case errors.Is(err, review.ErrReviewIncomplete):
		writeError(w, http.StatusConflict, eris.ToString(err, false))
	case errors.Is(err, review.ErrUnsavedChanges):
		writeError(w, http.StatusConflict, eris.ToString(err, false))
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createJob accepts either a multipart form with a "file" PDF part (plus an
// optional "name" field) or a JSON body {"name", "source_path"} where
// source_path names a document on the server's filesystem. Both fields may
// be omitted when the input document will be dropped into the job directory
// out of band.
func (h *apiHandler) createJob(w http.ResponseWriter, r *http.Request) {
	var name string
	var upload io.ReadCloser

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		name = r.FormValue("name")
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file part is required")
			return
		}
		upload = file
		if name == "" {
			name = header.Filename
		}
	} else {
		var req struct {
			Name       string `json:"name"`
			SourcePath string `json:"source_path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		name = req.Name
		if req.SourcePath != "" {
			f, err := os.Open(req.SourcePath)
			if err != nil {
				writeError(w, http.StatusBadRequest, "source_path is not readable")
				return
			}
			upload = f
			if name == "" {
				name = filepath.Base(req.SourcePath)
			}
		}
	}
	if upload != nil {
		defer upload.Close()
	}

	job, err := newJob(r.Context(), h.env, name, upload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *apiHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.env.Store.ListJobs(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *apiHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.env.Store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// getState returns the working state along with review progress, the
// evidence index, and whether final output exists.
func (h *apiHandler) getState(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.env.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ws, err := h.env.States.LoadOrInit(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	progress, err := h.env.Gate.Progress(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	paths := jobfs.For(cfg.Jobs.Root, jobID)
	index, err := evidence.BuildIndex(paths, h.env.States.Schema())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	_, finalErr := os.Stat(paths.FinalJSON())

	writeJSON(w, http.StatusOK, map[string]any{
		"job":          job,
		"schema":       h.env.States.Schema().Fields(),
		"state":        ws,
		"progress":     progress,
		"evidence":     index,
		"final_exists": finalErr == nil,
	})
}

// runPipeline starts a full pipeline run in the background. A job already
// running is rejected rather than queued.
func (h *apiHandler) runPipeline(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.env.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status == model.JobStatusRunning {
		writeError(w, http.StatusConflict, "job is already running")
		return
	}

	go func() {
		if _, err := h.env.Runner.RunPipeline(context.Background(), jobID); err != nil {
			zap.L().Error("pipeline run failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job_id": jobID})
}

func (h *apiHandler) runStage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	stage := chi.URLParam(r, "stage")

	job, err := h.env.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status == model.JobStatusRunning {
		writeError(w, http.StatusConflict, "job is already running")
		return
	}

	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	go func() {
		if _, err := h.env.Runner.RunStage(context.Background(), jobID, stage, req.Model); err != nil {
			zap.L().Error("stage run failed",
				zap.String("job_id", jobID), zap.String("stage", stage), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started", "job_id": jobID, "stage": stage,
	})
}

func (h *apiHandler) fieldAction(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req struct {
		Field  string `json:"field"`
		Action string `json:"action"`
		Value  any    `json:"value"`
		Source string `json:"source"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fs, err := h.env.Engine.Apply(jobID, review.Action{
		Field:  req.Field,
		Action: req.Action,
		Value:  req.Value,
		Source: model.Source(req.Source),
		Actor:  req.Actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	progress, err := h.env.Gate.Progress(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"field":    req.Field,
		"state":    fs,
		"progress": progress,
	})
}

func (h *apiHandler) save(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req struct {
		Values map[string]any `json:"values"`
		Actor  string         `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, _, err := h.env.Engine.SaveValues(jobID, req.Values, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	progress, err := h.env.Gate.Progress(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"saved":    saved,
		"progress": progress,
	})
}

func (h *apiHandler) exportExcel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req struct {
		Values map[string]any `json:"values"`
		Actor  string         `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.env.Exporter.Export(r.Context(), jobID, req.Values, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.env.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status == model.JobStatusRunning {
		writeError(w, http.StatusConflict, "job is running")
		return
	}

	if err := jobfs.For(cfg.Jobs.Root, jobID).Remove(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.env.Store.DeleteJob(r.Context(), jobID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.env.Locks.Forget(jobID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "job_id": jobID})
}

func (h *apiHandler) downloadWorking(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, jobfs.For(cfg.Jobs.Root, chi.URLParam(r, "jobID")).WorkingState(), "application/json")
}

func (h *apiHandler) downloadFinal(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, jobfs.For(cfg.Jobs.Root, chi.URLParam(r, "jobID")).FinalJSON(), "application/json")
}

func (h *apiHandler) downloadWorkbook(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, h.env.Workbook.Path(),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func (h *apiHandler) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}
