// Package api exposes the acquisition engine over HTTP: REST endpoints for
// install/job control plus a server-sent-events stream of progress.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/modelfetch-dev/modelfetch/internal/logger"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"github.com/modelfetch-dev/modelfetch/pkg/progress"
)

// Engine is the part of the orchestrator the HTTP layer drives.
type Engine interface {
	Install(ctx context.Context, presetID string) (string, error)
	Pause(jobID string) error
	Resume(jobID string) error
	Cancel(jobID string) error
	Status(jobID string) (model.Job, error)
	Jobs() []model.Job
	Presets() []model.PresetSpec
	Uninstall(ctx context.Context, presetID string) (model.UninstallResult, error)
	Validate(presetID string, fix bool) (model.ValidationReport, error)
	Subscribe(buffer int) (*progress.Subscription, error)
}

// Server serves the REST API and the progress event stream.
type Server struct {
	engine Engine
	addr   string
}

// NewServer creates an API server bound to addr.
func NewServer(engine Engine, addr string) *Server {
	return &Server{engine: engine, addr: addr}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/presets", s.listPresets).Methods(http.MethodGet)
	api.HandleFunc("/presets/{id}/install", s.installPreset).Methods(http.MethodPost)
	api.HandleFunc("/presets/{id}/validate", s.validatePreset).Methods(http.MethodPost)
	api.HandleFunc("/presets/{id}", s.uninstallPreset).Methods(http.MethodDelete)

	api.HandleFunc("/jobs", s.listJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.getJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/pause", s.pauseJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/resume", s.resumeJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/cancel", s.cancelJob).Methods(http.MethodPost)

	api.HandleFunc("/events", s.streamEvents).Methods(http.MethodGet)
	return r
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", logger.Fields{"addr": s.addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type installResponse struct {
	JobID             string `json:"job_id"`
	AlreadyInProgress bool   `json:"already_in_progress,omitempty"`
}

func (s *Server) installPreset(w http.ResponseWriter, r *http.Request) {
	presetID := mux.Vars(r)["id"]
	jobID, err := s.engine.Install(r.Context(), presetID)
	if err != nil {
		if stderrors.Is(err, errors.ErrAlreadyInProgress) {
			writeJSON(w, http.StatusOK, installResponse{JobID: jobID, AlreadyInProgress: true})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, installResponse{JobID: jobID})
}

func (s *Server) uninstallPreset(w http.ResponseWriter, r *http.Request) {
	presetID := mux.Vars(r)["id"]
	result, err := s.engine.Uninstall(r.Context(), presetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) validatePreset(w http.ResponseWriter, r *http.Request) {
	presetID := mux.Vars(r)["id"]
	fix := r.URL.Query().Get("fix") == "true"
	report, err := s.engine.Validate(presetID, fix)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Presets())
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Jobs())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.Status(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.engine.Pause)
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.engine.Resume)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.engine.Cancel)
}

func (s *Server) jobAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	if err := action(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents pushes progress events as server-sent events. An optional
// ?job=<id> query restricts the stream to one job.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.engine.Subscribe(64)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	jobFilter := r.URL.Query().Get("job")
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C():
			if !open {
				return
			}
			if jobFilter != "" && ev.JobID != jobFilter {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrUnknownPreset), stderrors.Is(err, errors.ErrJobNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrPresetBusy), stderrors.Is(err, errors.ErrJobTerminal):
		status = http.StatusConflict
	case stderrors.Is(err, errors.ErrInsufficientSpace):
		status = http.StatusInsufficientStorage
	case stderrors.Is(err, errors.ErrSchedulerClosed):
		status = http.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrMalformedCatalog), stderrors.Is(err, errors.ErrConfigValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("failed to encode response", logger.Fields{"error": err.Error()})
	}
}
