package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/middleware"
	"github.com/synaptica-ai/riskscore/pkg/training"
)

const (
	exitValidation = 2
	exitDependency = 3
	exitFailure    = 1
)

type trainer interface {
	Train(ctx context.Context, req training.Request) (training.Result, error)
}

type runLog interface {
	Get(ctx context.Context, id uuid.UUID) (*training.RunModel, error)
	List(ctx context.Context, limit int) ([]training.RunModel, error)
}

// trainingApp exposes training over HTTP. Runs are serialised: a request
// made while another run is in progress is refused.
type trainingApp struct {
	service  trainer
	runs     runLog
	defaults training.Request
	busy     sync.Mutex
}

func (a *trainingApp) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/api/v1/training/runs", a.handleTrain).Methods("POST")
	router.HandleFunc("/api/v1/training/runs", a.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/training/runs/{id}", a.handleGetRun).Methods("GET")
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// handleTrain runs one training job synchronously. Fields missing from the
// body keep the configured defaults.
func (a *trainingApp) handleTrain(w http.ResponseWriter, r *http.Request) {
	req := a.defaults
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	}

	if !a.busy.TryLock() {
		writeError(w, http.StatusConflict, "A training run is already in progress")
		return
	}
	defer a.busy.Unlock()

	result, err := a.service.Train(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *trainingApp) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "Run log unavailable")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.runs.List(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list training runs")
		writeError(w, http.StatusInternalServerError, "Failed to list training runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *trainingApp) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "Run log unavailable")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run id")
		return
	}
	run, err := a.runs.Get(r.Context(), id)
	if errors.Is(err, training.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Training run not found")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to load training run")
		writeError(w, http.StatusInternalServerError, "Failed to load training run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func statusFor(err error) int {
	var validation *training.ValidationError
	var dependency *training.DependencyError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &dependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func exitCode(err error) int {
	switch statusFor(err) {
	case http.StatusUnprocessableEntity:
		return exitValidation
	case http.StatusServiceUnavailable:
		return exitDependency
	default:
		return exitFailure
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
