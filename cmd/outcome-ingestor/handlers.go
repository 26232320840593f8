package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/middleware"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/observability/metrics"
	"github.com/synaptica-ai/riskscore/pkg/patients"
)

type ingestorApp struct {
	store    patients.OutcomeWriter
	ingestor *patients.Ingestor
}

func (a *ingestorApp) router(maxBody int64) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", handleMetrics).Methods("GET")
	router.HandleFunc("/api/v1/outcome-events", func(w http.ResponseWriter, r *http.Request) {
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		a.handleRecord(w, r)
	}).Methods("POST")
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w)
}

// handleRecord stores an outcome entered by hand. Unlike the stream path,
// invalid events are reported to the caller.
func (a *ingestorApp) handleRecord(w http.ResponseWriter, r *http.Request) {
	var ev models.OutcomeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	err := a.store.RecordOutcomeEvent(r.Context(), ev)
	switch {
	case err == nil:
		metrics.ObserveOutcomeEvent(true)
		writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
	case errors.Is(err, patients.ErrInvalidEvent), errors.Is(err, patients.ErrUntrackedEvent):
		metrics.ObserveOutcomeEvent(false)
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.WithError(err).Error("Failed to record outcome event")
		writeError(w, http.StatusInternalServerError, "Failed to record outcome event")
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
