package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/middleware"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/observability/metrics"
	"github.com/synaptica-ai/riskscore/pkg/patients"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/serving"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

type patientLookup interface {
	GetPatient(ctx context.Context, id string) (*patients.Patient, error)
}

type snapshotStore interface {
	Materialize(ctx context.Context, snap storage.Snapshot) error
	Get(ctx context.Context, patientID string) (storage.Snapshot, error)
}

type predictionLog interface {
	RecordPrediction(ctx context.Context, log serving.PredictionLog) error
	Recent(ctx context.Context, patientID string, limit int) ([]serving.PredictionLog, error)
}

const defaultHistoryLimit = 20

// servingApp wires the scoring service to HTTP. Every collaborator except
// scoring is optional.
type servingApp struct {
	scoring     *serving.Service
	clock       timeutil.Clock
	patients    patientLookup
	snapshots   snapshotStore
	predictions predictionLog
}

func (a *servingApp) router(maxBody int64) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", handleMetrics).Methods("GET")
	router.HandleFunc("/api/v1/risk-score", limitBody(maxBody, a.handleScorePayload)).Methods("POST")
	router.HandleFunc("/api/v1/patients/{id}/risk-score", a.handleScorePatient).Methods("GET")
	router.HandleFunc("/api/v1/patients/{id}/features", a.handleSnapshot).Methods("GET")
	router.HandleFunc("/api/v1/patients/{id}/predictions", a.handlePredictionHistory).Methods("GET")
	router.HandleFunc("/api/v1/model", a.handleModel).Methods("GET")
	router.HandleFunc("/api/v1/model/reload", a.handleReload).Methods("POST")
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w)
}

func limitBody(max int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next(w, r)
	}
}

// handleScorePayload scores a patient record posted by the dashboard.
func (a *servingApp) handleScorePayload(w http.ResponseWriter, r *http.Request) {
	var payload features.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	a.score(w, r, payload)
}

func (a *servingApp) handleScorePatient(w http.ResponseWriter, r *http.Request) {
	if a.patients == nil {
		writeError(w, http.StatusServiceUnavailable, "Patient store unavailable")
		return
	}
	id := mux.Vars(r)["id"]
	patient, err := a.patients.GetPatient(r.Context(), id)
	if errors.Is(err, patients.ErrPatientNotFound) {
		writeError(w, http.StatusNotFound, "Patient not found")
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", id).Error("Failed to load patient")
		writeError(w, http.StatusInternalServerError, "Failed to load patient")
		return
	}
	a.score(w, r, patient)
}

func (a *servingApp) score(w http.ResponseWriter, r *http.Request, record features.Record) {
	start := time.Now()
	ctx := r.Context()

	vector, err := a.scoring.Features(record)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prediction := a.scoring.Score(vector)
	latency := time.Since(start)
	patientID := record.PatientID()

	if a.snapshots != nil && patientID != "" {
		snap := storage.Snapshot{
			PatientID:  patientID,
			Features:   vector,
			Prediction: &prediction,
			ComputedAt: a.clock.Now().UTC(),
		}
		if err := a.snapshots.Materialize(ctx, snap); err != nil {
			logger.Log.WithError(err).WithField("patient_id", patientID).Warn("Failed to materialize feature snapshot")
		}
	}
	if a.predictions != nil {
		entry, err := serving.NewPredictionLog(patientID, vector, prediction, latency)
		if err == nil {
			err = a.predictions.RecordPrediction(ctx, entry)
		}
		if err != nil {
			logger.Log.WithError(err).WithField("patient_id", patientID).Warn("Failed to record prediction")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"patient_id":    patientID,
		"model_version": prediction.ModelVersion,
		"scoring_mode":  prediction.ScoringMode,
		"risk_band":     prediction.Band,
		"latency_ms":    latency.Milliseconds(),
	}).Info("Prediction completed")

	writeJSON(w, http.StatusOK, prediction)
}

func (a *servingApp) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "Feature store unavailable")
		return
	}
	snap, err := a.snapshots.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		writeError(w, http.StatusNotFound, "No cached features for patient")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to read feature snapshot")
		writeError(w, http.StatusInternalServerError, "Failed to read feature snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handlePredictionHistory lists the patient's logged predictions, newest
// first. ?limit caps the count.
func (a *servingApp) handlePredictionHistory(w http.ResponseWriter, r *http.Request) {
	if a.predictions == nil {
		writeError(w, http.StatusServiceUnavailable, "Prediction log unavailable")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	id := mux.Vars(r)["id"]
	logs, err := a.predictions.Recent(r.Context(), id, limit)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", id).Error("Failed to read prediction log")
		writeError(w, http.StatusInternalServerError, "Failed to read prediction log")
		return
	}
	if logs == nil {
		logs = []serving.PredictionLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":  id,
		"predictions": logs,
	})
}

type modelStatus struct {
	ModelVersion    string             `json:"model_version"`
	ScoringMode     string             `json:"scoring_mode"`
	CalibratorLabel string             `json:"calibrator,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	CreatedAt       *time.Time         `json:"created_at,omitempty"`
}

func statusFor(artifact *storage.Artifact) modelStatus {
	if artifact == nil {
		return modelStatus{ModelVersion: models.HeuristicModelVersion, ScoringMode: models.ScoringModeHeuristic}
	}
	created := artifact.CreatedAt
	return modelStatus{
		ModelVersion:    artifact.ModelVersion,
		ScoringMode:     models.ScoringModeSupervised,
		CalibratorLabel: artifact.CalibratorLabel,
		Metrics:         artifact.Metrics,
		CreatedAt:       &created,
	}
}

func (a *servingApp) handleModel(w http.ResponseWriter, r *http.Request) {
	p := a.scoring.Predictor()
	if p == nil {
		writeJSON(w, http.StatusOK, statusFor(nil))
		return
	}
	artifact, err := p.Artifact()
	if err != nil && !errors.Is(err, storage.ErrNoArtifact) {
		logger.Log.WithError(err).Warn("Risk model unavailable")
	}
	writeJSON(w, http.StatusOK, statusFor(artifact))
}

func (a *servingApp) handleReload(w http.ResponseWriter, r *http.Request) {
	p := a.scoring.Predictor()
	if p == nil {
		writeJSON(w, http.StatusOK, statusFor(nil))
		return
	}
	artifact, err := p.Reload()
	switch {
	case err == nil:
		metrics.ObserveArtifactReload()
		logger.Log.WithField("model_version", artifact.ModelVersion).Info("Risk model reloaded")
		writeJSON(w, http.StatusOK, statusFor(artifact))
	case errors.Is(err, storage.ErrNoArtifact):
		writeJSON(w, http.StatusOK, statusFor(nil))
	default:
		logger.Log.WithError(err).Error("Risk model reload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
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
