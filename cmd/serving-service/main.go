package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
	"github.com/synaptica-ai/riskscore/pkg/common/database"
	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/patients"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/risk/heuristic"
	"github.com/synaptica-ai/riskscore/pkg/serving"
	"github.com/synaptica-ai/riskscore/pkg/serving/predictor"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	tables := features.DefaultKeywordTables()
	if cfg.KeywordTablesPath != "" {
		loaded, err := features.LoadKeywordTables(cfg.KeywordTablesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load keyword tables")
		}
		tables = loaded
	}

	clock := timeutil.RealClock{}
	predictorEngine := predictor.NewPredictor(storage.NewArtifactStore(cfg.ArtifactDir))
	scoring := serving.NewService(features.NewExtractor(tables, clock), heuristic.NewScorer(), predictorEngine)

	app := &servingApp{scoring: scoring, clock: clock}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Warn("Prediction log and patient lookup disabled")
	} else {
		predictionRepo := serving.NewRepository(db)
		if err := predictionRepo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate prediction log")
		}
		app.predictions = predictionRepo
		app.patients = patients.NewRepository(db)
	}

	app.snapshots = storage.NewFeatureStore(database.GetRedis(cfg), cfg.FeatureOnlinePrefix, cfg.FeatureStoreCacheTTL)

	if artifact, err := predictorEngine.Artifact(); err == nil {
		logger.Log.WithField("model_version", artifact.ModelVersion).Info("Risk model loaded")
	} else {
		logger.Log.WithError(err).Info("No risk model loaded, serving heuristic scores")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      app.router(cfg.MaxRequestBody),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.ServerPort,
			"artifact_dir": cfg.ArtifactDir,
		}).Info("Serving Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Serving Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close Redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close PostgreSQL")
	}

	logger.Log.Info("Serving Service stopped")
}
