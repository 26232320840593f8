package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
	"github.com/synaptica-ai/riskscore/pkg/common/database"
	"github.com/synaptica-ai/riskscore/pkg/common/kafka"
	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/timeutil"
	"github.com/synaptica-ai/riskscore/pkg/datasets"
	"github.com/synaptica-ai/riskscore/pkg/patients"
	"github.com/synaptica-ai/riskscore/pkg/risk/features"
	"github.com/synaptica-ai/riskscore/pkg/storage"
	"github.com/synaptica-ai/riskscore/pkg/training"
)

func main() {
	logger.Init()
	cfg := config.Load()

	once, req, err := parseFlags(cfg, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	app, cleanup := newTrainingApp(cfg)
	defer cleanup()

	if once {
		result, err := app.service.Train(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "training failed: %v\n", err)
			cleanup()
			os.Exit(exitCode(err))
		}
		fmt.Printf("Saved model: %s\n", result.ArtifactPath)
		fmt.Printf("  rows=%d positives=%d calibrator=%s\n", result.Rows, result.Positives, result.CalibratorLabel)
		return
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      app.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 0,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.ServerPort,
			"artifact_dir": cfg.ArtifactDir,
		}).Info("Training Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Training Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Training Service stopped")
}

// newTrainingApp connects the patient store, run log and model-event
// producer. The patient store is required for internal-outcome runs only,
// so a database failure is logged and training from the external dataset
// still works.
// parseFlags reads the -once run parameters; each flag defaults to its
// configured value.
func parseFlags(cfg *config.Config, args []string) (bool, training.Request, error) {
	fs := flag.NewFlagSet("training-service", flag.ContinueOnError)
	once := fs.Bool("once", false, "run a single training job and exit instead of serving HTTP")
	req := training.Request{}
	fs.IntVar(&req.MinRows, "min-rows", cfg.TrainingMinRows, "minimum number of labelled rows")
	fs.IntVar(&req.MinPositives, "min-positives", cfg.TrainingMinPositives, "minimum number of positive labels")
	fs.BoolVar(&req.AllowLowPositives, "allow-low-positives", cfg.TrainingAllowLowPos, "train with fewer positives than -min-positives")
	fs.StringVar(&req.DataSource, "data-source", cfg.TrainingDataSource, "internal-outcomes or external-dataset")
	fs.StringVar(&req.ExternalDatasetPath, "dataset-path", cfg.ExternalDatasetPath, "external dataset file (.csv or .xlsx)")
	fs.IntVar(&req.MaxRows, "max-rows", cfg.TrainingMaxRows, "cap on external dataset rows, sampled with -seed")
	fs.Int64Var(&req.Seed, "seed", cfg.TrainingRandomSeed, "random seed for sampling, splits and calibration folds")
	if err := fs.Parse(args); err != nil {
		return false, training.Request{}, err
	}
	return *once, req, nil
}

func newTrainingApp(cfg *config.Config) (*trainingApp, func()) {
	tables := features.DefaultKeywordTables()
	if cfg.KeywordTablesPath != "" {
		loaded, err := features.LoadKeywordTables(cfg.KeywordTablesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load keyword tables")
		}
		tables = loaded
	}
	clock := timeutil.RealClock{}

	var source training.PatientSource
	var runs *training.Repository
	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Warn("Patient store unavailable; only external-dataset training will work")
	} else {
		patientRepo := patients.NewRepository(db)
		runs = training.NewRepository(db)
		if err := patientRepo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate patient store")
		}
		if err := runs.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate training runs")
		}
		source = patientRepo
	}

	producer := kafka.NewProducer(cfg, cfg.ModelEventTopic)

	service := training.NewService(
		storage.NewArtifactStore(cfg.ArtifactDir),
		source,
		features.NewExtractor(tables, clock),
		clock,
	).WithNotifier(producer).WithReliabilityPlot(cfg.TrainingReliabilityPlot)
	if runs != nil {
		service = service.WithRecorder(runs)
	}
	if cfg.ExternalDatasetURL != "" {
		service = service.WithFetcher(datasets.NewFetcher(cfg.ExternalDatasetURL))
	}

	app := &trainingApp{
		service: service,
		defaults: training.Request{
			MinRows:             cfg.TrainingMinRows,
			MinPositives:        cfg.TrainingMinPositives,
			AllowLowPositives:   cfg.TrainingAllowLowPos,
			DataSource:          cfg.TrainingDataSource,
			ExternalDatasetPath: cfg.ExternalDatasetPath,
			MaxRows:             cfg.TrainingMaxRows,
			Seed:                cfg.TrainingRandomSeed,
		},
	}
	if runs != nil {
		app.runs = runs
	}

	cleanup := func() {
		if err := producer.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close Kafka producer")
		}
		if err := database.ClosePostgres(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close PostgreSQL")
		}
	}
	return app, cleanup
}
