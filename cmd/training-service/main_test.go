package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
	"github.com/synaptica-ai/riskscore/pkg/training"
)

func flagConfig() *config.Config {
	return &config.Config{
		TrainingMinRows:      25,
		TrainingMinPositives: 5,
		TrainingDataSource:   training.SourceInternalOutcomes,
		TrainingMaxRows:      50000,
		TrainingRandomSeed:   42,
	}
}

func TestParseFlagsDefaultsFromConfig(t *testing.T) {
	once, req, err := parseFlags(flagConfig(), nil)
	require.NoError(t, err)
	assert.False(t, once)
	assert.Equal(t, training.Request{
		MinRows:      25,
		MinPositives: 5,
		DataSource:   training.SourceInternalOutcomes,
		MaxRows:      50000,
		Seed:         42,
	}, req)
}

func TestParseFlagsOnceOverrides(t *testing.T) {
	once, req, err := parseFlags(flagConfig(), []string{
		"-once", "-data-source", training.SourceExternalDataset, "-dataset-path", "/data/diabetic_data.csv",
		"-max-rows", "2000", "-seed", "7", "-min-positives", "2", "-allow-low-positives",
	})
	require.NoError(t, err)
	assert.True(t, once)
	assert.Equal(t, training.SourceExternalDataset, req.DataSource)
	assert.Equal(t, "/data/diabetic_data.csv", req.ExternalDatasetPath)
	assert.Equal(t, 2000, req.MaxRows)
	assert.Equal(t, int64(7), req.Seed)
	assert.Equal(t, 2, req.MinPositives)
	assert.True(t, req.AllowLowPositives)
}

func TestParseFlagsRejectsBadValue(t *testing.T) {
	_, _, err := parseFlags(flagConfig(), []string{"-seed", "abc"})
	assert.Error(t, err)
}
