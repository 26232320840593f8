// Package predictor serves the newest trained risk model artifact.
package predictor

import (
	"errors"
	"sync"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/storage"
)

// Predictor lazily loads the newest artifact on first use and keeps it for
// the life of the process. Newer artifacts are picked up only via Reload.
// Failed loads are not cached, so a missing or corrupt artifact is retried on
// the next request.
type Predictor struct {
	store  *storage.ArtifactStore
	mu     sync.RWMutex
	cached *storage.Artifact
}

func NewPredictor(store *storage.ArtifactStore) *Predictor {
	return &Predictor{store: store}
}

// Artifact returns the served artifact, loading it if nothing is cached.
func (p *Predictor) Artifact() (*storage.Artifact, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return p.cached, nil
	}
	artifact, err := p.store.Latest()
	if err != nil {
		return nil, err
	}
	p.cached = artifact
	return artifact, nil
}

// Reload drops the cached artifact and loads the newest one.
func (p *Predictor) Reload() (*storage.Artifact, error) {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
	return p.Artifact()
}

// Current reports the cached artifact version, or "" if none is loaded.
func (p *Predictor) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return ""
	}
	return p.cached.ModelVersion
}

// Predict scores v with the served artifact.
func (p *Predictor) Predict(v models.FeatureVector) (float64, *storage.Artifact, error) {
	artifact, err := p.Artifact()
	if err != nil {
		return 0, nil, err
	}
	if artifact == nil {
		return 0, nil, errors.New("no artifact loaded")
	}
	probability, err := artifact.Probability(artifact.Row(v))
	if err != nil {
		return 0, nil, &storage.ArtifactLoadError{Path: p.store.PathFor(artifact.ModelVersion), Err: err}
	}
	return probability, artifact, nil
}
