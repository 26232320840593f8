package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/ml/calibration"
	"github.com/synaptica-ai/riskscore/pkg/ml/linear"
)

const (
	SchemaVersion  = 3
	VersionPrefix  = "risk-v3-"
	artifactPrefix = "risk_model_"
	artifactExt    = ".json"
	versionLayout  = "20060102150405"
)

// ErrNoArtifact is returned by Latest when the directory holds no artifact.
var ErrNoArtifact = errors.New("no risk model artifact found")

// ErrNonFiniteScore marks an artifact that produced a NaN or infinite score.
var ErrNonFiniteScore = errors.New("artifact produced a non-finite score")

// ArtifactLoadError wraps a corrupt or incompatible artifact file.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

type Thresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Artifact is one immutable trained model version.
type Artifact struct {
	SchemaVersion   int                       `json:"schema_version"`
	ModelVersion    string                    `json:"model_version"`
	CreatedAt       time.Time                 `json:"created_at"`
	FeatureColumns  []string                  `json:"feature_columns"`
	Estimator       linear.Pipeline           `json:"estimator"`
	Calibrator      *calibration.Calibrator   `json:"calibrator,omitempty"`
	CalibratorLabel string                    `json:"calibrator_label"`
	TopFeatures     []linear.NamedWeight      `json:"top_features"`
	Thresholds      Thresholds                `json:"thresholds"`
	Metrics         map[string]float64        `json:"metrics"`
	BaseRate        float64                   `json:"base_rate"`
	Rows            int                       `json:"rows"`
	Positives       int                       `json:"positives"`
	DataSource      string                    `json:"data_source"`
	Dataset         *models.DatasetProvenance `json:"dataset,omitempty"`
}

// Row builds the model input for v in the artifact's declared column order.
func (a *Artifact) Row(v models.FeatureVector) linear.Row {
	numeric := make([]float64, len(a.Estimator.NumericColumns))
	for i, name := range a.Estimator.NumericColumns {
		numeric[i], _ = v.Value(name)
	}
	return linear.Row{Numeric: numeric, Category: v.Gender}
}

// Probability scores a row with the calibrator when present, else the raw
// estimator, clamped to [0,1]. A NaN or infinite score returns
// ErrNonFiniteScore.
func (a *Artifact) Probability(row linear.Row) (float64, error) {
	var p float64
	if a.Calibrator != nil && len(a.Calibrator.Members) > 0 {
		p = a.Calibrator.PredictProba(row)
	} else {
		p = a.Estimator.PredictProba(row)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("model %s: %w", a.ModelVersion, ErrNonFiniteScore)
	}
	return math.Min(1, math.Max(0, p)), nil
}

func (a *Artifact) validate() error {
	if a.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", a.SchemaVersion)
	}
	if a.ModelVersion == "" {
		return errors.New("missing model version")
	}
	for _, name := range a.Estimator.NumericColumns {
		if _, ok := (models.FeatureVector{}).Value(name); !ok {
			return fmt.Errorf("unknown feature column %q", name)
		}
	}
	if err := a.Estimator.Validate(); err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	if a.Calibrator != nil {
		for i, m := range a.Calibrator.Members {
			if err := m.Estimator.Validate(); err != nil {
				return fmt.Errorf("calibrator member %d: %w", i, err)
			}
			if len(m.Estimator.NumericColumns) != len(a.Estimator.NumericColumns) {
				return fmt.Errorf("calibrator member %d has %d columns, want %d",
					i, len(m.Estimator.NumericColumns), len(a.Estimator.NumericColumns))
			}
			if err := m.Platt.Validate(); err != nil {
				return fmt.Errorf("calibrator member %d: %w", i, err)
			}
		}
	}
	return nil
}

// ArtifactStore is a directory of risk_model_<version>.json files. Files are
// written once and never modified.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

func (s *ArtifactStore) Dir() string { return s.dir }

// NewVersion derives a version id from a creation time.
func NewVersion(t time.Time) string {
	return VersionPrefix + t.UTC().Format(versionLayout)
}

// PathFor returns the file an artifact of the given version is stored in.
func (s *ArtifactStore) PathFor(version string) string {
	return filepath.Join(s.dir, artifactPrefix+version+artifactExt)
}

// Save writes a new artifact. If the version is already taken a numeric
// suffix is appended and a.ModelVersion updated to match.
func (s *ArtifactStore) Save(a *Artifact) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	a.SchemaVersion = SchemaVersion
	base := a.ModelVersion
	for n := 1; ; n++ {
		if _, err := os.Stat(s.PathFor(a.ModelVersion)); errors.Is(err, os.ErrNotExist) {
			break
		}
		a.ModelVersion = fmt.Sprintf("%s-%d", base, n)
	}

	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, ".risk_model_*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := s.PathFor(a.ModelVersion)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// List returns artifact versions from oldest to newest.
func (s *ArtifactStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, artifactPrefix+"*"+artifactExt))
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		versions = append(versions, strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactExt))
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })
	return versions, nil
}

// Latest loads the newest artifact. It returns ErrNoArtifact when there is
// none and *ArtifactLoadError when the newest one cannot be used.
func (s *ArtifactStore) Latest() (*Artifact, error) {
	versions, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNoArtifact
	}
	return s.Load(versions[len(versions)-1])
}

func (s *ArtifactStore) Load(version string) (*Artifact, error) {
	path := s.PathFor(version)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	var a Artifact
	if err := json.Unmarshal(content, &a); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	if err := a.validate(); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	return &a, nil
}

// versionLess orders by the version text with any collision suffix
// compared numerically.
func versionLess(a, b string) bool {
	aBase, aN := splitSuffix(a)
	bBase, bN := splitSuffix(b)
	if aBase != bBase {
		return aBase < bBase
	}
	return aN < bN
}

func splitSuffix(version string) (string, int) {
	stamp := strings.TrimPrefix(version, VersionPrefix)
	if i := strings.LastIndexByte(stamp, '-'); i > 0 {
		if n, err := strconv.Atoi(stamp[i+1:]); err == nil {
			return version[:len(version)-len(stamp)+i], n
		}
	}
	return version, 0
}
