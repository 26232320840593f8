package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

var (
	predictionsHeuristic  atomic.Int64
	predictionsSupervised atomic.Int64
	artifactFallbacks     atomic.Int64
	artifactReloads       atomic.Int64
	outcomeEventsIngested atomic.Int64
	outcomeEventsRejected atomic.Int64
)

// ObservePrediction counts one prediction in the given scoring mode.
func ObservePrediction(mode string) {
	switch mode {
	case models.ScoringModeSupervised:
		predictionsSupervised.Add(1)
	case models.ScoringModeHeuristic:
		predictionsHeuristic.Add(1)
	}
}

// ObserveArtifactFallback counts a prediction that fell back to the
// heuristic because the newest artifact could not be used.
func ObserveArtifactFallback() {
	artifactFallbacks.Add(1)
}

func ObserveArtifactReload() {
	artifactReloads.Add(1)
}

func ObserveOutcomeEvent(accepted bool) {
	if accepted {
		outcomeEventsIngested.Add(1)
		return
	}
	outcomeEventsRejected.Add(1)
}

type counter struct {
	name  string
	help  string
	value *atomic.Int64
}

var counters = []counter{
	{"riskscore_predictions_heuristic_total", "Predictions served by the heuristic scorer.", &predictionsHeuristic},
	{"riskscore_predictions_supervised_total", "Predictions served by a trained model artifact.", &predictionsSupervised},
	{"riskscore_artifact_fallbacks_total", "Predictions that fell back to the heuristic after an artifact load failure.", &artifactFallbacks},
	{"riskscore_artifact_reloads_total", "Explicit model artifact reloads.", &artifactReloads},
	{"riskscore_outcome_events_ingested_total", "Outcome events persisted from the event stream.", &outcomeEventsIngested},
	{"riskscore_outcome_events_rejected_total", "Outcome events rejected as malformed or untracked.", &outcomeEventsRejected},
}

// Write renders every counter in the Prometheus text format.
func Write(w io.Writer) {
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value.Load())
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	Write(w)
}
