package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvmetools/nvmetest/types"
)

const (
	MetricsNamespace = "nvmetest"
)

var (
	validOutcomes = []types.Outcome{
		types.OutcomePassed, types.OutcomeFailed, types.OutcomeSkipped, types.OutcomeAborted,
	}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "verifications_total",
		Help:      "Count of requirement verifications",
	}, []string{
		"model",
		"run_id",
		"rqmt",
		"outcome",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of test suite runs",
	}, []string{
		"model",
		"run_id",
		"outcome",
	})

	suiteCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_cases_total",
		Help:      "Total number of test cases run",
	}, []string{
		"model",
		"run_id",
	})

	suiteCasesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_cases_passed",
		Help:      "Number of passed test cases",
	}, []string{
		"model",
		"run_id",
	})

	suiteCasesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_cases_failed",
		Help:      "Number of failed test cases",
	}, []string{
		"model",
		"run_id",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration",
		Help:      "Duration of suite runs in seconds",
	}, []string{
		"model",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordVerification counts one requirement verification by rqmt id.
func RecordVerification(model string, runID string, rqmtID int, outcome types.Outcome) {
	if !isValidOutcome(outcome) {
		return
	}
	verificationsTotal.WithLabelValues(model, runID, fmt.Sprintf("%d", rqmtID), string(outcome)).Inc()
}

// RecordSuite records the end-of-run totals for one suite.
func RecordSuite(result *types.SuiteResult) {
	model := result.Model
	runID := result.ID

	suiteResults.WithLabelValues(model, runID, string(result.Outcome)).Set(1)
	if tests := result.Summary.Tests; tests != nil {
		suiteCasesTotal.WithLabelValues(model, runID).Add(float64(tests.Total))
		suiteCasesPassed.WithLabelValues(model, runID).Add(float64(tests.Pass))
		suiteCasesFailed.WithLabelValues(model, runID).Add(float64(tests.Fail))
	}
	suiteDuration.WithLabelValues(model, runID).Set(result.EndTime.Sub(result.StartTime).Seconds())

	for _, v := range result.Verifications {
		RecordVerification(model, runID, v.RqmtID, v.Outcome)
	}
}

// RecordDuration is a helper for recording an externally measured duration.
func RecordDuration(model string, runID string, d time.Duration) {
	suiteDuration.WithLabelValues(model, runID).Set(d.Seconds())
}

func isValidOutcome(outcome types.Outcome) bool {
	return slices.Contains(validOutcomes, outcome)
}
