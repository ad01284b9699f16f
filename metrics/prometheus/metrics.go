// Package prometheus provides Prometheus metrics for live voice sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livevoice"

var (
	// sessionsActive is a gauge of sessions currently in ACTIVE.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active live sessions",
		},
	)

	// sessionDuration is a histogram of session length from ACTIVE to IDLE.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of live session duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"reason"}, // reason: stopped, remote_closed, transport_error
	)

	// startFailuresTotal counts start attempts that never reached ACTIVE.
	startFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_start_failures_total",
			Help:      "Total number of session starts that failed before becoming active",
		},
	)

	// stateTransitionsTotal counts lifecycle transitions.
	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	// fragmentsScheduledTotal counts inbound fragments placed on the timeline.
	fragmentsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_fragments_scheduled_total",
			Help:      "Total number of inbound audio fragments scheduled for playback",
		},
	)

	// fragmentSeconds is a histogram of fragment durations.
	fragmentSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_fragment_duration_seconds",
			Help:      "Histogram of scheduled fragment durations in seconds",
			Buckets:   []float64{.01, .02, .04, .08, .16, .32, .64, 1.28},
		},
	)

	// fragmentsDroppedTotal counts fragments discarded by the codec.
	fragmentsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_fragments_dropped_total",
			Help:      "Total number of inbound audio fragments that failed to decode",
		},
	)

	// interruptionsTotal counts barge-ins.
	interruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Total number of playback interruptions",
		},
	)

	// interruptedFragmentsTotal counts fragments stopped by barge-ins.
	interruptedFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interrupted_fragments_total",
			Help:      "Total number of fragments stopped by interruptions",
		},
	)

	// captureBlocksTotal counts outbound microphone blocks.
	captureBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_blocks_total",
			Help:      "Total number of microphone blocks by outcome",
		},
		[]string{"status"}, // status: sent, dropped
	)

	// transcriptDeltasTotal counts transcription deltas per speaker.
	transcriptDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_deltas_total",
			Help:      "Total number of transcription deltas appended",
		},
		[]string{"speaker"},
	)

	// releaseFailuresTotal counts teardown steps that failed.
	releaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_release_failures_total",
			Help:      "Total number of failed resource releases during teardown",
		},
		[]string{"resource"},
	)

	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionDuration,
		startFailuresTotal,
		stateTransitionsTotal,
		fragmentsScheduledTotal,
		fragmentSeconds,
		fragmentsDroppedTotal,
		interruptionsTotal,
		interruptedFragmentsTotal,
		captureBlocksTotal,
		transcriptDeltasTotal,
		releaseFailuresTotal,
	}
)

// RecordSessionStart increments the active session gauge.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd decrements the active session gauge and records the duration.
func RecordSessionEnd(reason string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordStartFailure counts a failed start attempt.
func RecordStartFailure() {
	startFailuresTotal.Inc()
}

// RecordStateTransition counts a lifecycle transition.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordFragmentScheduled counts a scheduled fragment and its duration.
func RecordFragmentScheduled(durationSeconds float64) {
	fragmentsScheduledTotal.Inc()
	fragmentSeconds.Observe(durationSeconds)
}

// RecordFragmentDropped counts a fragment that failed to decode.
func RecordFragmentDropped() {
	fragmentsDroppedTotal.Inc()
}

// RecordInterruption counts a barge-in and the fragments it stopped.
func RecordInterruption(stopped int) {
	interruptionsTotal.Inc()
	interruptedFragmentsTotal.Add(float64(stopped))
}

// RecordCaptureBlock counts a microphone block by outcome.
func RecordCaptureBlock(status string) {
	captureBlocksTotal.WithLabelValues(status).Inc()
}

// RecordTranscriptDelta counts a transcription delta.
func RecordTranscriptDelta(speaker string) {
	transcriptDeltasTotal.WithLabelValues(speaker).Inc()
}

// RecordReleaseFailure counts a failed teardown step.
func RecordReleaseFailure(resource string) {
	releaseFailuresTotal.WithLabelValues(resource).Inc()
}
