// Package metrics holds the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photoman"

// BackendRequestsTotal counts calls to the photo backend.
// Labels:
//   - endpoint: backend path without query (e.g. "/get_photos")
//   - result: "ok", "rejected" or "unavailable"
var BackendRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Total number of photo backend calls, by endpoint and result.",
	},
	[]string{"endpoint", "result"},
)

var BackendRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Duration of photo backend calls.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"endpoint"},
)

// SubmissionsTotal counts batch uploads and approvals.
// Labels:
//   - kind: "upload" or "approval"
//   - result: "ok" or "error"
var SubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Total number of photo batches sent to the backend.",
	},
	[]string{"kind", "result"},
)

var SubmittedPhotosTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submitted_photos_total",
		Help:      "Total number of photos sent in successful batches.",
	},
	[]string{"kind"},
)

// RenderDuration measures one crop/filter/encode pass.
// Label:
//   - op: "crop", "preview" or "approve"
var RenderDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "render_duration_seconds",
		Help:      "Duration of image rendering and JPEG encoding.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

var ActiveWorkspaces = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workspaces",
		Help:      "Number of workspaces holding an upload working set.",
	},
)

var VideoWatchers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "video_watchers",
		Help:      "Number of open video websocket connections.",
	},
)
