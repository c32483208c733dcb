package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	CitationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_resolutions_total",
			Help: "Citation resolutions by winning strategy",
		},
		[]string{"strategy"},
	)
	SearchResultsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_results_returned",
			Help:    "Number of results returned per search request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
	AnswerCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_cache_hits_total",
			Help: "Generated-answer cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Assessment outcome distributions
	AssessmentScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assessment_score",
			Help:    "Distribution of final loan assessment scores ([0,10])",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
	AssessmentsByBandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessments_by_band_total",
			Help: "Completed assessments by eligibility band",
		},
		[]string{"band"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(CitationResolutionsTotal)
	prometheus.MustRegister(SearchResultsReturned)
	prometheus.MustRegister(AnswerCacheHitsTotal)
	prometheus.MustRegister(AssessmentScoreHistogram)
	prometheus.MustRegister(AssessmentsByBandTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAssessment records the outcome of a completed loan assessment.
func ObserveAssessment(score int, band string) {
	if score >= 0 && score <= 10 {
		AssessmentScoreHistogram.Observe(float64(score))
	}
	AssessmentsByBandTotal.WithLabelValues(band).Inc()
}

// ObserveCitation records the strategy that resolved a citation.
func ObserveCitation(strategy string) {
	CitationResolutionsTotal.WithLabelValues(strategy).Inc()
}

// ObserveAnswerCache records a cache lookup outcome ("hit" or "miss").
func ObserveAnswerCache(outcome string) {
	AnswerCacheHitsTotal.WithLabelValues(outcome).Inc()
}
